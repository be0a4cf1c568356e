package catalog

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/openshelf/bookdex/internal/domain"
	"github.com/openshelf/bookdex/internal/domain/book"
)

// MetaRow is one row of the metadata parquet file. Row order is the join key
// to the vector index: row i of this file describes vector i.
type MetaRow struct {
	Key     string  `parquet:"key"`
	Title   *string `parquet:"title,optional"`
	CoverID *int64  `parquet:"cover_i,optional"`
}

// MetaTable is the loaded, read-only metadata table. It answers both
// directions of the index join: row position -> item, and key -> row position.
type MetaTable struct {
	rows  []book.Meta
	byKey map[string]int
}

// LoadMeta reads the metadata parquet file and validates the table: the key
// column must exist and every key must be non-empty and unique. Duplicate or
// empty keys mean the offline build is broken and the positional join cannot
// be trusted, so loading fails rather than serving wrong titles for correct
// scores.
func LoadMeta(path string) (*MetaTable, error) {
	h, err := openParquet(path)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata table: %w", domain.ErrResourceLoad, err)
	}
	defer h.Close()

	keyCol := leafColumn(h.pf, "key")
	if keyCol < 0 {
		return nil, fmt.Errorf("%w: metadata table has no key column", domain.ErrResourceLoad)
	}
	titleCol := leafColumn(h.pf, "title")
	coverCol := leafColumn(h.pf, "cover_i")

	t := &MetaTable{byKey: make(map[string]int)}

	err = forEachRow(h.pf, func(row parquet.Row) error {
		var m book.Meta
		for _, v := range row {
			switch v.Column() {
			case keyCol:
				if !v.IsNull() {
					m.Key = v.String()
				}
			case titleCol:
				if !v.IsNull() {
					m.Title = v.String()
				}
			case coverCol:
				if !v.IsNull() {
					m.CoverID = v.Int64()
				}
			}
		}

		pos := len(t.rows)
		if m.Key == "" {
			return fmt.Errorf("%w: empty key at row %d", domain.ErrResourceLoad, pos)
		}
		if prev, dup := t.byKey[m.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q at rows %d and %d", domain.ErrResourceLoad, m.Key, prev, pos)
		}
		t.byKey[m.Key] = pos
		t.rows = append(t.rows, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

// NewMetaTable builds a table from already-ordered items, applying the same
// key validation as LoadMeta.
func NewMetaTable(items []book.Meta) (*MetaTable, error) {
	t := &MetaTable{byKey: make(map[string]int, len(items))}
	for pos, m := range items {
		if m.Key == "" {
			return nil, fmt.Errorf("%w: empty key at row %d", domain.ErrResourceLoad, pos)
		}
		if prev, dup := t.byKey[m.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q at rows %d and %d", domain.ErrResourceLoad, m.Key, prev, pos)
		}
		t.byKey[m.Key] = pos
		t.rows = append(t.rows, m)
	}
	return t, nil
}

// Len returns the number of metadata rows.
func (t *MetaTable) Len() int { return len(t.rows) }

// ByPosition returns the item at the given index row position.
func (t *MetaTable) ByPosition(row int) (book.Meta, error) {
	if row < 0 || row >= len(t.rows) {
		return book.Meta{}, fmt.Errorf("metadata row %d out of range [0, %d)", row, len(t.rows))
	}
	return t.rows[row], nil
}

// PositionOf returns the index row position for a key.
func (t *MetaTable) PositionOf(key string) (int, bool) {
	pos, ok := t.byKey[key]
	return pos, ok
}

// WriteMeta writes metadata rows to a parquet file, preserving slice order.
// The offline index builder calls this with rows in index insertion order.
func WriteMeta(path string, rows []MetaRow) error {
	if err := writeParquet(path, rows); err != nil {
		return fmt.Errorf("write metadata table: %w", err)
	}
	return nil
}
