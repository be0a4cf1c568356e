package catalog

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/openshelf/bookdex/internal/domain"
)

// ContentRow is one row of the content parquet file. Unlike the metadata
// table it is keyed, not position-aligned.
type ContentRow struct {
	Key         string  `parquet:"key"`
	Description *string `parquet:"description,optional"`
}

// ContentTable maps item keys to long-form descriptions. Missing keys and
// null descriptions both resolve to "absent" — lookups never fail.
type ContentTable struct {
	descriptions map[string]string
}

// LoadContent reads the content parquet file. The key column is required;
// description is optional. Later duplicates of a key are ignored, matching
// the first-match lookup of the upstream join.
func LoadContent(path string) (*ContentTable, error) {
	h, err := openParquet(path)
	if err != nil {
		return nil, fmt.Errorf("%w: content table: %w", domain.ErrResourceLoad, err)
	}
	defer h.Close()

	keyCol := leafColumn(h.pf, "key")
	if keyCol < 0 {
		return nil, fmt.Errorf("%w: content table has no key column", domain.ErrResourceLoad)
	}
	descCol := leafColumn(h.pf, "description")

	t := &ContentTable{descriptions: make(map[string]string)}

	err = forEachRow(h.pf, func(row parquet.Row) error {
		var key, desc string
		for _, v := range row {
			switch v.Column() {
			case keyCol:
				if !v.IsNull() {
					key = v.String()
				}
			case descCol:
				if !v.IsNull() {
					desc = v.String()
				}
			}
		}
		if key == "" {
			return nil
		}
		if _, exists := t.descriptions[key]; !exists {
			t.descriptions[key] = desc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

// NewContentTable builds a table from a key -> description map.
func NewContentTable(descriptions map[string]string) *ContentTable {
	m := make(map[string]string, len(descriptions))
	for k, v := range descriptions {
		m[k] = v
	}
	return &ContentTable{descriptions: m}
}

// Len returns the number of keyed rows.
func (t *ContentTable) Len() int { return len(t.descriptions) }

// Description returns the stored description for a key, or "" when the key
// is absent or its description is null.
func (t *ContentTable) Description(key string) string {
	return t.descriptions[key]
}

// WriteContent writes content rows to a parquet file.
func WriteContent(path string, rows []ContentRow) error {
	if err := writeParquet(path, rows); err != nil {
		return fmt.Errorf("write content table: %w", err)
	}
	return nil
}
