package catalog

import (
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/openshelf/bookdex/internal/domain"
)

// InputRow is one row of the embedding-input parquet file produced by the
// upstream transformation step: key, display title, the combined text to
// embed, and an optional cover id carried through for display.
type InputRow struct {
	Key      string  `parquet:"key"`
	Title    *string `parquet:"title,optional"`
	BookText string  `parquet:"book_text"`
	CoverID  *int64  `parquet:"cover_i,optional"`
}

// EmbeddingRow is one row of the embeddings parquet file written by the
// embed step and consumed by the index builder.
type EmbeddingRow struct {
	Key        string    `parquet:"key"`
	Title      *string   `parquet:"title,optional"`
	CoverID    *int64    `parquet:"cover_i,optional"`
	Model      string    `parquet:"model"`
	EmbeddedAt string    `parquet:"embedded_at"`
	Embedding  []float32 `parquet:"embedding,list"`
}

// ReadInput reads the embedding-input parquet file in row order.
func ReadInput(path string) ([]InputRow, error) {
	h, err := openParquet(path)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding input: %w", domain.ErrResourceLoad, err)
	}
	defer h.Close()

	keyCol := leafColumn(h.pf, "key")
	textCol := leafColumn(h.pf, "book_text")
	if keyCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("%w: embedding input needs key and book_text columns", domain.ErrResourceLoad)
	}
	titleCol := leafColumn(h.pf, "title")
	coverCol := leafColumn(h.pf, "cover_i")

	var rows []InputRow
	err = forEachRow(h.pf, func(row parquet.Row) error {
		var r InputRow
		for _, v := range row {
			switch v.Column() {
			case keyCol:
				if !v.IsNull() {
					r.Key = v.String()
				}
			case textCol:
				if !v.IsNull() {
					r.BookText = v.String()
				}
			case titleCol:
				if !v.IsNull() {
					s := v.String()
					r.Title = &s
				}
			case coverCol:
				if !v.IsNull() {
					c := v.Int64()
					r.CoverID = &c
				}
			}
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadEmbeddings reads the embeddings parquet file in row order. Rows with a
// missing embedding come back with a nil Embedding; the index builder drops
// them.
func ReadEmbeddings(path string) ([]EmbeddingRow, error) {
	h, err := openParquet(path)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings table: %w", domain.ErrResourceLoad, err)
	}
	defer h.Close()

	keyCol := leafColumn(h.pf, "key")
	embCol := leafColumn(h.pf, "embedding")
	if keyCol < 0 || embCol < 0 {
		return nil, fmt.Errorf("%w: embeddings table needs key and embedding columns", domain.ErrResourceLoad)
	}
	titleCol := leafColumn(h.pf, "title")
	coverCol := leafColumn(h.pf, "cover_i")
	modelCol := leafColumn(h.pf, "model")
	atCol := leafColumn(h.pf, "embedded_at")

	var rows []EmbeddingRow
	err = forEachRow(h.pf, func(row parquet.Row) error {
		var r EmbeddingRow
		for _, v := range row {
			switch v.Column() {
			case keyCol:
				if !v.IsNull() {
					r.Key = v.String()
				}
			case titleCol:
				if !v.IsNull() {
					s := v.String()
					r.Title = &s
				}
			case coverCol:
				if !v.IsNull() {
					c := v.Int64()
					r.CoverID = &c
				}
			case modelCol:
				if !v.IsNull() {
					r.Model = v.String()
				}
			case atCol:
				if !v.IsNull() {
					r.EmbeddedAt = v.String()
				}
			case embCol:
				if !v.IsNull() {
					r.Embedding = append(r.Embedding, v.Float())
				}
			}
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteEmbeddings writes embedding rows to a parquet file.
func WriteEmbeddings(path string, rows []EmbeddingRow) error {
	if err := writeParquet(path, rows); err != nil {
		return fmt.Errorf("write embeddings table: %w", err)
	}
	return nil
}

// WriteInput writes embedding-input rows to a parquet file.
func WriteInput(path string, rows []InputRow) error {
	if err := writeParquet(path, rows); err != nil {
		return fmt.Errorf("write embedding input: %w", err)
	}
	return nil
}
