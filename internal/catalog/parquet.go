// Package catalog loads the parquet tables the retrieval engine serves from:
// the metadata table (row-aligned with the vector index) and the content
// table (keyed by item key). It also holds the row types shared with the
// offline embedding pipeline.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// parquetHandle wraps parquet.File + underlying os.File for proper cleanup.
type parquetHandle struct {
	pf   *parquet.File
	file *os.File
}

func (h *parquetHandle) Close() {
	_ = h.file.Close()
}

func openParquet(path string) (*parquetHandle, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return &parquetHandle{pf: pf, file: f}, nil
}

// leafColumn finds the leaf-level index of a top-level column by name.
// Returns -1 when the file has no such column.
func leafColumn(pf *parquet.File, name string) int {
	for i, path := range pf.Schema().Columns() {
		if len(path) > 0 && path[0] == name {
			return i
		}
	}
	return -1
}

// forEachRow streams generic rows from every row group through cb.
// parquet-go's Schema.Reconstruct chokes on nullable columns, so readers
// resolve leaf column indexes by name and pick values out of generic rows
// instead of decoding into structs.
func forEachRow(pf *parquet.File, cb func(row parquet.Row) error) error {
	buf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		rows := parquet.NewRowGroupReader(rg)
		for {
			n, readErr := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				if err := cb(buf[i]); err != nil {
					return err
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return fmt.Errorf("read rows: %w", readErr)
			}
		}
	}
	return nil
}

// writeParquet writes rows to path via the generic writer, creating parent
// directories if needed.
func writeParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
