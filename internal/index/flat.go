// Package index provides an exact inner-product nearest-neighbor index over
// unit-normalized vectors. Row positions are assigned in insertion order and
// are the join key to the metadata table; they are stable for the lifetime of
// one built index but not across rebuilds.
package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/openshelf/bookdex/internal/domain"
)

// FlatIndex stores D-dimensional float32 vectors contiguously and searches
// them by brute-force inner product. Vectors are defensively normalized on
// Add, so inner product equals cosine similarity. The index is built offline
// and read-only while serving; concurrent Search/Reconstruct calls are safe
// because nothing mutates after load.
type FlatIndex struct {
	dim  int
	data []float32 // len = count*dim
}

// New creates an empty flat index with the given dimension.
func New(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dim returns the vector dimension.
func (ix *FlatIndex) Dim() int { return ix.dim }

// Len returns the number of stored vectors.
func (ix *FlatIndex) Len() int {
	return len(ix.data) / ix.dim
}

// Add appends a vector, normalizing it first (zero vectors are stored as-is).
// Returns the assigned row position.
func (ix *FlatIndex) Add(vec []float32) (int, error) {
	if len(vec) != ix.dim {
		return 0, fmt.Errorf("%w: got %d, index expects %d", domain.ErrDimensionMismatch, len(vec), ix.dim)
	}
	stored := make([]float32, ix.dim)
	copy(stored, vec)
	domain.Normalize(stored)

	row := ix.Len()
	ix.data = append(ix.data, stored...)
	return row, nil
}

// Search returns up to k rows with the highest inner product against query,
// in descending score order. Exact ties are broken by lower row position, so
// results are deterministic for identical vectors.
func (ix *FlatIndex) Search(query []float32, k int) (scores []float64, rows []int, err error) {
	if len(query) != ix.dim {
		return nil, nil, fmt.Errorf("%w: got %d, index expects %d", domain.ErrDimensionMismatch, len(query), ix.dim)
	}
	n := ix.Len()
	if k <= 0 || n == 0 {
		return nil, nil, nil
	}
	if k > n {
		k = n
	}

	all := make([]float64, n)
	for row := 0; row < n; row++ {
		all[row] = domain.InnerProduct(query, ix.row(row))
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if all[a] != all[b] {
			return all[a] > all[b]
		}
		return a < b
	})

	scores = make([]float64, k)
	rows = make([]int, k)
	for i := 0; i < k; i++ {
		rows[i] = order[i]
		scores[i] = all[order[i]]
	}
	return scores, rows, nil
}

// Reconstruct returns a copy of the stored vector at the given row position.
// This is bit-identical to what was indexed, so similarity queries seeded by
// an existing item are immune to embedding-model nondeterminism.
func (ix *FlatIndex) Reconstruct(row int) ([]float32, error) {
	if row < 0 || row >= ix.Len() {
		return nil, fmt.Errorf("row %d out of range [0, %d)", row, ix.Len())
	}
	out := make([]float32, ix.dim)
	copy(out, ix.row(row))
	return out, nil
}

func (ix *FlatIndex) row(i int) []float32 {
	return ix.data[i*ix.dim : (i+1)*ix.dim]
}

// File format: magic "BDX1", then little-endian dim u32, count u32, then
// count*dim float32 values.
var fileMagic = [4]byte{'B', 'D', 'X', '1'}

// Save writes the index to path, creating parent directories if needed.
func (ix *FlatIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(fileMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ix.dim)); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ix.Len())); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, 4)
	for _, v := range ix.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector data: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	return nil
}

// Load reads an index written by Save.
func Load(path string) (*FlatIndex, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open index: %w", domain.ErrResourceLoad, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %w", domain.ErrResourceLoad, err)
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("%w: not a bookdex index file", domain.ErrResourceLoad)
	}

	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("%w: read dimension: %w", domain.ErrResourceLoad, err)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", domain.ErrResourceLoad)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: read count: %w", domain.ErrResourceLoad, err)
	}

	data := make([]float32, int(dim)*int(count))
	raw := make([]byte, len(data)*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: read vector data: %w", domain.ErrResourceLoad, err)
	}
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return &FlatIndex{dim: int(dim), data: data}, nil
}
