package index

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/openshelf/bookdex/internal/domain"
)

func mustAdd(t *testing.T, ix *FlatIndex, vec []float32) int {
	t.Helper()
	row, err := ix.Add(vec)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return row
}

func TestAdd_AssignsSequentialRows(t *testing.T) {
	ix, err := New(3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 4; i++ {
		vec := []float32{float32(i + 1), 0, 0}
		if row := mustAdd(t, ix, vec); row != i {
			t.Errorf("row = %d, want %d", row, i)
		}
	}
	if ix.Len() != 4 {
		t.Errorf("Len = %d, want 4", ix.Len())
	}
}

func TestAdd_NormalizesVectors(t *testing.T) {
	ix, _ := New(2)
	mustAdd(t, ix, []float32{3, 4})
	vec, err := ix.Reconstruct(0)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if norm := domain.L2Norm(vec); math.Abs(norm-1) > 1e-5 {
		t.Errorf("stored norm = %v, want 1.0", norm)
	}
}

func TestAdd_ZeroVectorKept(t *testing.T) {
	ix, _ := New(2)
	mustAdd(t, ix, []float32{0, 0})
	vec, _ := ix.Reconstruct(0)
	if vec[0] != 0 || vec[1] != 0 {
		t.Errorf("zero vector was altered: %v", vec)
	}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix, _ := New(3)
	if _, err := ix.Add([]float32{1, 2}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearch_RanksByInnerProduct(t *testing.T) {
	ix, _ := New(2)
	mustAdd(t, ix, []float32{1, 0})  // row 0
	mustAdd(t, ix, []float32{0, 1})  // row 1
	mustAdd(t, ix, []float32{1, 1})  // row 2, normalized to (0.707, 0.707)
	mustAdd(t, ix, []float32{-1, 0}) // row 3

	scores, rows, err := ix.Search([]float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	wantRows := []int{0, 2, 1, 3}
	for i, want := range wantRows {
		if rows[i] != want {
			t.Errorf("rows[%d] = %d, want %d (rows=%v)", i, rows[i], want, rows)
		}
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1] {
			t.Errorf("scores not descending: %v", scores)
		}
	}
	if math.Abs(scores[0]-1) > 1e-5 {
		t.Errorf("top score = %v, want ~1.0", scores[0])
	}
}

func TestSearch_TiesBrokenByLowerRow(t *testing.T) {
	ix, _ := New(2)
	for i := 0; i < 3; i++ {
		mustAdd(t, ix, []float32{1, 0})
	}
	_, rows, err := ix.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i, row := range rows {
		if row != i {
			t.Errorf("rows = %v, want [0 1 2]", rows)
			break
		}
	}
}

func TestSearch_KClampedToSize(t *testing.T) {
	ix, _ := New(2)
	mustAdd(t, ix, []float32{1, 0})
	mustAdd(t, ix, []float32{0, 1})

	scores, rows, err := ix.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(scores) != 2 || len(rows) != 2 {
		t.Errorf("got %d scores, %d rows, want 2 each", len(scores), len(rows))
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix, _ := New(3)
	mustAdd(t, ix, []float32{1, 0, 0})
	if _, _, err := ix.Search([]float32{1, 0}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestReconstruct_OutOfRange(t *testing.T) {
	ix, _ := New(2)
	mustAdd(t, ix, []float32{1, 0})
	for _, row := range []int{-1, 1, 100} {
		if _, err := ix.Reconstruct(row); err == nil {
			t.Errorf("Reconstruct(%d): expected error", row)
		}
	}
}

func TestReconstruct_ReturnsCopy(t *testing.T) {
	ix, _ := New(2)
	mustAdd(t, ix, []float32{1, 0})
	vec, _ := ix.Reconstruct(0)
	vec[0] = 42
	again, _ := ix.Reconstruct(0)
	if again[0] == 42 {
		t.Error("Reconstruct returned a view into index storage")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ix, _ := New(3)
	mustAdd(t, ix, []float32{1, 0, 0})
	mustAdd(t, ix, []float32{0, 3, 4})
	mustAdd(t, ix, []float32{0, 0, 0})

	path := filepath.Join(t.TempDir(), "books.index")
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Dim() != 3 || loaded.Len() != 3 {
		t.Fatalf("loaded dim=%d len=%d, want 3/3", loaded.Dim(), loaded.Len())
	}
	for row := 0; row < 3; row++ {
		orig, _ := ix.Reconstruct(row)
		got, _ := loaded.Reconstruct(row)
		for i := range orig {
			if orig[i] != got[i] {
				t.Errorf("row %d component %d: %v != %v", row, i, got[i], orig[i])
			}
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.index"))
	if !errors.Is(err, domain.ErrResourceLoad) {
		t.Errorf("expected ErrResourceLoad, got %v", err)
	}
}

func TestLoad_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.index")
	if err := os.WriteFile(path, []byte("nope-not-an-index"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, domain.ErrResourceLoad) {
		t.Errorf("expected ErrResourceLoad, got %v", err)
	}
}
