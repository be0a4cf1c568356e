package cli

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/catalog"
	"github.com/openshelf/bookdex/internal/index"
)

func strp(s string) *string { return &s }
func i64p(v int64) *int64   { return &v }

func writeTestInput(t *testing.T, path string) {
	t.Helper()
	rows := []catalog.InputRow{
		{Key: "OL1W", Title: strp("Dune"), BookText: "Dune. A desert planet.", CoverID: i64p(101)},
		{Key: "OL2W", Title: strp("Foundation"), BookText: "Foundation. Psychohistory."},
		{Key: "OL3W", Title: strp("Empty"), BookText: ""}, // skipped
	}
	if err := catalog.WriteInput(path, rows); err != nil {
		t.Fatalf("write input: %v", err)
	}
}

func TestEmbedThenBuildIndex_DryRun(t *testing.T) {
	log = zap.NewNop()
	dir := t.TempDir()

	inputPath := filepath.Join(dir, "input.parquet")
	embPath := filepath.Join(dir, "embeddings.parquet")
	indexPath := filepath.Join(dir, "index.bin")
	metaPath := filepath.Join(dir, "meta.parquet")

	writeTestInput(t, inputPath)

	embedFlags.input = inputPath
	embedFlags.output = embPath
	embedFlags.model = "dry-run-model"
	embedFlags.dimensions = 8
	embedFlags.batchSize = 2
	embedFlags.dryRun = true
	embedFlags.resume = false

	if err := runEmbed(embedCmd, nil); err != nil {
		t.Fatalf("embed: %v", err)
	}

	embRows, err := catalog.ReadEmbeddings(embPath)
	if err != nil {
		t.Fatalf("read embeddings: %v", err)
	}
	if len(embRows) != 2 {
		t.Fatalf("expected 2 embedded rows (empty text skipped), got %d", len(embRows))
	}
	for _, r := range embRows {
		if len(r.Embedding) != 8 {
			t.Errorf("key %s: dim = %d, want 8", r.Key, len(r.Embedding))
		}
		if r.Model != "dry-run-model" {
			t.Errorf("key %s: model = %q", r.Key, r.Model)
		}
		if r.EmbeddedAt == "" {
			t.Errorf("key %s: embedded_at missing", r.Key)
		}
	}

	buildIndexFlags.embeddings = embPath
	buildIndexFlags.indexPath = indexPath
	buildIndexFlags.metaPath = metaPath

	if err := runBuildIndex(buildIndexCmd, nil); err != nil {
		t.Fatalf("build-index: %v", err)
	}

	ix, err := index.Load(indexPath)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	meta, err := catalog.LoadMeta(metaPath)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}

	if ix.Len() != meta.Len() {
		t.Fatalf("index has %d vectors, meta has %d rows", ix.Len(), meta.Len())
	}
	if ix.Len() != 2 {
		t.Fatalf("expected 2 vectors, got %d", ix.Len())
	}

	// Row alignment: meta row 0 must be the first embedded key.
	m, err := meta.ByPosition(0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Key != "OL1W" || m.Title != "Dune" || m.CoverID != 101 {
		t.Errorf("unexpected row 0: %+v", m)
	}
}

func TestEmbed_Resume(t *testing.T) {
	log = zap.NewNop()
	dir := t.TempDir()

	inputPath := filepath.Join(dir, "input.parquet")
	embPath := filepath.Join(dir, "embeddings.parquet")
	writeTestInput(t, inputPath)

	// Pre-seed the output with one already-embedded key.
	pre := []catalog.EmbeddingRow{
		{Key: "OL1W", Title: strp("Dune"), Model: "dry-run-model", EmbeddedAt: "2026-01-01T00:00:00Z",
			Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}},
	}
	if err := catalog.WriteEmbeddings(embPath, pre); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	embedFlags.input = inputPath
	embedFlags.output = embPath
	embedFlags.model = "dry-run-model"
	embedFlags.dimensions = 8
	embedFlags.batchSize = 10
	embedFlags.dryRun = true
	embedFlags.resume = true

	if err := runEmbed(embedCmd, nil); err != nil {
		t.Fatalf("embed: %v", err)
	}

	rows, err := catalog.ReadEmbeddings(embPath)
	if err != nil {
		t.Fatalf("read embeddings: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after resume, got %d", len(rows))
	}

	byKey := make(map[string]catalog.EmbeddingRow)
	for _, r := range rows {
		byKey[r.Key] = r
	}
	// The pre-seeded row must be carried over untouched.
	if got := byKey["OL1W"]; got.EmbeddedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("resumed row was re-embedded: %+v", got)
	}
	if _, ok := byKey["OL2W"]; !ok {
		t.Error("pending key OL2W was not embedded")
	}
}

func TestBuildIndex_DuplicateKeyAborts(t *testing.T) {
	log = zap.NewNop()
	dir := t.TempDir()

	embPath := filepath.Join(dir, "embeddings.parquet")
	rows := []catalog.EmbeddingRow{
		{Key: "dup", Embedding: []float32{1, 0}},
		{Key: "dup", Embedding: []float32{0, 1}},
	}
	if err := catalog.WriteEmbeddings(embPath, rows); err != nil {
		t.Fatal(err)
	}

	buildIndexFlags.embeddings = embPath
	buildIndexFlags.indexPath = filepath.Join(dir, "index.bin")
	buildIndexFlags.metaPath = filepath.Join(dir, "meta.parquet")

	if err := runBuildIndex(buildIndexCmd, nil); err == nil {
		t.Fatal("expected duplicate key to abort the build")
	}
}

func TestBuildIndex_DropsRowsWithoutEmbedding(t *testing.T) {
	log = zap.NewNop()
	dir := t.TempDir()

	embPath := filepath.Join(dir, "embeddings.parquet")
	rows := []catalog.EmbeddingRow{
		{Key: "a", Embedding: []float32{1, 0}},
		{Key: "b"}, // no embedding
		{Key: "c", Embedding: []float32{0, 1}},
	}
	if err := catalog.WriteEmbeddings(embPath, rows); err != nil {
		t.Fatal(err)
	}

	buildIndexFlags.embeddings = embPath
	buildIndexFlags.indexPath = filepath.Join(dir, "index.bin")
	buildIndexFlags.metaPath = filepath.Join(dir, "meta.parquet")

	if err := runBuildIndex(buildIndexCmd, nil); err != nil {
		t.Fatalf("build-index: %v", err)
	}

	ix, err := index.Load(buildIndexFlags.indexPath)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 2 {
		t.Errorf("expected 2 vectors, got %d", ix.Len())
	}

	meta, err := catalog.LoadMeta(buildIndexFlags.metaPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := meta.PositionOf("b"); ok {
		t.Error("dropped key must not appear in metadata")
	}
}
