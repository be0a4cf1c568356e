package retrieval

import (
	"context"

	"github.com/openshelf/bookdex/internal/domain"
)

// VectorIndex is the storage contract for nearest-neighbor search.
type VectorIndex interface {
	Len() int
	Search(query []float32, k int) (scores []float64, rows []int, err error)
	Reconstruct(row int) ([]float32, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
