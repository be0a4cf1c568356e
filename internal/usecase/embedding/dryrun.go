package embedding

import (
	"context"

	"github.com/openshelf/bookdex/internal/domain"
)

// DryRunEmbedder produces deterministic pseudo-embeddings without calling a
// provider. Useful for pipeline rehearsals and offline tests: the same text
// always maps to the same unit-norm vector.
type DryRunEmbedder struct {
	dim int
}

// NewDryRunEmbedder creates a deterministic embedder with the given dimension.
func NewDryRunEmbedder(dim int) *DryRunEmbedder {
	return &DryRunEmbedder{dim: dim}
}

// Dim returns the embedding dimension.
func (d *DryRunEmbedder) Dim() int { return d.dim }

// Embed derives a vector from the byte content of text.
func (d *DryRunEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec := d.vectorFor(text)
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// BatchEmbed derives one vector per input text.
func (d *DryRunEmbedder) BatchEmbed(
	_ context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = d.vectorFor(text)
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func (d *DryRunEmbedder) vectorFor(text string) []float32 {
	var seed int
	for _, b := range []byte(text) {
		seed += int(b)
	}
	seed %= 9973

	vec := make([]float32, d.dim)
	for i := range vec {
		vec[i] = float32((seed+i*17)%1000) / 1000
	}
	domain.Normalize(vec)
	return vec
}
