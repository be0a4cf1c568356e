package request

import (
	"fmt"

	"github.com/openshelf/bookdex/internal/domain"
)

// SimilarRequest is a validated "books like this one" query, seeded by an
// existing item key rather than free text.
type SimilarRequest struct {
	key  string
	topK int
}

// NewSimilar validates and normalizes similar request parameters.
func NewSimilar(key string, topK int) (SimilarRequest, error) {
	if key == "" {
		return SimilarRequest{}, fmt.Errorf("%w: key is required", domain.ErrInvalidQuery)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return SimilarRequest{key: key, topK: topK}, nil
}

// Key returns the seed item key.
func (r *SimilarRequest) Key() string { return r.key }

// TopK returns the number of nearest neighbors to retrieve.
func (r *SimilarRequest) TopK() int { return r.topK }
