// Package request defines validated search request value types.
package request

import (
	"fmt"

	"github.com/openshelf/bookdex/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultTopK    = 10
	MaxTopK        = 50
)

// Request is a validated free-text search query.
type Request struct {
	query string
	topK  int
}

// New validates and normalizes search parameters.
// Defaults: topK=10. TopK is clamped to MaxTopK.
func New(query string, topK int) (Request, error) {
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidQuery, MaxQueryLength)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return Request{query: query, topK: topK}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// TopK returns the number of nearest neighbors to retrieve.
func (r *Request) TopK() int { return r.topK }
