package domain

import "errors"

var (
	// ErrKeyNotFound signals a book key absent from the metadata table.
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalidQuery signals a malformed search request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrResourceLoad signals a missing or unreadable engine resource at construction.
	ErrResourceLoad = errors.New("resource load failed")
	// ErrRowMisaligned signals a metadata table whose row count does not match the index.
	ErrRowMisaligned = errors.New("metadata rows misaligned with index")
	// ErrDimensionMismatch signals a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
