package health

import "context"

// IndexReader reports how many vectors the loaded index holds.
type IndexReader interface {
	Len() int
}

// CachePinger checks cache store availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
