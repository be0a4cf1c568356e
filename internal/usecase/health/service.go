package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status    Status
	IndexSize int
	Checks    map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	index     IndexReader
	cache     CachePinger
	embedding EmbeddingChecker
}

// New creates a Service. cache and embedding can be nil.
func New(index IndexReader, cache CachePinger, embedding EmbeddingChecker) *Service {
	return &Service{index: index, cache: cache, embedding: embedding}
}

// Check runs health checks against all components. Search serves entirely
// from the loaded index, so an index with vectors keeps the service usable
// even when cache or provider checks fail.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	size := s.index.Len()

	if size > 0 {
		checks["index"] = CheckOK
	} else {
		checks["index"] = CheckError
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, IndexSize: size, Checks: checks}
}
