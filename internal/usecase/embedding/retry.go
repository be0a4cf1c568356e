package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/domain"
)

// Retry defaults tuned for provider rate limits during bulk runs.
const (
	DefaultRetryAttempts = 5
	DefaultRetryInitial  = 2 * time.Second
)

// RetryingEmbedder retries transient provider failures with exponential backoff.
// Invalid input errors are not retried.
type RetryingEmbedder struct {
	inner    domain.BatchEmbedder
	attempts int
	initial  time.Duration
	logger   *zap.Logger
}

// NewRetryingEmbedder wraps a batch embedder with retry. attempts <= 0 and
// initial <= 0 fall back to the defaults.
func NewRetryingEmbedder(
	inner domain.BatchEmbedder, attempts int, initial time.Duration, logger *zap.Logger,
) *RetryingEmbedder {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if initial <= 0 {
		initial = DefaultRetryInitial
	}
	return &RetryingEmbedder{inner: inner, attempts: attempts, initial: initial, logger: logger}
}

// Embed retries single-text embedding via BatchEmbed.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	batch, err := r.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	if len(batch.Embeddings) != 1 {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: expected 1 embedding, got %d",
			domain.ErrEmbeddingProviderError, len(batch.Embeddings))
	}
	return domain.EmbeddingResult{
		Embedding:    batch.Embeddings[0],
		PromptTokens: batch.PromptTokens,
		TotalTokens:  batch.TotalTokens,
	}, nil
}

// BatchEmbed delegates to inner, backing off between failed attempts.
func (r *RetryingEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	var lastErr error
	backoff := r.initial

	for attempt := 1; attempt <= r.attempts; attempt++ {
		result, err := r.inner.BatchEmbed(ctx, texts)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, domain.ErrInvalidQuery) {
			return domain.BatchEmbeddingResult{}, err
		}
		lastErr = err

		if attempt == r.attempts {
			break
		}

		r.logger.Warn("Embedding attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return domain.BatchEmbeddingResult{}, fmt.Errorf("retry wait: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return domain.BatchEmbeddingResult{}, fmt.Errorf("embed after %d attempts: %w", r.attempts, lastErr)
}
