package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/catalog"
	"github.com/openshelf/bookdex/internal/domain"
	"github.com/openshelf/bookdex/internal/domain/book"
	"github.com/openshelf/bookdex/internal/domain/search/request"
	"github.com/openshelf/bookdex/internal/metrics"
)

// DefaultSnippetLen is the display length for result snippets.
const DefaultSnippetLen = 600

// Engine answers search queries over a prebuilt index and its aligned tables.
// All lookups are in-memory and read-only after construction, so methods are
// safe for concurrent use.
type Engine struct {
	index   VectorIndex
	meta    *catalog.MetaTable
	content *catalog.ContentTable
	embed   Embedder
	logger  *zap.Logger
}

// NewEngine wires the engine and verifies the positional join: the metadata
// table must have exactly one row per index vector. A mismatch means the
// artifacts come from different builds and every result would carry the
// wrong title, so construction fails instead.
func NewEngine(
	index VectorIndex,
	meta *catalog.MetaTable,
	content *catalog.ContentTable,
	embed Embedder,
	logger *zap.Logger,
) (*Engine, error) {
	if index.Len() != meta.Len() {
		return nil, fmt.Errorf("%w: index has %d vectors, metadata has %d rows",
			domain.ErrRowMisaligned, index.Len(), meta.Len())
	}
	return &Engine{
		index:   index,
		meta:    meta,
		content: content,
		embed:   embed,
		logger:  logger,
	}, nil
}

// SearchByText embeds the query and returns the topK nearest books.
func (e *Engine) SearchByText(ctx context.Context, req *request.Request) ([]book.Hit, error) {
	start := time.Now()

	hits, err := e.searchByText(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchesTotal.WithLabelValues("text", status).Inc()
	metrics.SearchDuration.WithLabelValues("text").Observe(time.Since(start).Seconds())

	return hits, err
}

func (e *Engine) searchByText(ctx context.Context, req *request.Request) ([]book.Hit, error) {
	embResult, err := e.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	// Providers advertise unit-norm output but small drift shows up in
	// practice; renormalize so scores stay comparable across providers.
	vec := domain.Normalize(embResult.Embedding)

	scores, rows, err := e.index.Search(vec, req.TopK())
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	hits := e.enrich(scores, rows)

	e.logger.Debug("Text search completed",
		zap.Int("top_k", req.TopK()),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// SearchByKey returns the topK books nearest to an existing item, excluding
// the item itself. The seed vector is read back from the index, not
// re-embedded, so the neighborhood is exactly the one the index was built
// with.
func (e *Engine) SearchByKey(ctx context.Context, req *request.SimilarRequest) ([]book.Hit, error) {
	start := time.Now()

	hits, err := e.searchByKey(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchesTotal.WithLabelValues("key", status).Inc()
	metrics.SearchDuration.WithLabelValues("key").Observe(time.Since(start).Seconds())

	return hits, err
}

func (e *Engine) searchByKey(_ context.Context, req *request.SimilarRequest) ([]book.Hit, error) {
	pos, ok := e.meta.PositionOf(req.Key())
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrKeyNotFound, req.Key())
	}

	seed, err := e.index.Reconstruct(pos)
	if err != nil {
		return nil, fmt.Errorf("reconstruct seed vector: %w", err)
	}

	// Over-fetch by one: the seed scores highest against itself and is
	// dropped below. When the seed somehow falls outside the window the
	// result is one short rather than padded.
	scores, rows, err := e.index.Search(seed, req.TopK()+1)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	kept := make([]book.Hit, 0, req.TopK())
	for i, row := range rows {
		if row == pos {
			continue
		}
		if len(kept) == req.TopK() {
			break
		}
		kept = append(kept, e.hitFor(scores[i], row))
	}

	e.logger.Debug("Similar search completed",
		zap.String("seed", req.Key()),
		zap.Int("top_k", req.TopK()),
		zap.Int("results", len(kept)),
	)

	return kept, nil
}

// Seed returns the metadata for an existing item key.
func (e *Engine) Seed(key string) (book.Meta, error) {
	pos, ok := e.meta.PositionOf(key)
	if !ok {
		return book.Meta{}, fmt.Errorf("%w: %q", domain.ErrKeyNotFound, key)
	}
	m, err := e.meta.ByPosition(pos)
	if err != nil {
		return book.Meta{}, err
	}
	return m, nil
}

// Description returns the full stored description for a key, or "" when the
// catalog has none.
func (e *Engine) Description(key string) string {
	return e.content.Description(key)
}

// Snippet returns a display snippet of the description for a key. maxLen <= 0
// falls back to DefaultSnippetLen.
func (e *Engine) Snippet(key string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultSnippetLen
	}
	return book.Snippet(e.content.Description(key), maxLen)
}

func (e *Engine) enrich(scores []float64, rows []int) []book.Hit {
	hits := make([]book.Hit, 0, len(rows))
	for i, row := range rows {
		hits = append(hits, e.hitFor(scores[i], row))
	}
	return hits
}

func (e *Engine) hitFor(score float64, row int) book.Hit {
	hit := book.Hit{Score: score}

	m, err := e.meta.ByPosition(row)
	if err != nil {
		// Construction guarantees alignment; an out-of-range row here
		// is an index bug, not bad data. Keep the score, log, move on.
		e.logger.Error("Index returned row outside metadata table",
			zap.Int("row", row), zap.Error(err))
		return hit
	}

	hit.Key = m.Key
	hit.Title = m.Title
	hit.Snippet = book.Snippet(e.content.Description(m.Key), DefaultSnippetLen)
	if m.CoverID != 0 {
		cover := m.CoverID
		hit.CoverID = &cover
	}
	return hit
}
