package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/openshelf/bookdex/internal/domain"
)

// Factory builds an embedder for a model id. Called at most once per id.
type Factory func(ctx context.Context, model string) (domain.Embedder, error)

// ModelCache memoizes embedder construction per model id. Concurrent callers
// asking for the same model share a single in-flight construction; a failed
// construction is not cached and the next caller retries.
type ModelCache struct {
	factory Factory

	mu     sync.RWMutex
	models map[string]domain.Embedder
	group  singleflight.Group
}

// NewModelCache creates a cache around the given factory.
func NewModelCache(factory Factory) *ModelCache {
	return &ModelCache{
		factory: factory,
		models:  make(map[string]domain.Embedder),
	}
}

// Get returns the embedder for model, constructing it on first use.
func (c *ModelCache) Get(ctx context.Context, model string) (domain.Embedder, error) {
	c.mu.RLock()
	emb, ok := c.models[model]
	c.mu.RUnlock()
	if ok {
		return emb, nil
	}

	v, err, _ := c.group.Do(model, func() (any, error) {
		// Re-check under singleflight: another flight may have stored it.
		c.mu.RLock()
		cached, ok := c.models[model]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		built, err := c.factory(ctx, model)
		if err != nil {
			return nil, fmt.Errorf("build embedder %q: %w", model, err)
		}

		c.mu.Lock()
		c.models[model] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Embedder), nil
}
