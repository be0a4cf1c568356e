package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/domain"
)

type mockBatchEmbedder struct {
	mu         sync.Mutex
	batchCalls [][]string
	failFirst  int
	err        error
	dim        int
}

func (m *mockBatchEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := m.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

func (m *mockBatchEmbedder) BatchEmbed(
	_ context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls = append(m.batchCalls, texts)
	if m.failFirst > 0 {
		m.failFirst--
		err := m.err
		if err == nil {
			err = domain.ErrEmbeddingProviderError
		}
		return domain.BatchEmbeddingResult{}, err
	}
	dim := m.dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
		out[i][0] = 1
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: len(texts),
		TotalTokens:  len(texts),
	}, nil
}

func TestRetryingEmbedder_SucceedsAfterTransientFailures(t *testing.T) {
	inner := &mockBatchEmbedder{failFirst: 2}
	r := NewRetryingEmbedder(inner, 5, time.Millisecond, zap.NewNop())

	res, err := r.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if got := len(inner.batchCalls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRetryingEmbedder_ExhaustsAttempts(t *testing.T) {
	inner := &mockBatchEmbedder{failFirst: 100}
	r := NewRetryingEmbedder(inner, 3, time.Millisecond, zap.NewNop())

	_, err := r.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if got := len(inner.batchCalls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRetryingEmbedder_DoesNotRetryInvalidInput(t *testing.T) {
	inner := &mockBatchEmbedder{failFirst: 100, err: fmt.Errorf("empty text: %w", domain.ErrInvalidQuery)}
	r := NewRetryingEmbedder(inner, 5, time.Millisecond, zap.NewNop())

	_, err := r.BatchEmbed(context.Background(), []string{""})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if got := len(inner.batchCalls); got != 1 {
		t.Errorf("expected 1 attempt for invalid input, got %d", got)
	}
}

func TestRetryingEmbedder_ContextCancelDuringBackoff(t *testing.T) {
	inner := &mockBatchEmbedder{failFirst: 100}
	r := NewRetryingEmbedder(inner, 5, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.BatchEmbed(ctx, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInstrumentedEmbedder_ChunksLargeBatches(t *testing.T) {
	inner := &mockBatchEmbedder{}
	p := NewInstrumentedEmbedder(inner, "openai", "text-embedding-3-small", zap.NewNop())

	texts := make([]string, DefaultMaxAPIBatchSize+10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	res, err := p.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != len(texts) {
		t.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	if got := len(inner.batchCalls); got != 2 {
		t.Fatalf("expected 2 chunks, got %d", got)
	}
	if len(inner.batchCalls[0]) != DefaultMaxAPIBatchSize {
		t.Errorf("first chunk size = %d, want %d", len(inner.batchCalls[0]), DefaultMaxAPIBatchSize)
	}
	if len(inner.batchCalls[1]) != 10 {
		t.Errorf("second chunk size = %d, want 10", len(inner.batchCalls[1]))
	}
}

func TestInstrumentedEmbedder_EmptyBatch(t *testing.T) {
	inner := &mockBatchEmbedder{}
	p := NewInstrumentedEmbedder(inner, "openai", "text-embedding-3-small", zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 0 {
		t.Errorf("expected no embeddings, got %d", len(res.Embeddings))
	}
	if len(inner.batchCalls) != 0 {
		t.Errorf("expected no inner calls, got %d", len(inner.batchCalls))
	}
}

func TestModelCache_ConstructsOncePerModel(t *testing.T) {
	var built atomic.Int32
	cache := NewModelCache(func(_ context.Context, model string) (domain.Embedder, error) {
		built.Add(1)
		return NewDryRunEmbedder(8), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), "text-embedding-3-small"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := built.Load(); got != 1 {
		t.Errorf("expected factory to run once, ran %d times", got)
	}

	// A different model id triggers a second construction.
	if _, err := cache.Get(context.Background(), "text-embedding-3-large"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := built.Load(); got != 2 {
		t.Errorf("expected 2 constructions, got %d", got)
	}
}

func TestModelCache_FailedConstructionNotCached(t *testing.T) {
	var calls atomic.Int32
	cache := NewModelCache(func(_ context.Context, model string) (domain.Embedder, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("provider down")
		}
		return NewDryRunEmbedder(8), nil
	})

	if _, err := cache.Get(context.Background(), "m"); err == nil {
		t.Fatal("expected first Get to fail")
	}
	if _, err := cache.Get(context.Background(), "m"); err != nil {
		t.Fatalf("expected second Get to succeed, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 factory calls, got %d", got)
	}
}

func TestDryRunEmbedder_DeterministicUnitNorm(t *testing.T) {
	d := NewDryRunEmbedder(16)

	a1, err := d.Embed(context.Background(), "the moon is a harsh mistress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, _ := d.Embed(context.Background(), "the moon is a harsh mistress")
	b, _ := d.Embed(context.Background(), "a completely different text")

	if len(a1.Embedding) != 16 {
		t.Fatalf("expected dim 16, got %d", len(a1.Embedding))
	}
	for i := range a1.Embedding {
		if a1.Embedding[i] != a2.Embedding[i] {
			t.Fatal("same text produced different vectors")
		}
	}

	norm := domain.L2Norm(a1.Embedding)
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}

	same := true
	for i := range a1.Embedding {
		if a1.Embedding[i] != b.Embedding[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}
