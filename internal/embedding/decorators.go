package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"jobkb/internal/retry"
)

// WithRetry retries each call under policy. Batches are retried as a whole.
func WithRetry(p Provider, policy retry.Policy) Provider {
	return &retrying{Provider: p, policy: policy}
}

type retrying struct {
	Provider
	policy retry.Policy
}

func (r *retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	return retry.Value(ctx, r.policy, "embed", func(ctx context.Context) ([]float32, error) {
		return r.Provider.Embed(ctx, text)
	})
}

func (r *retrying) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return retry.Value(ctx, r.policy, "embed batch", func(ctx context.Context) ([][]float32, error) {
		return r.Provider.EmbedBatch(ctx, texts)
	})
}

// WithRateLimit makes every call wait for a token from limiter first.
func WithRateLimit(p Provider, limiter *rate.Limiter) Provider {
	if limiter == nil {
		return p
	}
	return &limited{Provider: p, limiter: limiter}
}

// NewLimiter builds a limiter allowing perSecond calls with a burst of the
// same size. perSecond <= 0 means unlimited and returns nil.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type limited struct {
	Provider
	limiter *rate.Limiter
}

func (l *limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l.Provider.Embed(ctx, text)
}

func (l *limited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return l.Provider.EmbedBatch(ctx, texts)
}

// WithCache memoises single-text embeddings in an LRU of the given size.
// Repeated queries from concurrent chat sessions hit the cache instead of the
// provider. Batches bypass it.
func WithCache(p Provider, size int) (Provider, error) {
	if size <= 0 {
		return p, nil
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &cached{Provider: p, cache: cache}, nil
}

type cached struct {
	Provider
	cache *lru.Cache[string, []float32]
}

func (c *cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}
