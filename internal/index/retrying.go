package index

import (
	"context"

	"jobkb/internal/kb"
	"jobkb/internal/retry"
)

// WithRetry applies policy to every call of idx. Writes are idempotent by
// chunk id, so a retried Replace or Insert converges to the same state.
func WithRetry(idx Index, policy retry.Policy) Index {
	return &retrying{Index: idx, policy: policy}
}

type retrying struct {
	Index
	policy retry.Policy
}

func (r *retrying) EnsureCollection(ctx context.Context) error {
	return retry.Do(ctx, r.policy, "ensure collection", r.Index.EnsureCollection)
}

func (r *retrying) Insert(ctx context.Context, chunks []kb.DocumentChunk) error {
	return retry.Do(ctx, r.policy, "insert", func(ctx context.Context) error {
		return r.Index.Insert(ctx, chunks)
	})
}

func (r *retrying) Replace(ctx context.Context, documentName string, chunks []kb.DocumentChunk) (int, error) {
	return retry.Value(ctx, r.policy, "replace", func(ctx context.Context) (int, error) {
		return r.Index.Replace(ctx, documentName, chunks)
	})
}

func (r *retrying) Prune(ctx context.Context, documentName string, keep int) (int, error) {
	return retry.Value(ctx, r.policy, "prune", func(ctx context.Context) (int, error) {
		return r.Index.Prune(ctx, documentName, keep)
	})
}

func (r *retrying) Delete(ctx context.Context, documentName string) (int, error) {
	return retry.Value(ctx, r.policy, "delete", func(ctx context.Context) (int, error) {
		return r.Index.Delete(ctx, documentName)
	})
}

func (r *retrying) Search(ctx context.Context, vector []float32, topK int, filter kb.Filter) ([]kb.Hit, error) {
	return retry.Value(ctx, r.policy, "search", func(ctx context.Context) ([]kb.Hit, error) {
		return r.Index.Search(ctx, vector, topK, filter)
	})
}

func (r *retrying) Match(ctx context.Context, vector []float32, terms []string, filter kb.Filter, limit int) ([]kb.Hit, error) {
	return retry.Value(ctx, r.policy, "match", func(ctx context.Context) ([]kb.Hit, error) {
		return r.Index.Match(ctx, vector, terms, filter, limit)
	})
}

func (r *retrying) Stats(ctx context.Context) ([]kb.DocumentStats, error) {
	return retry.Value(ctx, r.policy, "stats", r.Index.Stats)
}
