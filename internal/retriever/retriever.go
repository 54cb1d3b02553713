// Package retriever ranks indexed chunks for a natural-language query using
// semantic, threshold-filtered or hybrid scoring.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"jobkb/internal/embedding"
	"jobkb/internal/index"
	"jobkb/internal/kb"
	"jobkb/internal/lexical"
	"jobkb/internal/logger"
)

// Weights blends semantic similarity and keyword overlap in hybrid scoring.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
}

// DefaultWeights favours meaning over exact wording, 60/40.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.6, Keyword: 0.4}
}

// normalized checks the weights and scales them to sum to one.
func (w Weights) normalized() (Weights, error) {
	if w.Semantic < 0 || w.Keyword < 0 || math.IsNaN(w.Semantic) || math.IsNaN(w.Keyword) {
		return w, kb.Validationf("weights", "must not be negative, got %.2f/%.2f", w.Semantic, w.Keyword)
	}
	sum := w.Semantic + w.Keyword
	if sum == 0 {
		return w, kb.Validationf("weights", "semantic and keyword weights are both zero")
	}
	return Weights{Semantic: w.Semantic / sum, Keyword: w.Keyword / sum}, nil
}

// Config holds the defaults applied to requests that leave a knob unset.
type Config struct {
	TopK      int
	Strategy  kb.Strategy
	Threshold float64
	// OverFetch multiplies TopK for the candidate searches of the similarity
	// and hybrid strategies.
	OverFetch int
	Weights   Weights
}

// DefaultConfig returns top 5, hybrid, threshold 0.7, over-fetch x3, 60/40.
func DefaultConfig() Config {
	return Config{
		TopK:      5,
		Strategy:  kb.StrategyHybrid,
		Threshold: 0.7,
		OverFetch: 3,
		Weights:   DefaultWeights(),
	}
}

// Validate rejects defaults that no request could run with.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return kb.Validationf("top_k", "must be positive, got %d", c.TopK)
	}
	if _, err := kb.ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if err := checkThreshold(c.Threshold); err != nil {
		return err
	}
	if c.OverFetch < 1 {
		return kb.Validationf("overfetch", "must be at least 1, got %d", c.OverFetch)
	}
	_, err := c.Weights.normalized()
	return err
}

// Request is one retrieval call. Zero values fall back to the Config.
type Request struct {
	Query     string
	Strategy  kb.Strategy
	TopK      int
	Filter    kb.Filter
	Threshold *float64
	Weights   *Weights
}

// Retriever answers queries against an index. It holds no per-query state
// and is safe for concurrent use.
type Retriever struct {
	index    index.Index
	embedder embedding.Provider
	scorer   lexical.Scorer
	cfg      Config
}

// New builds a retriever. A nil scorer uses lexical.Coverage.
func New(idx index.Index, embedder embedding.Provider, scorer lexical.Scorer, cfg Config) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if idx.Dimensions() != embedder.Dimensions() {
		return nil, kb.Validationf("dimensions", "embedder %s produces %d dimensions, index expects %d",
			embedder.Name(), embedder.Dimensions(), idx.Dimensions())
	}
	if scorer == nil {
		scorer = lexical.Coverage{}
	}
	return &Retriever{index: idx, embedder: embedder, scorer: scorer, cfg: cfg}, nil
}

// Config returns the defaults in use.
func (r *Retriever) Config() Config { return r.cfg }

// plan is a request with every default resolved.
type plan struct {
	query     string
	strategy  kb.Strategy
	topK      int
	filter    kb.Filter
	threshold float64
	weights   Weights
}

func (r *Retriever) resolve(req Request) (plan, error) {
	p := plan{
		query:     strings.TrimSpace(req.Query),
		strategy:  r.cfg.Strategy,
		topK:      r.cfg.TopK,
		filter:    req.Filter,
		threshold: r.cfg.Threshold,
		weights:   r.cfg.Weights,
	}
	if p.query == "" {
		return p, kb.Validationf("query", "must not be empty")
	}
	if req.Strategy != "" {
		s, err := kb.ParseStrategy(string(req.Strategy))
		if err != nil {
			return p, err
		}
		p.strategy = s
	}
	switch {
	case req.TopK < 0:
		return p, kb.Validationf("top_k", "must be positive, got %d", req.TopK)
	case req.TopK > 0:
		p.topK = req.TopK
	}
	if req.Threshold != nil {
		if err := checkThreshold(*req.Threshold); err != nil {
			return p, err
		}
		p.threshold = *req.Threshold
	}
	if req.Weights != nil {
		p.weights = *req.Weights
	}
	w, err := p.weights.normalized()
	if err != nil {
		return p, err
	}
	p.weights = w
	return p, nil
}

func checkThreshold(t float64) error {
	if math.IsNaN(t) || t < -1 || t > 1 {
		return kb.Validationf("threshold", "must be within [-1, 1], got %v", t)
	}
	return nil
}

// Retrieve ranks chunks for req. An empty slice with a nil error means nothing
// matched; provider and index failures are returned as errors.
func (r *Retriever) Retrieve(ctx context.Context, req Request) ([]kb.RetrievalResult, error) {
	p, err := r.resolve(req)
	if err != nil {
		return nil, err
	}

	vec, err := r.embedder.Embed(ctx, p.query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var results []kb.RetrievalResult
	switch p.strategy {
	case kb.StrategySemantic:
		results, err = r.semantic(ctx, p, vec)
	case kb.StrategySimilarity:
		results, err = r.similarity(ctx, p, vec)
	default:
		results, err = r.hybrid(ctx, p, vec)
	}
	if err != nil {
		return nil, err
	}

	rank(results)
	if len(results) > p.topK {
		results = results[:p.topK]
	}
	logger.Debug("retrieve %s %q: %d results", p.strategy, p.query, len(results))
	return results, nil
}

func (r *Retriever) semantic(ctx context.Context, p plan, vec []float32) ([]kb.RetrievalResult, error) {
	hits, err := r.index.Search(ctx, vec, p.topK, p.filter)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	out := make([]kb.RetrievalResult, len(hits))
	for i, h := range hits {
		out[i] = fromHit(h, h.Similarity)
	}
	return out, nil
}

func (r *Retriever) similarity(ctx context.Context, p plan, vec []float32) ([]kb.RetrievalResult, error) {
	hits, err := r.index.Search(ctx, vec, p.topK*r.cfg.OverFetch, p.filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	// Backends score in float32; compare at that precision so a similarity
	// equal to the threshold is kept.
	cutoff := float64(float32(p.threshold))
	out := make([]kb.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < cutoff {
			continue
		}
		out = append(out, fromHit(h, h.Similarity))
	}
	logger.Debug("similarity: %d of %d candidates at or above %.2f", len(out), len(hits), p.threshold)
	return out, nil
}

func (r *Retriever) hybrid(ctx context.Context, p plan, vec []float32) ([]kb.RetrievalResult, error) {
	hits, err := r.index.Search(ctx, vec, p.topK*r.cfg.OverFetch, p.filter)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	matches, err := r.index.Match(ctx, vec, lexical.Terms(p.query), p.filter, 0)
	if err != nil {
		return nil, fmt.Errorf("keyword match: %w", err)
	}

	seen := make(map[string]bool, len(hits)+len(matches))
	out := make([]kb.RetrievalResult, 0, len(hits)+len(matches))
	for _, h := range append(hits, matches...) {
		if seen[h.Chunk.ID] {
			continue
		}
		seen[h.Chunk.ID] = true

		kw := clamp01(r.scorer.Score(p.query, h.Chunk.Text))
		res := fromHit(h, p.weights.Semantic*h.Similarity+p.weights.Keyword*kw)
		res.KeywordScore = kw
		out = append(out, res)
	}
	logger.Debug("hybrid: %d semantic + %d keyword candidates, %d unique", len(hits), len(matches), len(out))
	return out, nil
}

func fromHit(h kb.Hit, score float64) kb.RetrievalResult {
	return kb.RetrievalResult{
		Chunk:         h.Chunk.WithoutVector(),
		Score:         score,
		SemanticScore: h.Similarity,
	}
}

// rank sorts by score, breaks ties with kb.TieBreak and numbers from 1.
func rank(results []kb.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return kb.TieBreak(results[i].Chunk, results[j].Chunk)
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
