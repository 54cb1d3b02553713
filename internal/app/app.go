package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"jobkb/internal/chunker"
	"jobkb/internal/config"
	"jobkb/internal/embedding"
	"jobkb/internal/extract"
	"jobkb/internal/index"
	"jobkb/internal/ingest"
	"jobkb/internal/kb"
	"jobkb/internal/logger"
	"jobkb/internal/retriever"
	"jobkb/internal/retry"
)

// App owns the knowledge base: one index, one embedding provider, and the
// ingestion pipeline and retriever built on them.
type App struct {
	cfg       *config.Config
	index     index.Index
	snapshots Snapshotter
	pipeline  *ingest.Pipeline
	retriever *retriever.Retriever
}

// Snapshotter is implemented by backends that can export and import a
// portable copy of the collection.
type Snapshotter interface {
	Export(path string) error
	Import(ctx context.Context, path string) error
}

// Deps are the collaborators New builds from the configuration. Tests supply
// their own.
type Deps struct {
	// Embedder embeds document chunks.
	Embedder embedding.Provider
	// QueryEmbedder embeds queries. Defaults to Embedder.
	QueryEmbedder embedding.Provider
	Index         index.Index
	// Ledger is optional; without it directory ingestion never skips files.
	Ledger *ingest.Ledger
}

// New validates cfg and builds the provider and index it names.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetVerbose(cfg.Verbose)

	policy := Policy(cfg)

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	provider = embedding.WithRetry(embedding.WithRateLimit(provider, embedding.NewLimiter(cfg.EmbedRateLimit)), policy)

	queries, err := embedding.WithCache(provider, cfg.QueryCacheSize)
	if err != nil {
		return nil, err
	}

	raw, err := newIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}

	ledger, err := ingest.OpenLedger(cfg.LedgerPath())
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ingestion ledger: %w", err)
	}

	a, err := NewWithDeps(cfg, Deps{
		Embedder:      provider,
		QueryEmbedder: queries,
		Index:         index.WithRetry(raw, policy),
		Ledger:        ledger,
	})
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	if s, ok := raw.(Snapshotter); ok {
		a.snapshots = s
	}

	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Index: %s (%s), embeddings: %s, %d dims", cfg.IndexBackend, cfg.Collection, provider.Name(), cfg.EmbedDimensions)
	return a, nil
}

// NewWithDeps assembles the pipeline and retriever around deps.
func NewWithDeps(cfg *config.Config, deps Deps) (*App, error) {
	if deps.Embedder == nil || deps.Index == nil {
		return nil, errors.New("app: embedder and index are required")
	}
	if deps.QueryEmbedder == nil {
		deps.QueryEmbedder = deps.Embedder
	}

	chunkCfg := chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap, Lookback: cfg.ChunkLookback}
	if err := chunkCfg.Validate(); err != nil {
		return nil, err
	}

	pipeline, err := ingest.NewPipeline(deps.Index, deps.Embedder, chunker.NewTextChunker(chunkCfg),
		extract.NewFactory(), cfg.EmbedConcurrency)
	if err != nil {
		return nil, err
	}
	if deps.Ledger != nil {
		pipeline.SetLedger(deps.Ledger)
	}

	strategy, err := kb.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		return nil, err
	}
	r, err := retriever.New(deps.Index, deps.QueryEmbedder, nil, retriever.Config{
		TopK:      cfg.TopK,
		Strategy:  strategy,
		Threshold: cfg.SimilarityThreshold,
		OverFetch: cfg.OverFetchFactor,
		Weights:   retriever.Weights{Semantic: cfg.HybridSemanticWeight, Keyword: cfg.HybridKeywordWeight},
	})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, index: deps.Index, pipeline: pipeline, retriever: r}
	if s, ok := deps.Index.(Snapshotter); ok {
		a.snapshots = s
	}
	return a, nil
}

// Policy is the retry policy every provider and index call runs under.
func Policy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Timeout:     cfg.CallTimeout,
	}
}

func newProvider(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		return embedding.NewOllama(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbedDimensions), nil
	default:
		client, err := embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.EmbedDimensions,
			Timeout:    cfg.CallTimeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func newIndex(cfg *config.Config) (index.Index, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch cfg.IndexBackend {
	case config.BackendSQLite:
		return index.NewSQLite(index.SQLiteConfig{Path: cfg.SQLitePath(), Dimensions: cfg.EmbedDimensions})
	default:
		return index.NewChromem(index.ChromemConfig{
			Dir:        cfg.ChromemDir(),
			Collection: cfg.Collection,
			Dimensions: cfg.EmbedDimensions,
		})
	}
}

// CheckProvider makes sure the embedding model is usable. For Ollama that
// means the server is up and the model is pulled; OpenAI needs no setup.
func (a *App) CheckProvider(ctx context.Context) error {
	if a.cfg.EmbedProvider != config.ProviderOllama {
		return nil
	}
	if err := embedding.EnsureOllamaModel(ctx, nil, a.cfg.OllamaURL, a.cfg.OllamaEmbedModel); err != nil {
		return fmt.Errorf("ollama model check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the index structure if absent. Safe to repeat.
func (a *App) EnsureCollection(ctx context.Context) error {
	return a.index.EnsureCollection(ctx)
}

func (a *App) IngestDocument(ctx context.Context, doc ingest.Document) (kb.IngestResult, error) {
	return a.pipeline.IngestDocument(ctx, doc)
}

// ResumeDocument retries the chunks a partial ingestion reported as failed.
func (a *App) ResumeDocument(ctx context.Context, doc ingest.Document, failed []int) (kb.IngestResult, error) {
	return a.pipeline.Resume(ctx, doc, failed)
}

func (a *App) IngestDirectory(ctx context.Context, dir, jobType, section string, force bool) ([]kb.IngestResult, error) {
	return a.pipeline.IngestDirectory(ctx, dir, jobType, section, force)
}

// IngestManifest loads the YAML manifest at path and ingests its documents.
func (a *App) IngestManifest(ctx context.Context, path string, force bool) ([]kb.IngestResult, error) {
	m, err := ingest.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return a.pipeline.IngestManifest(ctx, m, force)
}

func (a *App) DeleteDocument(ctx context.Context, name string) (int, error) {
	return a.pipeline.DeleteDocument(ctx, name)
}

func (a *App) Retrieve(ctx context.Context, req retriever.Request) ([]kb.RetrievalResult, error) {
	return a.retriever.Retrieve(ctx, req)
}

func (a *App) FormatContext(results []kb.RetrievalResult) string {
	return retriever.FormatContext(results)
}

// Retriever exposes the query engine for other front ends.
func (a *App) Retriever() *retriever.Retriever { return a.retriever }

func (a *App) Stats(ctx context.Context) ([]kb.DocumentStats, error) {
	return a.index.Stats(ctx)
}

// ErrNoSnapshots is returned by Export and Import on backends without
// snapshot support.
var ErrNoSnapshots = errors.New("index backend does not support snapshots")

// Export writes a snapshot of the collection to path.
func (a *App) Export(path string) error {
	if a.snapshots == nil {
		return ErrNoSnapshots
	}
	return a.snapshots.Export(path)
}

// Import replaces the collection with the snapshot at path.
func (a *App) Import(ctx context.Context, path string) error {
	if a.snapshots == nil {
		return ErrNoSnapshots
	}
	return a.snapshots.Import(ctx, path)
}

func (a *App) Close() error {
	return a.index.Close()
}
