package config

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"jobkb/internal/kb"
)

// Backends and providers accepted by Validate.
const (
	BackendChromem = "chromem"
	BackendSQLite  = "sqlite"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	DataDir      string `env:"DATA_DIR" envDefault:"./data"`
	IndexBackend string `env:"INDEX_BACKEND" envDefault:"chromem"`
	Collection   string `env:"COLLECTION" envDefault:"job_documents"`

	EmbedProvider    string `env:"EMBED_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbedModel       string `env:"EMBED_MODEL" envDefault:"text-embedding-3-large"`
	EmbedDimensions  int    `env:"EMBED_DIMENSIONS" envDefault:"3072"`
	OllamaURL        string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbedModel string `env:"OLLAMA_EMBED_MODEL" envDefault:"nomic-embed-text"`

	ChunkSize     int `env:"CHUNK_SIZE" envDefault:"512"`
	ChunkOverlap  int `env:"CHUNK_OVERLAP" envDefault:"102"`
	ChunkLookback int `env:"CHUNK_LOOKBACK" envDefault:"64"`

	TopK                 int     `env:"TOP_K" envDefault:"5"`
	SimilarityThreshold  float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.7"`
	OverFetchFactor      int     `env:"OVERFETCH_FACTOR" envDefault:"3"`
	HybridSemanticWeight float64 `env:"HYBRID_SEMANTIC_WEIGHT" envDefault:"0.6"`
	HybridKeywordWeight  float64 `env:"HYBRID_KEYWORD_WEIGHT" envDefault:"0.4"`
	DefaultStrategy      string  `env:"DEFAULT_STRATEGY" envDefault:"hybrid"`

	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"200ms"`
	RetryMaxDelay  time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5s"`
	CallTimeout    time.Duration `env:"CALL_TIMEOUT" envDefault:"20s"`

	EmbedRateLimit   float64 `env:"EMBED_RATE_LIMIT" envDefault:"0"`
	EmbedConcurrency int     `env:"EMBED_CONCURRENCY" envDefault:"4"`
	QueryCacheSize   int     `env:"QUERY_CACHE_SIZE" envDefault:"256"`

	Verbose bool `env:"VERBOSE" envDefault:"false"`
}

func Init(cfg interface{}) error {
	return env.Parse(cfg)
}

// Load reads envFile when given (a missing default .env is fine) and parses
// the environment into a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, kb.Validationf("env_file", "%v", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := Init(cfg); err != nil {
		return nil, kb.Validationf("config", "%v", err)
	}
	return cfg, nil
}

// ChromemDir is where the chromem backend persists the collection.
func (c *Config) ChromemDir() string {
	return filepath.Join(c.DataDir, "chromem")
}

// SQLitePath is the database file of the sqlite backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, c.Collection+".db")
}

// LedgerPath records which files have been ingested and when.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ingested.json")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, kb.Validationf(field, format, args...))
	}

	switch c.IndexBackend {
	case BackendChromem, BackendSQLite:
	default:
		add("INDEX_BACKEND", "want chromem or sqlite, got %q", c.IndexBackend)
	}
	if c.Collection == "" {
		add("COLLECTION", "must not be empty")
	}

	switch c.EmbedProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			add("OPENAI_API_KEY", "required for the openai provider")
		}
	case ProviderOllama:
	default:
		add("EMBED_PROVIDER", "want openai or ollama, got %q", c.EmbedProvider)
	}
	if c.EmbedDimensions <= 0 {
		add("EMBED_DIMENSIONS", "must be positive, got %d", c.EmbedDimensions)
	}

	if c.ChunkSize <= 0 {
		add("CHUNK_SIZE", "must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		add("CHUNK_OVERLAP", "must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.ChunkLookback < 0 {
		add("CHUNK_LOOKBACK", "must not be negative, got %d", c.ChunkLookback)
	}

	if c.TopK <= 0 {
		add("TOP_K", "must be positive, got %d", c.TopK)
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		add("SIMILARITY_THRESHOLD", "must be within [-1, 1], got %v", c.SimilarityThreshold)
	}
	if c.OverFetchFactor < 1 {
		add("OVERFETCH_FACTOR", "must be at least 1, got %d", c.OverFetchFactor)
	}
	if c.HybridSemanticWeight < 0 || c.HybridKeywordWeight < 0 {
		add("HYBRID_*_WEIGHT", "must not be negative")
	} else if c.HybridSemanticWeight+c.HybridKeywordWeight == 0 {
		add("HYBRID_*_WEIGHT", "must not both be zero")
	}
	if _, err := kb.ParseStrategy(c.DefaultStrategy); err != nil {
		errs = append(errs, err)
	}

	if c.RetryAttempts < 1 {
		add("RETRY_ATTEMPTS", "must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 || c.CallTimeout < 0 {
		add("RETRY_*", "durations must not be negative")
	}
	if c.EmbedRateLimit < 0 {
		add("EMBED_RATE_LIMIT", "must not be negative, got %v", c.EmbedRateLimit)
	}
	if c.EmbedConcurrency < 1 {
		add("EMBED_CONCURRENCY", "must be at least 1, got %d", c.EmbedConcurrency)
	}

	return errors.Join(errs...)
}
