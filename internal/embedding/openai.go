package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobkb/internal/kb"
)

const (
	// DefaultOpenAIBaseURL is the public OpenAI API.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// DefaultOpenAIModel produces 3072-dimensional vectors.
	DefaultOpenAIModel = "text-embedding-3-large"
)

var modelDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OpenAI calls the /embeddings endpoint of an OpenAI-compatible API.
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// NewOpenAI validates cfg and fills defaults.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, kb.Validationf("openai_api_key", "must be set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = modelDimensions[cfg.Model]
	}
	if cfg.Dimensions <= 0 {
		return nil, kb.Validationf("embed_dimensions", "unknown for model %q, set it explicitly", cfg.Model)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *OpenAI) Name() string    { return "openai:" + c.model }
func (c *OpenAI) Dimensions() int { return c.dimensions }

func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if err := checkText(t); err != nil {
			return nil, err
		}
	}

	body := embeddingRequest{Input: texts, Model: c.model}
	// Only the text-embedding-3 family accepts a dimensions override.
	if strings.HasPrefix(c.model, "text-embedding-3") {
		body.Dimensions = c.dimensions
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &kb.ProviderError{Op: "embed", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &kb.ProviderError{Op: "embed", Status: resp.StatusCode, Retryable: true, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, payload)
	}

	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &kb.ProviderError{Op: "embed", Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Data) != len(texts) {
		return nil, &kb.ProviderError{
			Op:  "embed",
			Err: fmt.Errorf("got %d embeddings for %d inputs", len(out.Data), len(texts)),
		}
	}

	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, &kb.ProviderError{Op: "embed", Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		if err := checkVector("embed", d.Embedding, c.dimensions); err != nil {
			return nil, err
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// statusError maps an HTTP failure onto the error taxonomy: bad requests are
// validation errors, auth failures are final, throttling and server errors
// are retried.
func statusError(resp *http.Response, payload []byte) error {
	msg := strings.TrimSpace(string(payload))
	var body apiErrorBody
	if json.Unmarshal(payload, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return kb.Validationf("text", "rejected by embedding API: %s", msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &kb.ProviderError{Op: "embed", Status: resp.StatusCode, Err: errors.New("authentication failed: " + msg)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &kb.ProviderError{
			Op:         "embed",
			Status:     resp.StatusCode,
			Retryable:  true,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        errors.New(msg),
		}
	default:
		return &kb.ProviderError{Op: "embed", Status: resp.StatusCode, Err: errors.New(msg)}
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
