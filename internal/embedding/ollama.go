package embedding

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"

	"jobkb/internal/kb"
)

// DefaultOllamaModel is a 768-dimensional local embedding model.
const DefaultOllamaModel = "nomic-embed-text"

// Func wraps a chromem embedding function as a Provider. Errors are mapped
// onto the provider error taxonomy from the HTTP status in the message.
type Func struct {
	name       string
	dimensions int
	fn         chromem.EmbeddingFunc
}

// NewFunc wraps fn. dimensions is the expected vector length.
func NewFunc(name string, dimensions int, fn chromem.EmbeddingFunc) *Func {
	return &Func{name: name, dimensions: dimensions, fn: fn}
}

// NewOllama embeds through a local Ollama server.
func NewOllama(baseURL, model string, dimensions int) *Func {
	if model == "" {
		model = DefaultOllamaModel
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}
	return NewFunc("ollama:"+model, dimensions, chromem.NewEmbeddingFuncOllama(model, baseURL))
}

func (f *Func) Name() string    { return f.name }
func (f *Func) Dimensions() int { return f.dimensions }

func (f *Func) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	v, err := f.fn(ctx, text)
	if err != nil {
		return nil, classify(err)
	}
	if err := checkVector("embed", v, f.dimensions); err != nil {
		return nil, err
	}
	return v, nil
}

func (f *Func) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, f, texts)
}

var statusRe = regexp.MustCompile(`embedding API: (\d{3})`)

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pe *kb.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	out := &kb.ProviderError{Op: "embed", Retryable: true, Err: err}
	if m := statusRe.FindStringSubmatch(err.Error()); m != nil {
		out.Status, _ = strconv.Atoi(m[1])
		out.Retryable = out.Status == 429 || out.Status >= 500
	}
	return out
}
