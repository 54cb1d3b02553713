// Package embedding converts text into dense vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"jobkb/internal/kb"
)

// Provider embeds text into vectors of a fixed dimensionality.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return kb.Validationf("text", "must not be empty")
	}
	return nil
}

func checkVector(name string, v []float32, dim int) error {
	if len(v) != dim {
		return &kb.ProviderError{
			Op:  name,
			Err: fmt.Errorf("returned %d dimensions, expected %d", len(v), dim),
		}
	}
	return nil
}

// embedEach implements EmbedBatch on top of Embed for providers without a
// batch endpoint.
func embedEach(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
