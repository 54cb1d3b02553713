// Package extract turns document files into plain text for chunking.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"jobkb/internal/kb"
)

// Extractor reads one document and returns its plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)

	// Name is used in logs.
	Name() string
}

// Factory picks an extractor by file extension.
type Factory struct {
	byExt map[string]Extractor
}

// NewFactory registers the text, markdown and PDF extractors.
func NewFactory() *Factory {
	text := Text{}
	md := Markdown{}
	return &Factory{byExt: map[string]Extractor{
		".txt":      text,
		".text":     text,
		".md":       md,
		".markdown": md,
		".pdf":      PDF{},
	}}
}

// Register adds or replaces the extractor for ext (".ext").
func (f *Factory) Register(ext string, e Extractor) {
	f.byExt[strings.ToLower(ext)] = e
}

// For returns the extractor for path or a validation error for unknown types.
func (f *Factory) For(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := f.byExt[ext]
	if !ok {
		return nil, kb.Validationf("source", "unsupported file type %q (supported: %s)",
			ext, strings.Join(f.Extensions(), ", "))
	}
	return e, nil
}

// Supports reports whether path has a registered extension.
func (f *Factory) Supports(path string) bool {
	_, ok := f.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions, sorted.
func (f *Factory) Extensions() []string {
	exts := make([]string, 0, len(f.byExt))
	for ext := range f.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract reads path with the matching extractor.
func (f *Factory) Extract(ctx context.Context, path string) (string, error) {
	e, err := f.For(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", kb.Validationf("source", "file not found: %s", path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	text, err := e.Extract(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%s extractor: %w", e.Name(), err)
	}
	return text, nil
}
