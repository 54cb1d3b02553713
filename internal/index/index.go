// Package index stores embedded chunks and answers filtered nearest-neighbour
// queries under cosine similarity.
package index

import (
	"context"
	"fmt"
	"sort"

	"jobkb/internal/kb"
)

// Metric is the only distance supported.
const Metric = "cosine"

// Index is the vector store behind ingestion and retrieval.
type Index interface {
	// EnsureCollection creates the backing structure if absent. Safe to call
	// repeatedly.
	EnsureCollection(ctx context.Context) error

	// Insert upserts chunks by id.
	Insert(ctx context.Context, chunks []kb.DocumentChunk) error

	// Replace removes every chunk of documentName and inserts chunks in its
	// place, returning how many were removed.
	Replace(ctx context.Context, documentName string, chunks []kb.DocumentChunk) (int, error)

	// Prune removes the chunks of documentName whose chunk index is keep or
	// higher, returning how many were removed.
	Prune(ctx context.Context, documentName string, keep int) (int, error)

	// Delete removes every chunk of documentName.
	Delete(ctx context.Context, documentName string) (int, error)

	// Search returns up to topK chunks matching filter, most similar first.
	Search(ctx context.Context, vector []float32, topK int, filter kb.Filter) ([]kb.Hit, error)

	// Match returns chunks matching filter whose text contains at least one
	// of terms, scored by similarity to vector. limit <= 0 means no limit.
	Match(ctx context.Context, vector []float32, terms []string, filter kb.Filter, limit int) ([]kb.Hit, error)

	// Stats reports chunk counts per document.
	Stats(ctx context.Context) ([]kb.DocumentStats, error)

	Dimensions() int
	Close() error
}

func checkChunks(chunks []kb.DocumentChunk, dim int) error {
	for _, c := range chunks {
		if c.ID == "" {
			return kb.Validationf("chunk", "%s#%d has no id", c.DocumentName, c.ChunkIndex)
		}
		if c.DocumentName == "" {
			return kb.Validationf("document_name", "chunk %s has no document name", c.ID)
		}
		if c.ChunkIndex < 0 {
			return kb.Validationf("chunk_index", "must not be negative, got %d", c.ChunkIndex)
		}
		if err := checkVector(c.Vector, dim); err != nil {
			return fmt.Errorf("chunk %s#%d: %w", c.DocumentName, c.ChunkIndex, err)
		}
	}
	return nil
}

func checkQuery(vector []float32, dim int) error {
	if err := checkVector(vector, dim); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// checkVector enforces the dimensionality and rejects zero vectors, whose
// cosine similarity is undefined.
func checkVector(v []float32, dim int) error {
	if err := kb.CheckDimensions(v, dim); err != nil {
		return err
	}
	for _, x := range v {
		if x != 0 {
			return nil
		}
	}
	return kb.Validationf("vector", "must not be all zeros")
}

// unavailable wraps backend failures; validation errors and cancellations
// pass through untouched.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if kb.IsValidation(err) || kb.IsCanceled(err) {
		return err
	}
	return &kb.IndexError{Op: op, Err: err}
}

func groupStats(chunks []kb.DocumentChunk) []kb.DocumentStats {
	byDoc := map[string]*kb.DocumentStats{}
	var order []string
	for _, c := range chunks {
		st, ok := byDoc[c.DocumentName]
		if !ok {
			st = &kb.DocumentStats{DocumentName: c.DocumentName, JobType: c.JobType, Section: c.Section}
			byDoc[c.DocumentName] = st
			order = append(order, c.DocumentName)
		}
		st.Chunks++
	}
	sort.Strings(order)

	out := make([]kb.DocumentStats, 0, len(order))
	for _, name := range order {
		out = append(out, *byDoc[name])
	}
	return out
}
