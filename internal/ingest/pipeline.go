// Package ingest materialises documents into embedded, indexed chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"jobkb/internal/chunker"
	"jobkb/internal/embedding"
	"jobkb/internal/index"
	"jobkb/internal/kb"
	"jobkb/internal/logger"
)

// Sources reads document files into plain text. *extract.Factory satisfies it.
type Sources interface {
	Extract(ctx context.Context, path string) (string, error)
	Supports(path string) bool
}

// Document is one ingestion request. Either Path or Text must be set; Text
// wins when both are.
type Document struct {
	Path    string `yaml:"path"`
	Text    string `yaml:"text"`
	Name    string `yaml:"name"`
	JobType string `yaml:"job_type"`
	Section string `yaml:"section"`
}

// withDefaults fills Name from the file name and JobType with the default.
func (d Document) withDefaults() (Document, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" && d.Path != "" {
		base := filepath.Base(d.Path)
		d.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if d.Name == "" {
		return d, kb.Validationf("document_name", "must not be empty")
	}
	if d.Path == "" && d.Text == "" {
		return d, kb.Validationf("source", "document %q has neither a path nor text", d.Name)
	}
	if d.JobType == "" {
		d.JobType = kb.DefaultJobType
	}
	return d, nil
}

// Pipeline runs extract, split, embed and write for one document at a time.
// It is safe for concurrent use on different documents.
type Pipeline struct {
	index       index.Index
	embedder    embedding.Provider
	chunker     chunker.Chunker
	sources     Sources
	concurrency int
	ledger      *Ledger
}

// NewPipeline wires the collaborators. concurrency bounds in-flight
// embedding calls per document.
func NewPipeline(idx index.Index, embedder embedding.Provider, ch chunker.Chunker, sources Sources, concurrency int) (*Pipeline, error) {
	if idx.Dimensions() != embedder.Dimensions() {
		return nil, kb.Validationf("dimensions", "embedder %s produces %d dimensions, index expects %d",
			embedder.Name(), embedder.Dimensions(), idx.Dimensions())
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		index:       idx,
		embedder:    embedder,
		chunker:     ch,
		sources:     sources,
		concurrency: concurrency,
	}, nil
}

// SetLedger makes batch ingestion skip files recorded in l as unchanged and
// keeps l up to date on ingestion and deletion.
func (p *Pipeline) SetLedger(l *Ledger) { p.ledger = l }

// IngestDocument replaces every chunk of doc in the index. When some chunks
// cannot be embedded the rest are still written and a *kb.PartialIngestError
// lists both sets; Resume retries the failed ones. Failed positions keep
// whatever an earlier ingestion stored there, and a document whose chunks all
// fail is left untouched.
func (p *Pipeline) IngestDocument(ctx context.Context, doc Document) (kb.IngestResult, error) {
	doc, err := doc.withDefaults()
	if err != nil {
		return kb.IngestResult{}, err
	}
	result := kb.IngestResult{DocumentName: doc.Name}

	pieces, err := p.split(ctx, doc)
	if err != nil {
		return result, err
	}

	chunks, written, failed, embedErr := p.embed(ctx, doc, pieces)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}

	if len(failed) > 0 {
		result.ChunksFailed = failed
		if len(chunks) > 0 {
			if err := p.index.Insert(ctx, chunks); err != nil {
				return result, fmt.Errorf("write %q: %w", doc.Name, err)
			}
			pruned, err := p.index.Prune(ctx, doc.Name, len(pieces))
			if err != nil {
				return result, fmt.Errorf("prune %q: %w", doc.Name, err)
			}
			result.ChunksWritten = len(chunks)
			result.ChunksDeleted = pruned
		}
		log.Printf("⚠️  Ingested %q partially: %d/%d chunks written", doc.Name, len(written), len(pieces))
		return result, kb.NewPartialIngestError(doc.Name, written, failed, embedErr)
	}

	deleted, err := p.index.Replace(ctx, doc.Name, chunks)
	if err != nil {
		return result, fmt.Errorf("write %q: %w", doc.Name, err)
	}
	result.ChunksDeleted = deleted
	result.ChunksWritten = len(chunks)

	log.Printf("✅ Ingested %q: %d chunks (%d replaced)", doc.Name, len(chunks), deleted)
	return result, nil
}

// Resume re-embeds and upserts only the chunks at indices, leaving the rest
// of the document untouched. The source must be unchanged since the failed
// ingestion.
func (p *Pipeline) Resume(ctx context.Context, doc Document, indices []int) (kb.IngestResult, error) {
	doc, err := doc.withDefaults()
	if err != nil {
		return kb.IngestResult{}, err
	}
	result := kb.IngestResult{DocumentName: doc.Name}

	pieces, err := p.split(ctx, doc)
	if err != nil {
		return result, err
	}

	selected := make([]chunker.Piece, 0, len(indices))
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(pieces) {
			return result, kb.Validationf("chunk_index", "%d out of range, %q has %d chunks", i, doc.Name, len(pieces))
		}
		if !seen[i] {
			seen[i] = true
			selected = append(selected, pieces[i])
		}
	}
	if len(selected) == 0 {
		return result, nil
	}

	chunks, written, failed, embedErr := p.embed(ctx, doc, selected)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if len(chunks) > 0 {
		if err := p.index.Insert(ctx, chunks); err != nil {
			return result, fmt.Errorf("write %q: %w", doc.Name, err)
		}
	}
	result.ChunksWritten = len(chunks)

	if len(failed) > 0 {
		result.ChunksFailed = failed
		return result, kb.NewPartialIngestError(doc.Name, written, failed, embedErr)
	}
	log.Printf("✅ Resumed %q: %d chunks written", doc.Name, len(chunks))
	return result, nil
}

// DeleteDocument removes every chunk of name and reports how many there were.
func (p *Pipeline) DeleteDocument(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, kb.Validationf("document_name", "must not be empty")
	}
	n, err := p.index.Delete(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("delete %q: %w", name, err)
	}
	if p.ledger != nil {
		if err := p.ledger.Forget(name); err != nil {
			log.Printf("⚠️  Failed to update ledger: %v", err)
		}
	}
	log.Printf("🗑️  Deleted %q: %d chunks", name, n)
	return n, nil
}

func (p *Pipeline) split(ctx context.Context, doc Document) ([]chunker.Piece, error) {
	text := doc.Text
	if text == "" {
		var err error
		if text, err = p.sources.Extract(ctx, doc.Path); err != nil {
			return nil, fmt.Errorf("extract %q: %w", doc.Name, err)
		}
		logger.Debug("extracted %d bytes from %s", len(text), doc.Path)
	}
	return p.chunker.Split(text), nil
}

// embed runs the embedder over pieces with bounded concurrency. Chunks come
// back in piece order; failed holds the indices whose embedding gave up.
func (p *Pipeline) embed(ctx context.Context, doc Document, pieces []chunker.Piece) (chunks []kb.DocumentChunk, written, failed []int, err error) {
	sem := make(chan struct{}, p.concurrency)
	results := make([]*kb.DocumentChunk, len(pieces))

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for i, piece := range pieces {
		wg.Add(1)
		go func(slot int, piece chunker.Piece) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := p.embedder.Embed(ctx, piece.Text)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("chunk %d: %w", piece.Index, err))
				mu.Unlock()
				return
			}
			results[slot] = &kb.DocumentChunk{
				ID:           chunker.ChunkID(doc.Name, piece.Index),
				Vector:       vec,
				Text:         piece.Text,
				DocumentName: doc.Name,
				JobType:      doc.JobType,
				Section:      doc.Section,
				ChunkIndex:   piece.Index,
			}
		}(i, piece)
	}
	wg.Wait()

	chunks = make([]kb.DocumentChunk, 0, len(pieces))
	for i, c := range results {
		if c == nil {
			failed = append(failed, pieces[i].Index)
			continue
		}
		written = append(written, c.ChunkIndex)
		chunks = append(chunks, *c)
	}
	logger.Debug("embedded %s: %d ok, %d failed", doc.Name, len(written), len(failed))
	return chunks, written, failed, errors.Join(errs...)
}
