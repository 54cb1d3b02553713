package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"jobkb/internal/kb"
	"jobkb/internal/logger"
)

// FileError ties a batch failure to the file that caused it.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// IngestDirectory ingests every supported file directly inside dir, in name
// order. A failing file does not stop the rest; the returned error joins one
// *FileError per failure. With a ledger set, files unchanged since their last
// ingestion are skipped unless force is true.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir, jobType, section string, force bool) ([]kb.IngestResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kb.Validationf("directory", "not found: %s", dir)
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var docs []Document
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() || !p.sources.Supports(path) {
			continue
		}
		docs = append(docs, Document{Path: path, JobType: jobType, Section: section})
	}
	log.Printf("📂 Found %d documents in %s", len(docs), dir)

	return p.ingestAll(ctx, docs, force)
}

// Manifest lists documents to ingest together.
type Manifest struct {
	Documents []Document `yaml:"documents"`
}

// LoadManifest reads a YAML manifest. Relative paths resolve against the
// manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kb.Validationf("manifest", "not found: %s", path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, kb.Validationf("manifest", "%s: %v", path, err)
	}

	base := filepath.Dir(path)
	for i, d := range m.Documents {
		if d.Path != "" && !filepath.IsAbs(d.Path) {
			m.Documents[i].Path = filepath.Join(base, d.Path)
		}
	}
	return &m, nil
}

// IngestManifest ingests the manifest's documents in order, continuing past
// failures like IngestDirectory.
func (p *Pipeline) IngestManifest(ctx context.Context, m *Manifest, force bool) ([]kb.IngestResult, error) {
	return p.ingestAll(ctx, m.Documents, force)
}

func (p *Pipeline) ingestAll(ctx context.Context, docs []Document, force bool) ([]kb.IngestResult, error) {
	results := make([]kb.IngestResult, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := p.ingestFile(ctx, doc, force)
		if err != nil {
			log.Printf("❌ %s: %v", source(doc), err)
			errs = append(errs, &FileError{Path: source(doc), Err: err})
		}
		// Partial ingestions wrote chunks and belong in the results.
		if err == nil || errors.Is(err, kb.ErrPartialIngest) {
			results = append(results, res)
		}
	}
	return results, errors.Join(errs...)
}

// ingestFile consults the ledger around IngestDocument for file-backed
// documents.
func (p *Pipeline) ingestFile(ctx context.Context, doc Document, force bool) (kb.IngestResult, error) {
	if p.ledger == nil || doc.Path == "" || doc.Text != "" {
		return p.IngestDocument(ctx, doc)
	}

	resolved, err := doc.withDefaults()
	if err != nil {
		return kb.IngestResult{}, err
	}
	fi, err := os.Stat(resolved.Path)
	if err != nil {
		// Let IngestDocument report the missing file.
		return p.IngestDocument(ctx, doc)
	}
	if !force && p.ledger.Unchanged(resolved, fi) {
		logger.Debug("skipping unchanged %s", resolved.Path)
		return kb.IngestResult{DocumentName: resolved.Name, Skipped: true}, nil
	}

	res, err := p.IngestDocument(ctx, doc)
	if err != nil {
		return res, err
	}
	if err := p.ledger.Record(resolved, fi); err != nil {
		log.Printf("⚠️  Failed to update ledger: %v", err)
	}
	return res, nil
}

func source(d Document) string {
	if d.Path != "" {
		return d.Path
	}
	return d.Name
}
