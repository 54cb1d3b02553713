package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Ledger remembers which files were ingested and in what state, so directory
// ingestion can skip files that have not changed since.
type Ledger struct {
	path string

	mu    sync.Mutex
	Files map[string]FileInfo `json:"files"`
}

// FileInfo is the state of a file at its last successful ingestion.
type FileInfo struct {
	Document     string    `json:"document"`
	JobType      string    `json:"job_type"`
	Section      string    `json:"section"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
}

// OpenLedger loads the ledger at path, starting empty if the file is absent.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, Files: map[string]FileInfo{}}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", path, err)
	}
	if l.Files == nil {
		l.Files = map[string]FileInfo{}
	}
	return l, nil
}

func (l *Ledger) save() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(l)
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Unchanged reports whether doc's file is recorded with the same size,
// modification time and metadata.
func (l *Ledger) Unchanged(doc Document, fi os.FileInfo) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.Files[key(doc.Path)]
	return ok &&
		rec.Document == doc.Name &&
		rec.JobType == doc.JobType &&
		rec.Section == doc.Section &&
		rec.Size == fi.Size() &&
		rec.LastModified.Equal(fi.ModTime())
}

// Record stores doc's file state and writes the ledger.
func (l *Ledger) Record(doc Document, fi os.FileInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Files[key(doc.Path)] = FileInfo{
		Document:     doc.Name,
		JobType:      doc.JobType,
		Section:      doc.Section,
		LastModified: fi.ModTime(),
		Size:         fi.Size(),
	}
	return l.save()
}

// Forget drops every file recorded under document and writes the ledger.
func (l *Ledger) Forget(document string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	for path, rec := range l.Files {
		if rec.Document == document {
			delete(l.Files, path)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return l.save()
}
