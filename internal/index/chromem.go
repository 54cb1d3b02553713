package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"jobkb/internal/kb"
	"jobkb/internal/lexical"
)

// Metadata keys stored with every chromem document.
const (
	keyDocumentName = "document_name"
	keyJobType      = "job_type"
	keySection      = "section"
	keyChunkIndex   = "chunk_index"
)

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Dir persists the database. Empty keeps everything in memory.
	Dir        string
	Collection string
	Dimensions int
	Compress   bool
}

// Chromem is an Index backed by an embedded chromem-go database. Vectors are
// always supplied by the caller; the collection never embeds on its own.
type Chromem struct {
	cfg ChromemConfig
	db  *chromem.DB

	// writeMu serialises writers so a Replace is never interleaved with
	// another write to the same collection.
	writeMu sync.Mutex

	mu   sync.RWMutex
	coll *chromem.Collection
}

// NewChromem opens (or creates) the database. Call EnsureCollection before use.
func NewChromem(cfg ChromemConfig) (*Chromem, error) {
	if cfg.Dimensions <= 0 {
		return nil, kb.Validationf("dimensions", "must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Collection == "" {
		return nil, kb.Validationf("collection", "must not be empty")
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Dir == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		db, err = chromem.NewPersistentDB(cfg.Dir, cfg.Compress)
		if err != nil {
			return nil, &kb.IndexError{Op: "open", Err: err}
		}
	}
	return &Chromem{cfg: cfg, db: db}, nil
}

func (c *Chromem) Dimensions() int { return c.cfg.Dimensions }

// refuseEmbedding stands in for an embedding function: the index only stores
// vectors computed by the ingestion pipeline.
func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index does not embed text; pass vectors")
}

func (c *Chromem) EnsureCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.coll != nil {
		return nil
	}

	coll, err := c.db.GetOrCreateCollection(c.cfg.Collection, map[string]string{
		"dimensions": strconv.Itoa(c.cfg.Dimensions),
		"metric":     Metric,
	}, refuseEmbedding)
	if err != nil {
		return unavailable("ensure collection", err)
	}

	// A collection restored from disk must hold vectors of our size.
	if coll.Count() > 0 {
		if _, err := coll.QueryEmbedding(ctx, probe(c.cfg.Dimensions), 1, nil, nil); err != nil {
			return kb.Validationf("dimensions", "collection %q was built with a different dimensionality: %v",
				c.cfg.Collection, err)
		}
	}

	c.coll = coll
	log.Printf("✅ Collection %q ready (%d chunks, %d dims, %s)", c.cfg.Collection, coll.Count(), c.cfg.Dimensions, Metric)
	return nil
}

func (c *Chromem) collection() (*chromem.Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.coll == nil {
		return nil, &kb.IndexError{Op: "collection", Err: fmt.Errorf("collection %q not initialised", c.cfg.Collection)}
	}
	return c.coll, nil
}

func (c *Chromem) Insert(ctx context.Context, chunks []kb.DocumentChunk) error {
	if err := checkChunks(chunks, c.cfg.Dimensions); err != nil {
		return err
	}
	coll, err := c.collection()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return unavailable("insert", c.add(ctx, coll, chunks))
}

func (c *Chromem) Replace(ctx context.Context, documentName string, chunks []kb.DocumentChunk) (int, error) {
	if err := checkChunks(chunks, c.cfg.Dimensions); err != nil {
		return 0, err
	}
	coll, err := c.collection()
	if err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deleted, err := c.deleteDocument(ctx, coll, documentName)
	if err != nil {
		return 0, unavailable("replace", err)
	}
	return deleted, unavailable("replace", c.add(ctx, coll, chunks))
}

func (c *Chromem) Delete(ctx context.Context, documentName string) (int, error) {
	coll, err := c.collection()
	if err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.deleteDocument(ctx, coll, documentName)
	return n, unavailable("delete", err)
}

func (c *Chromem) Prune(ctx context.Context, documentName string, keep int) (int, error) {
	if documentName == "" {
		return 0, kb.Validationf("document_name", "must not be empty")
	}
	coll, err := c.collection()
	if err != nil {
		return 0, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	existing, err := c.all(ctx, coll, probe(c.cfg.Dimensions), map[string]string{keyDocumentName: documentName})
	if err != nil {
		return 0, unavailable("prune", err)
	}
	var stale []string
	for _, r := range existing {
		if toChunk(r).ChunkIndex >= keep {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := coll.Delete(ctx, nil, nil, stale...); err != nil {
		return 0, unavailable("prune", err)
	}
	return len(stale), nil
}

func (c *Chromem) add(ctx context.Context, coll *chromem.Collection, chunks []kb.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Embedding: ch.Vector,
			Metadata: map[string]string{
				keyDocumentName: ch.DocumentName,
				keyJobType:      ch.JobType,
				keySection:      ch.Section,
				keyChunkIndex:   strconv.Itoa(ch.ChunkIndex),
			},
		}
	}
	return coll.AddDocuments(ctx, docs, 1)
}

func (c *Chromem) deleteDocument(ctx context.Context, coll *chromem.Collection, documentName string) (int, error) {
	if documentName == "" {
		return 0, kb.Validationf("document_name", "must not be empty")
	}
	where := map[string]string{keyDocumentName: documentName}

	existing, err := c.all(ctx, coll, probe(c.cfg.Dimensions), where)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := coll.Delete(ctx, where, nil); err != nil {
		return 0, err
	}
	return len(existing), nil
}

func (c *Chromem) Search(ctx context.Context, vector []float32, topK int, filter kb.Filter) ([]kb.Hit, error) {
	if topK <= 0 {
		return nil, kb.Validationf("top_k", "must be positive, got %d", topK)
	}
	if err := checkQuery(vector, c.cfg.Dimensions); err != nil {
		return nil, err
	}
	coll, err := c.collection()
	if err != nil {
		return nil, err
	}

	total := coll.Count()
	if total == 0 {
		return []kb.Hit{}, nil
	}
	n := topK * 2
	if n > total {
		n = total
	}

	where := whereOf(filter)
	res, err := coll.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, unavailable("search", err)
	}
	// chromem picks arbitrarily among scores equal at its own cut. If that cut
	// reaches the score at topK, every tied chunk is needed for TieBreak.
	if len(res) == n && n < total && res[n-1].Similarity == res[topK-1].Similarity {
		if res, err = c.all(ctx, coll, vector, where); err != nil {
			return nil, unavailable("search", err)
		}
	}
	return kb.TopHits(toHits(res), topK), nil
}

func (c *Chromem) Match(ctx context.Context, vector []float32, terms []string, filter kb.Filter, limit int) ([]kb.Hit, error) {
	if err := checkQuery(vector, c.cfg.Dimensions); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return []kb.Hit{}, nil
	}
	coll, err := c.collection()
	if err != nil {
		return nil, err
	}

	res, err := c.all(ctx, coll, vector, whereOf(filter))
	if err != nil {
		return nil, unavailable("match", err)
	}

	hits := make([]kb.Hit, 0, len(res))
	for _, h := range toHits(res) {
		if lexical.ContainsAny(h.Chunk.Text, terms) {
			hits = append(hits, h)
		}
	}
	return kb.TopHits(hits, limit), nil
}

func (c *Chromem) Stats(ctx context.Context) ([]kb.DocumentStats, error) {
	coll, err := c.collection()
	if err != nil {
		return nil, err
	}
	res, err := c.all(ctx, coll, probe(c.cfg.Dimensions), nil)
	if err != nil {
		return nil, unavailable("stats", err)
	}

	chunks := make([]kb.DocumentChunk, len(res))
	for i, r := range res {
		chunks[i] = toChunk(r)
	}
	return groupStats(chunks), nil
}

// Export writes a compressed snapshot of the collection to path.
func (c *Chromem) Export(path string) error {
	if _, err := c.collection(); err != nil {
		return err
	}
	if err := c.db.ExportToFile(path, true, "", c.cfg.Collection); err != nil {
		return unavailable("export", err)
	}
	log.Printf("💾 Exported collection %q to %s", c.cfg.Collection, path)
	return nil
}

// Import loads a snapshot written by Export, replacing the collection.
func (c *Chromem) Import(ctx context.Context, path string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.db.ImportFromFile(path, "", c.cfg.Collection); err != nil {
		return unavailable("import", err)
	}

	c.mu.Lock()
	c.coll = nil
	c.mu.Unlock()
	return c.EnsureCollection(ctx)
}

// Close is a no-op: the persistent DB writes every document as it is added.
func (c *Chromem) Close() error { return nil }

// all returns every document matching where, scored against vector.
func (c *Chromem) all(ctx context.Context, coll *chromem.Collection, vector []float32, where map[string]string) ([]chromem.Result, error) {
	total := coll.Count()
	if total == 0 {
		return nil, nil
	}
	return coll.QueryEmbedding(ctx, vector, total, where, nil)
}

func whereOf(f kb.Filter) map[string]string {
	if f.IsEmpty() {
		return nil
	}
	where := map[string]string{}
	if f.JobType != "" {
		where[keyJobType] = f.JobType
	}
	if f.Section != "" {
		where[keySection] = f.Section
	}
	return where
}

func toHits(res []chromem.Result) []kb.Hit {
	hits := make([]kb.Hit, len(res))
	for i, r := range res {
		hits[i] = kb.Hit{Chunk: toChunk(r), Similarity: float64(r.Similarity)}
	}
	return hits
}

func toChunk(r chromem.Result) kb.DocumentChunk {
	idx, _ := strconv.Atoi(r.Metadata[keyChunkIndex])
	return kb.DocumentChunk{
		ID:           r.ID,
		Text:         r.Content,
		DocumentName: r.Metadata[keyDocumentName],
		JobType:      r.Metadata[keyJobType],
		Section:      r.Metadata[keySection],
		ChunkIndex:   idx,
	}
}

// probe is a unit vector used to enumerate documents; its scores are unused.
func probe(dim int) []float32 {
	v := make([]float32, dim)
	v[0] = 1
	return v
}
