package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"jobkb/internal/kb"
	"jobkb/internal/lexical"
)

// SQLiteConfig configures the SQLite backend. One database file holds one
// collection.
type SQLiteConfig struct {
	Path       string
	Dimensions int
}

// SQLite is an Index stored in a single SQLite file. Vectors are JSON arrays
// scored by brute-force cosine; keyword candidates come from an FTS5 table.
type SQLite struct {
	cfg SQLiteConfig
	db  *sql.DB
}

// NewSQLite opens the database file, creating its directory if needed.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Dimensions <= 0 {
		return nil, kb.Validationf("dimensions", "must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Path == "" {
		return nil, kb.Validationf("path", "must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &kb.IndexError{Op: "open", Err: err}
	}
	// One connection: SQLite serialises writers anyway and this keeps
	// transactions and plain queries from locking each other out.
	db.SetMaxOpenConns(1)

	return &SQLite{cfg: cfg, db: db}, nil
}

func (s *SQLite) Dimensions() int { return s.cfg.Dimensions }

func (s *SQLite) Close() error { return s.db.Close() }

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS collection_meta (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        dimensions INTEGER NOT NULL,
        metric TEXT NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS chunks (
        id TEXT PRIMARY KEY,
        document_name TEXT NOT NULL,
        job_type TEXT NOT NULL,
        section TEXT NOT NULL,
        chunk_index INTEGER NOT NULL,
        text TEXT NOT NULL,
        embedding TEXT NOT NULL
    );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_position ON chunks(document_name, chunk_index);`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_filter ON chunks(job_type, section);`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
        id UNINDEXED, text,
        tokenize = 'unicode61 remove_diacritics 0'
    );`,
}

func (s *SQLite) EnsureCollection(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("migrate", err)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collection_meta(id, dimensions, metric) VALUES (1, ?, ?)`,
		s.cfg.Dimensions, Metric); err != nil {
		return unavailable("ensure collection", err)
	}

	var dims int
	if err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM collection_meta WHERE id = 1`).Scan(&dims); err != nil {
		return unavailable("ensure collection", err)
	}
	if dims != s.cfg.Dimensions {
		return kb.Validationf("dimensions", "%s was built with %d dimensions, configured %d",
			s.cfg.Path, dims, s.cfg.Dimensions)
	}

	log.Printf("✅ SQLite collection ready at %s (%d dims, %s)", s.cfg.Path, dims, Metric)
	return nil
}

func (s *SQLite) Insert(ctx context.Context, chunks []kb.DocumentChunk) error {
	if err := checkChunks(chunks, s.cfg.Dimensions); err != nil {
		return err
	}
	return unavailable("insert", s.inTx(ctx, func(tx *sql.Tx) error {
		return upsert(ctx, tx, chunks)
	}))
}

func (s *SQLite) Replace(ctx context.Context, documentName string, chunks []kb.DocumentChunk) (int, error) {
	if err := checkChunks(chunks, s.cfg.Dimensions); err != nil {
		return 0, err
	}
	var deleted int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if deleted, err = deleteDocument(ctx, tx, documentName); err != nil {
			return err
		}
		return upsert(ctx, tx, chunks)
	})
	if err != nil {
		return 0, unavailable("replace", err)
	}
	return deleted, nil
}

func (s *SQLite) Prune(ctx context.Context, documentName string, keep int) (int, error) {
	if documentName == "" {
		return 0, kb.Validationf("document_name", "must not be empty")
	}
	var pruned int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
            DELETE FROM chunks_fts WHERE id IN (
                SELECT id FROM chunks WHERE document_name = ? AND chunk_index >= ?)`,
			documentName, keep); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE document_name = ? AND chunk_index >= ?`, documentName, keep)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		pruned = int(n)
		return err
	})
	if err != nil {
		return 0, unavailable("prune", err)
	}
	return pruned, nil
}

func (s *SQLite) Delete(ctx context.Context, documentName string) (int, error) {
	var deleted int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = deleteDocument(ctx, tx, documentName)
		return err
	})
	if err != nil {
		return 0, unavailable("delete", err)
	}
	return deleted, nil
}

func (s *SQLite) Search(ctx context.Context, vector []float32, topK int, filter kb.Filter) ([]kb.Hit, error) {
	if topK <= 0 {
		return nil, kb.Validationf("top_k", "must be positive, got %d", topK)
	}
	if err := checkQuery(vector, s.cfg.Dimensions); err != nil {
		return nil, err
	}

	where, args := filterClause(filter)
	rows, err := s.db.QueryContext(ctx, selectChunks+` WHERE 1=1`+where, args...)
	if err != nil {
		return nil, unavailable("search", err)
	}
	hits, err := scanHits(rows, vector)
	if err != nil {
		return nil, unavailable("search", err)
	}
	return kb.TopHits(hits, topK), nil
}

func (s *SQLite) Match(ctx context.Context, vector []float32, terms []string, filter kb.Filter, limit int) ([]kb.Hit, error) {
	if err := checkQuery(vector, s.cfg.Dimensions); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return []kb.Hit{}, nil
	}

	where, args := filterClause(filter)
	query := selectChunks + ` WHERE id IN (SELECT id FROM chunks_fts WHERE chunks_fts MATCH ?)` + where
	args = append([]any{ftsQuery(terms)}, args...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("match", err)
	}
	candidates, err := scanHits(rows, vector)
	if err != nil {
		return nil, unavailable("match", err)
	}

	// FTS5 splits on apostrophes and joins letters with digits; keep only
	// candidates that share a token with terms the way the scorer sees them.
	hits := candidates[:0]
	for _, h := range candidates {
		if lexical.ContainsAny(h.Chunk.Text, terms) {
			hits = append(hits, h)
		}
	}
	return kb.TopHits(hits, limit), nil
}

func (s *SQLite) Stats(ctx context.Context) ([]kb.DocumentStats, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT document_name, MIN(job_type), MIN(section), COUNT(*)
        FROM chunks
        GROUP BY document_name
        ORDER BY document_name`)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	defer rows.Close()

	var out []kb.DocumentStats
	for rows.Next() {
		var st kb.DocumentStats
		if err := rows.Scan(&st.DocumentName, &st.JobType, &st.Section, &st.Chunks); err != nil {
			return nil, unavailable("stats", err)
		}
		out = append(out, st)
	}
	return out, unavailable("stats", rows.Err())
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsert(ctx context.Context, tx *sql.Tx, chunks []kb.DocumentChunk) error {
	for _, c := range chunks {
		vec, err := json.Marshal(c.Vector)
		if err != nil {
			return fmt.Errorf("encode vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO chunks(id, document_name, job_type, section, chunk_index, text, embedding)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                document_name = excluded.document_name,
                job_type = excluded.job_type,
                section = excluded.section,
                chunk_index = excluded.chunk_index,
                text = excluded.text,
                embedding = excluded.embedding`,
			c.ID, c.DocumentName, c.JobType, c.Section, c.ChunkIndex, c.Text, string(vec)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE id = ?`, c.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts(id, text) VALUES (?, ?)`, c.ID, c.Text); err != nil {
			return err
		}
	}
	return nil
}

func deleteDocument(ctx context.Context, tx *sql.Tx, documentName string) (int, error) {
	if documentName == "" {
		return 0, kb.Validationf("document_name", "must not be empty")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE id IN (SELECT id FROM chunks WHERE document_name = ?)`, documentName); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_name = ?`, documentName)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const selectChunks = `SELECT id, document_name, job_type, section, chunk_index, text, embedding FROM chunks`

func filterClause(f kb.Filter) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	if f.JobType != "" {
		b.WriteString(` AND job_type = ?`)
		args = append(args, f.JobType)
	}
	if f.Section != "" {
		b.WriteString(` AND section = ?`)
		args = append(args, f.Section)
	}
	return b.String(), args
}

// ftsQuery ORs the terms as quoted FTS5 strings.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

func scanHits(rows *sql.Rows, vector []float32) ([]kb.Hit, error) {
	defer rows.Close()

	var hits []kb.Hit
	for rows.Next() {
		var (
			c   kb.DocumentChunk
			raw string
		)
		if err := rows.Scan(&c.ID, &c.DocumentName, &c.JobType, &c.Section, &c.ChunkIndex, &c.Text, &raw); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("decode vector of %s: %w", c.ID, err)
		}
		if len(vec) != len(vector) {
			return nil, errors.New("stored vector " + c.ID + " has the wrong dimensionality")
		}
		hits = append(hits, kb.Hit{Chunk: c, Similarity: kb.Cosine(vector, vec)})
	}
	return hits, rows.Err()
}
