package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkb/internal/chunker"
	"jobkb/internal/kb"
	"jobkb/internal/retry"
)

const dims = 3

func chunk(doc string, idx int, jobType, section, text string, vec ...float32) kb.DocumentChunk {
	return kb.DocumentChunk{
		ID:           chunker.ChunkID(doc, idx),
		Vector:       vec,
		Text:         text,
		DocumentName: doc,
		JobType:      jobType,
		Section:      section,
		ChunkIndex:   idx,
	}
}

// backends returns a fresh, ready index per implementation.
func backends(t *testing.T) map[string]Index {
	t.Helper()
	ctx := context.Background()

	mem, err := NewChromem(ChromemConfig{Collection: "job_documents", Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, mem.EnsureCollection(ctx))

	disk, err := NewChromem(ChromemConfig{Dir: t.TempDir(), Collection: "job_documents", Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, disk.EnsureCollection(ctx))

	lite, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "kb.db"), Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, lite.EnsureCollection(ctx))
	t.Cleanup(func() { _ = lite.Close() })

	return map[string]Index{"chromem": mem, "chromem-persistent": disk, "sqlite": lite}
}

func seed(t *testing.T, idx Index) {
	t.Helper()
	_, err := idx.Replace(context.Background(), "warehouse.md", []kb.DocumentChunk{
		chunk("warehouse.md", 0, "warehouse", "requirements", "Forklift license required for all shifts.", 1, 0, 0),
		chunk("warehouse.md", 1, "warehouse", "benefits", "Overtime paid at time and a half.", 0, 1, 0),
	})
	require.NoError(t, err)
	_, err = idx.Replace(context.Background(), "barista.md", []kb.DocumentChunk{
		chunk("barista.md", 0, "cafe", "requirements", "Food handler card needed.", 0.9, 0.1, 0),
	})
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, idx)

			hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, kb.Filter{})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "warehouse.md", hits[0].Chunk.DocumentName)
			assert.Equal(t, 0, hits[0].Chunk.ChunkIndex)
			assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
			assert.Equal(t, "barista.md", hits[1].Chunk.DocumentName)
			assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
			assert.Equal(t, "Forklift license required for all shifts.", hits[0].Chunk.Text)
		})
	}
}

func TestSearchFilter(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, idx)

			hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, kb.Filter{JobType: "warehouse"})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			for _, h := range hits {
				assert.Equal(t, "warehouse", h.Chunk.JobType)
			}

			hits, err = idx.Search(ctx, []float32{1, 0, 0}, 10, kb.Filter{JobType: "warehouse", Section: "benefits"})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, 1, hits[0].Chunk.ChunkIndex)

			hits, err = idx.Search(ctx, []float32{1, 0, 0}, 10, kb.Filter{JobType: "nursing"})
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestSearchTieBreak(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := idx.Replace(ctx, "b.md", []kb.DocumentChunk{
				chunk("b.md", 1, "general", "", "b one", 1, 1, 0),
				chunk("b.md", 0, "general", "", "b zero", 1, 1, 0),
			})
			require.NoError(t, err)
			_, err = idx.Replace(ctx, "a.md", []kb.DocumentChunk{
				chunk("a.md", 1, "general", "", "a one", 1, 1, 0),
			})
			require.NoError(t, err)

			hits, err := idx.Search(ctx, []float32{1, 1, 0}, 3, kb.Filter{})
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, "b zero", hits[0].Chunk.Text)
			assert.Equal(t, "a one", hits[1].Chunk.Text)
			assert.Equal(t, "b one", hits[2].Chunk.Text)
		})
	}
}

func TestSearchManyTies(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Boilerplate repeated across postings embeds identically.
			for d := 0; d < 40; d++ {
				doc := fmt.Sprintf("doc%02d", d)
				chunks := make([]kb.DocumentChunk, 5)
				for i := range chunks {
					chunks[i] = chunk(doc, i, "general", "", "Equal opportunity employer.", 1, 1, 0)
				}
				_, err := idx.Replace(ctx, doc, chunks)
				require.NoError(t, err)
			}

			for run := 0; run < 25; run++ {
				hits, err := idx.Search(ctx, []float32{1, 1, 0}, 3, kb.Filter{})
				require.NoError(t, err)
				require.Len(t, hits, 3)
				assert.Equal(t, chunker.ChunkID("doc00", 0), hits[0].Chunk.ID)
				assert.Equal(t, chunker.ChunkID("doc01", 0), hits[1].Chunk.ID)
				assert.Equal(t, chunker.ChunkID("doc02", 0), hits[2].Chunk.ID)
			}

			_, err := idx.Replace(ctx, "lead", []kb.DocumentChunk{
				chunk("lead", 3, "general", "", "Forklift lead.", 1, 0, 0),
			})
			require.NoError(t, err)

			hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, kb.Filter{})
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "lead", hits[0].Chunk.DocumentName)
			assert.Equal(t, chunker.ChunkID("doc00", 0), hits[1].Chunk.ID)
		})
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, idx)

			pruned, err := idx.Prune(ctx, "warehouse.md", 1)
			require.NoError(t, err)
			assert.Equal(t, 1, pruned)

			pruned, err = idx.Prune(ctx, "warehouse.md", 1)
			require.NoError(t, err)
			assert.Zero(t, pruned)

			stats, err := idx.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, []kb.DocumentStats{
				{DocumentName: "barista.md", JobType: "cafe", Section: "requirements", Chunks: 1},
				{DocumentName: "warehouse.md", JobType: "warehouse", Section: "requirements", Chunks: 1},
			}, stats)

			hits, err := idx.Match(ctx, []float32{0, 1, 0}, []string{"overtime"}, kb.Filter{}, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)

			_, err = idx.Prune(ctx, "", 0)
			assert.True(t, kb.IsValidation(err))
		})
	}
}

func TestReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, idx)

			// Re-ingesting with fewer chunks drops the stale tail.
			deleted, err := idx.Replace(ctx, "warehouse.md", []kb.DocumentChunk{
				chunk("warehouse.md", 0, "warehouse", "requirements", "Forklift license required.", 1, 0, 0),
			})
			require.NoError(t, err)
			assert.Equal(t, 2, deleted)

			stats, err := idx.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, []kb.DocumentStats{
				{DocumentName: "barista.md", JobType: "cafe", Section: "requirements", Chunks: 1},
				{DocumentName: "warehouse.md", JobType: "warehouse", Section: "requirements", Chunks: 1},
			}, stats)

			deleted, err = idx.Delete(ctx, "warehouse.md")
			require.NoError(t, err)
			assert.Equal(t, 1, deleted)

			deleted, err = idx.Delete(ctx, "warehouse.md")
			require.NoError(t, err)
			assert.Zero(t, deleted)

			hits, err := idx.Search(ctx, []float32{1, 0, 0}, 5, kb.Filter{})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "barista.md", hits[0].Chunk.DocumentName)
		})
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := chunk("notes.txt", 0, "general", "", "first", 0, 0, 1)
			require.NoError(t, idx.Insert(ctx, []kb.DocumentChunk{c}))
			c.Text = "second"
			require.NoError(t, idx.Insert(ctx, []kb.DocumentChunk{c}))

			stats, err := idx.Stats(ctx)
			require.NoError(t, err)
			require.Len(t, stats, 1)
			assert.Equal(t, 1, stats[0].Chunks)

			hits, err := idx.Search(ctx, []float32{0, 0, 1}, 1, kb.Filter{})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "second", hits[0].Chunk.Text)
		})
	}
}

func TestMatch(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, idx)

			hits, err := idx.Match(ctx, []float32{0, 1, 0}, []string{"forklift", "overtime"}, kb.Filter{}, 0)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, 1, hits[0].Chunk.ChunkIndex, "most similar to the query vector first")
			assert.Equal(t, 0, hits[1].Chunk.ChunkIndex)

			hits, err = idx.Match(ctx, []float32{0, 1, 0}, []string{"forklift"}, kb.Filter{JobType: "cafe"}, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = idx.Match(ctx, []float32{0, 1, 0}, nil, kb.Filter{}, 0)
			require.NoError(t, err)
			assert.Empty(t, hits)

			hits, err = idx.Match(ctx, []float32{0, 1, 0}, []string{"forklift", "overtime"}, kb.Filter{}, 1)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestMatchTokenizesLikeScorer(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := idx.Replace(ctx, "barista.md", []kb.DocumentChunk{
				chunk("barista.md", 0, "cafe", "", "Don't skip the café briefing.", 1, 0, 0),
			})
			require.NoError(t, err)

			for _, tt := range []struct {
				term string
				want int
			}{
				{"don't", 1},
				{"café", 1},
				{"don", 0},
				{"cafe", 0},
			} {
				hits, err := idx.Match(ctx, []float32{1, 0, 0}, []string{tt.term}, kb.Filter{}, 0)
				require.NoError(t, err)
				assert.Len(t, hits, tt.want, tt.term)
			}
		})
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := idx.Insert(ctx, []kb.DocumentChunk{chunk("a.md", 0, "general", "", "x", 1, 0)})
			assert.ErrorIs(t, err, kb.ErrValidation)

			err = idx.Insert(ctx, []kb.DocumentChunk{chunk("a.md", 0, "general", "", "x", 0, 0, 0)})
			assert.ErrorIs(t, err, kb.ErrValidation)

			_, err = idx.Search(ctx, []float32{1, 0}, 3, kb.Filter{})
			assert.ErrorIs(t, err, kb.ErrValidation)

			_, err = idx.Search(ctx, []float32{1, 0, 0}, 0, kb.Filter{})
			assert.ErrorIs(t, err, kb.ErrValidation)

			_, err = idx.Delete(ctx, "")
			assert.ErrorIs(t, err, kb.ErrValidation)

			hits, err := idx.Search(ctx, []float32{1, 0, 0}, 3, kb.Filter{})
			require.NoError(t, err)
			assert.Empty(t, hits, "rejected writes leave nothing behind")
		})
	}
}

func TestDimensionMismatchOnReopen(t *testing.T) {
	ctx := context.Background()

	t.Run("chromem", func(t *testing.T) {
		dir := t.TempDir()
		idx, err := NewChromem(ChromemConfig{Dir: dir, Collection: "c", Dimensions: dims})
		require.NoError(t, err)
		require.NoError(t, idx.EnsureCollection(ctx))
		require.NoError(t, idx.Insert(ctx, []kb.DocumentChunk{chunk("a.md", 0, "general", "", "x", 1, 0, 0)}))

		reopened, err := NewChromem(ChromemConfig{Dir: dir, Collection: "c", Dimensions: 4})
		require.NoError(t, err)
		assert.ErrorIs(t, reopened.EnsureCollection(ctx), kb.ErrValidation)
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.db")
		idx, err := NewSQLite(SQLiteConfig{Path: path, Dimensions: dims})
		require.NoError(t, err)
		require.NoError(t, idx.EnsureCollection(ctx))
		require.NoError(t, idx.Close())

		reopened, err := NewSQLite(SQLiteConfig{Path: path, Dimensions: 4})
		require.NoError(t, err)
		defer reopened.Close()
		assert.ErrorIs(t, reopened.EnsureCollection(ctx), kb.ErrValidation)
	})
}

func TestChromemPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewChromem(ChromemConfig{Dir: dir, Collection: "c", Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, idx.EnsureCollection(ctx))
	seed(t, idx)

	reopened, err := NewChromem(ChromemConfig{Dir: dir, Collection: "c", Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, reopened.EnsureCollection(ctx))

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 2, stats[1].Chunks)
}

func TestChromemSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kb.gob.gz")

	src, err := NewChromem(ChromemConfig{Collection: "c", Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, src.EnsureCollection(ctx))
	seed(t, src)
	require.NoError(t, src.Export(path))

	dst, err := NewChromem(ChromemConfig{Collection: "c", Dimensions: dims})
	require.NoError(t, err)
	require.NoError(t, dst.Import(ctx, path))

	hits, err := dst.Search(ctx, []float32{1, 0, 0}, 1, kb.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "warehouse.md", hits[0].Chunk.DocumentName)
}

func TestChromemRequiresCollection(t *testing.T) {
	idx, err := NewChromem(ChromemConfig{Collection: "c", Dimensions: dims})
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), []float32{1, 0, 0}, 1, kb.Filter{})
	assert.ErrorIs(t, err, kb.ErrIndexUnavailable)
}

type flakyIndex struct {
	Index
	failures int
	calls    int
}

func (f *flakyIndex) Search(ctx context.Context, vector []float32, topK int, filter kb.Filter) ([]kb.Hit, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &kb.IndexError{Op: "search", Err: errors.New("database is locked")}
	}
	return f.Index.Search(ctx, vector, topK, filter)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	mem, err := NewChromem(ChromemConfig{Collection: "c", Dimensions: dims})
	require.NoError(t, err)

	flaky := &flakyIndex{Index: mem, failures: 2}
	idx := WithRetry(flaky, retry.Policy{MaxAttempts: 3})
	require.NoError(t, idx.EnsureCollection(ctx))
	seed(t, idx)

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 1, kb.Filter{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, 3, flaky.calls)

	flaky.calls, flaky.failures = 0, 5
	_, err = idx.Search(ctx, []float32{1, 0, 0}, 1, kb.Filter{})
	assert.ErrorIs(t, err, kb.ErrIndexUnavailable)
	assert.Equal(t, 3, flaky.calls)
}
