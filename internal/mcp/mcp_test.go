package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkb/internal/kb"
	"jobkb/internal/retriever"
)

type mockRetriever struct {
	results []kb.RetrievalResult
	err     error
	last    retriever.Request
}

func (m *mockRetriever) Retrieve(_ context.Context, req retriever.Request) ([]kb.RetrievalResult, error) {
	m.last = req
	return m.results, m.err
}

type mockCatalog struct {
	stats []kb.DocumentStats
	err   error
}

func (m *mockCatalog) Stats(context.Context) ([]kb.DocumentStats, error) {
	return m.stats, m.err
}

func TestNewServer(t *testing.T) {
	t.Run("missing retriever", func(t *testing.T) {
		server, err := NewServer(&Ports{})
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingRetriever)
	})

	t.Run("retriever only", func(t *testing.T) {
		server, err := NewServer(&Ports{Retriever: &mockRetriever{}})
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("maps request and results", func(t *testing.T) {
		threshold := 0.8
		mock := &mockRetriever{results: []kb.RetrievalResult{{
			Chunk: kb.DocumentChunk{
				DocumentName: "warehouse-a",
				JobType:      "warehouse",
				Section:      "requirements",
				ChunkIndex:   2,
				Text:         "Forklift certification required.",
			},
			Score:         0.91,
			Rank:          1,
			SemanticScore: 0.85,
			KeywordScore:  1,
		}}}
		server, err := NewServer(&Ports{Retriever: mock})
		require.NoError(t, err)

		_, out, err := server.handleSearch(ctx, nil, SearchInput{
			Query:     "forklift",
			Strategy:  "Similarity",
			TopK:      3,
			JobType:   "warehouse",
			Section:   "requirements",
			Threshold: &threshold,
		})
		require.NoError(t, err)

		assert.Equal(t, kb.StrategySimilarity, mock.last.Strategy)
		assert.Equal(t, 3, mock.last.TopK)
		assert.Equal(t, kb.Filter{JobType: "warehouse", Section: "requirements"}, mock.last.Filter)
		require.NotNil(t, mock.last.Threshold)
		assert.Equal(t, 0.8, *mock.last.Threshold)

		require.Equal(t, 1, out.Count)
		assert.Equal(t, "warehouse-a", out.Results[0].DocumentName)
		assert.Equal(t, 2, out.Results[0].ChunkIndex)
		assert.Equal(t, 0.91, out.Results[0].Score)
		assert.Contains(t, out.Context, "[Source 1] (Document: warehouse-a, Section: requirements, Score: 0.910)")
	})

	t.Run("empty result renders the no-results message", func(t *testing.T) {
		server, err := NewServer(&Ports{Retriever: &mockRetriever{}})
		require.NoError(t, err)

		_, out, err := server.handleSearch(ctx, nil, SearchInput{Query: "anything"})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Count)
		assert.Equal(t, retriever.NoResults, out.Context)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		mock := &mockRetriever{}
		server, err := NewServer(&Ports{Retriever: mock})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "x", Strategy: "bm25"})
		assert.True(t, kb.IsValidation(err))
		assert.Empty(t, mock.last.Query)
	})

	t.Run("retriever failure", func(t *testing.T) {
		server, err := NewServer(&Ports{Retriever: &mockRetriever{err: errors.New("index down")}})
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index down")
	})
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ctx := context.Background()
	req := &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uriScheme + "documents"}}

	t.Run("without catalog", func(t *testing.T) {
		server, err := NewServer(&Ports{Retriever: &mockRetriever{}})
		require.NoError(t, err)

		res, err := server.handleDocumentsResource(ctx, req)
		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, "[]", res.Contents[0].Text)
	})

	t.Run("lists documents", func(t *testing.T) {
		catalog := &mockCatalog{stats: []kb.DocumentStats{{DocumentName: "faq", JobType: "retail", Chunks: 4}}}
		server, err := NewServer(&Ports{Retriever: &mockRetriever{}, Catalog: catalog})
		require.NoError(t, err)

		res, err := server.handleDocumentsResource(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "jobkb://documents", res.Contents[0].URI)
		assert.Contains(t, res.Contents[0].Text, `"document_name": "faq"`)
		assert.Contains(t, res.Contents[0].Text, `"chunks": 4`)
	})

	t.Run("catalog failure", func(t *testing.T) {
		catalog := &mockCatalog{err: errors.New("locked")}
		server, err := NewServer(&Ports{Retriever: &mockRetriever{}, Catalog: catalog})
		require.NoError(t, err)

		_, err = server.handleDocumentsResource(ctx, req)
		assert.ErrorContains(t, err, "locked")
	})
}
