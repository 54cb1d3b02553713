package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"jobkb/internal/kb"
	"jobkb/internal/retriever"
)

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query     string   `json:"query" jsonschema:"natural-language question about the job"`
	Strategy  string   `json:"strategy,omitempty" jsonschema:"semantic, similarity or hybrid (default hybrid)"`
	TopK      int      `json:"top_k,omitempty" jsonschema:"maximum number of results (default 5)"`
	JobType   string   `json:"job_type,omitempty" jsonschema:"only search documents of this job type"`
	Section   string   `json:"section,omitempty" jsonschema:"only search this document section"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum similarity for the similarity strategy (default 0.7)"`
}

// SearchOutput is the output schema of the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
	// Context is the results rendered for inclusion in a prompt.
	Context string `json:"context"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	Rank          int     `json:"rank"`
	Score         float64 `json:"score"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score,omitempty"`
	DocumentName  string  `json:"document_name"`
	JobType       string  `json:"job_type"`
	Section       string  `json:"section,omitempty"`
	ChunkIndex    int     `json:"chunk_index"`
	Text          string  `json:"text"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge_base",
		Description: "Search job documents (policies, requirements, FAQs) for passages relevant to a question",
	}, s.handleSearch)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	req := retriever.Request{
		Query:     input.Query,
		TopK:      input.TopK,
		Filter:    kb.Filter{JobType: input.JobType, Section: input.Section},
		Threshold: input.Threshold,
	}
	if input.Strategy != "" {
		strategy, err := kb.ParseStrategy(input.Strategy)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		req.Strategy = strategy
	}

	results, err := s.ports.Retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
		Context: retriever.FormatContext(results),
	}
	for i, r := range results {
		output.Results[i] = SearchResultOutput{
			Rank:          r.Rank,
			Score:         r.Score,
			SemanticScore: r.SemanticScore,
			KeywordScore:  r.KeywordScore,
			DocumentName:  r.Chunk.DocumentName,
			JobType:       r.Chunk.JobType,
			Section:       r.Chunk.Section,
			ChunkIndex:    r.Chunk.ChunkIndex,
			Text:          r.Chunk.Text,
		}
	}
	return nil, output, nil
}
