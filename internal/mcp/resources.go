package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"jobkb/internal/kb"
)

const uriScheme = "jobkb://"

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "Documents in the knowledge base with their job type, section and chunk count",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)
}

func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs := []kb.DocumentStats{}
	if s.ports.Catalog != nil {
		stats, err := s.ports.Catalog.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}
		if stats != nil {
			docs = stats
		}
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
