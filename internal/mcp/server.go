// Package mcp exposes the knowledge base to agents over the Model Context
// Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"jobkb/internal/kb"
	"jobkb/internal/retriever"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingRetriever is returned when the retrieval port is not provided.
var ErrMissingRetriever = errors.New("mcp: retriever is required")

// Retriever answers queries. *app.App and *retriever.Retriever satisfy it.
type Retriever interface {
	Retrieve(ctx context.Context, req retriever.Request) ([]kb.RetrievalResult, error)
}

// Catalog lists the indexed documents.
type Catalog interface {
	Stats(ctx context.Context) ([]kb.DocumentStats, error)
}

// Ports aggregates what the server needs from the application.
type Ports struct {
	Retriever Retriever
	// Catalog is optional; without it the documents resource is empty.
	Catalog Catalog
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retriever == nil {
		return ErrMissingRetriever
	}
	return nil
}

// Server is the MCP server for the job knowledge base.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates a new MCP server with the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: "jobkb", Version: Version}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
