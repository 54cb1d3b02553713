package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobkb/internal/mcp"
)

func newShellCmd(s *session) *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive query loop on stdin",
		Long: `Reads one line at a time. A line naming an existing file ingests it,
":strategy <name>" switches strategy, ":stats" lists documents, and any other
line is answered with the formatted context for that question.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request(cmd, "")
			if err != nil {
				return err
			}

			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Shell(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), req)
		},
	}
	flags.register(cmd)
	return cmd
}

func newMCPCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server commands",
	}

	var port int
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server so agents can call the
search_knowledge_base tool.

By default the server speaks JSON-RPC over stdio. Use --port to serve the
streamable HTTP transport instead.

Examples:
  # Stdio mode
  jobkb mcp serve

  # HTTP mode
  jobkb mcp serve --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			server, err := mcp.NewServer(&mcp.Ports{Retriever: a, Catalog: a})
			if err != nil {
				return err
			}

			if port > 0 {
				addr := fmt.Sprintf(":%d", port)
				fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
				return server.RunHTTP(cmd.Context(), addr)
			}
			return server.Run(cmd.Context())
		},
	}
	serve.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (0 = use stdio)")

	cmd.AddCommand(serve)
	return cmd
}
