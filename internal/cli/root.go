// Package cli is the jobkb command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"jobkb/internal/app"
	"jobkb/internal/config"
)

// Options are the persistent flags shared by every command.
type Options struct {
	EnvFile string
	Verbose bool
}

// Opener builds a ready App for a command. Commands close it when done.
type Opener func(ctx context.Context, opts Options) (*app.App, error)

// OpenApp loads the configuration, builds the App and makes sure the
// collection exists.
func OpenApp(ctx context.Context, opts Options) (*app.App, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Verbose {
		cfg.Verbose = true
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.EnsureCollection(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// session carries the flags and opener down to subcommands.
type session struct {
	opts Options
	open Opener
}

func (s *session) app(cmd *cobra.Command) (*app.App, error) {
	return s.open(cmd.Context(), s.opts)
}

// NewRootCmd assembles the command tree. A nil open uses OpenApp.
func NewRootCmd(open Opener) *cobra.Command {
	if open == nil {
		open = OpenApp
	}
	s := &session{open: open}

	root := &cobra.Command{
		Use:   "jobkb",
		Short: "Job document knowledge base for application agents",
		Long: `jobkb ingests job documents (postings, policies, FAQs) into a vector
index and retrieves the passages relevant to a candidate's question.

Configuration comes from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&s.opts.EnvFile, "env-file", "", "load environment from this file (default .env if present)")
	root.PersistentFlags().BoolVarP(&s.opts.Verbose, "verbose", "v", false, "print pipeline traces to stderr")

	root.AddCommand(
		newInitCmd(s),
		newIngestCmd(s),
		newIngestDirCmd(s),
		newIngestManifestCmd(s),
		newDeleteCmd(s),
		newQueryCmd(s),
		newStatsCmd(s),
		newShellCmd(s),
		newMCPCmd(s),
		newSnapshotCmd(s),
	)
	return root
}

// Execute runs the command line with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd(nil).ExecuteContext(ctx)
}

func newInitCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Check the embedding provider and create the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.CheckProvider(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Knowledge base ready"))
			return nil
		},
	}
}
