package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(s *session) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "List indexed documents and their chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, stats)
			}
			if len(stats) == 0 {
				fmt.Fprintln(out, dimStyle.Render("The knowledge base is empty."))
				return nil
			}

			total := 0
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%-32s %-16s %-16s %6s", "DOCUMENT", "JOB TYPE", "SECTION", "CHUNKS")))
			for _, st := range stats {
				fmt.Fprintf(out, "%-32s %-16s %-16s %6d\n", st.DocumentName, st.JobType, st.Section, st.Chunks)
				total += st.Chunks
			}
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d documents, %d chunks", len(stats), total)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newSnapshotCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import a portable copy of the collection (chromem backend)",
	}

	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a compressed snapshot of the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Export(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Exported to "+args[0]))
			return nil
		},
	}

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the collection with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Import(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Imported "+args[0]))
			return nil
		},
	}

	cmd.AddCommand(export, imp)
	return cmd
}
