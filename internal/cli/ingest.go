package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"jobkb/internal/ingest"
	"jobkb/internal/kb"
)

func newIngestCmd(s *session) *cobra.Command {
	var (
		doc    ingest.Document
		resume []int
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest one document, replacing any previous version",
		Long: `Extracts, chunks and embeds a .txt, .md or .pdf file and stores it under
its document name (the file name without extension unless --name is given).

If some chunks fail to embed, the rest are stored and the failed indices are
printed. Re-run with --resume to retry only those chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc.Path = args[0]
			out := cmd.OutOrStdout()

			var res kb.IngestResult
			if len(resume) > 0 {
				res, err = a.ResumeDocument(cmd.Context(), doc, resume)
			} else {
				res, err = a.IngestDocument(cmd.Context(), doc)
			}
			if err != nil {
				var partial *kb.PartialIngestError
				if errors.As(err, &partial) {
					printResult(out, res)
					fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("retry with: jobkb ingest %s --resume %s", args[0], joinInts(partial.Failed))))
				}
				return err
			}
			printResult(out, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&doc.Name, "name", "", "document name (default: file name without extension)")
	cmd.Flags().StringVar(&doc.JobType, "job-type", "", "job type tag (default \"general\")")
	cmd.Flags().StringVar(&doc.Section, "section", "", "section tag")
	cmd.Flags().IntSliceVar(&resume, "resume", nil, "only re-embed these chunk indices")
	return cmd
}

func newIngestDirCmd(s *session) *cobra.Command {
	var (
		jobType, section string
		force            bool
	)
	cmd := &cobra.Command{
		Use:   "ingest-dir <dir>",
		Short: "Ingest every supported file directly inside a directory",
		Long: `Ingests each .txt, .md and .pdf file in the directory (not its
subdirectories). Files unchanged since their last ingestion are skipped
unless --force is given. A failing file does not stop the others.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.IngestDirectory(cmd.Context(), args[0], jobType, section, force)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}
	cmd.Flags().StringVar(&jobType, "job-type", "", "job type tag for every file")
	cmd.Flags().StringVar(&section, "section", "", "section tag for every file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-ingest unchanged files")
	return cmd
}

func newIngestManifestCmd(s *session) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "ingest-manifest <manifest.yaml>",
		Short: "Ingest the documents listed in a YAML manifest",
		Long: `The manifest lists documents with per-document metadata:

  documents:
    - path: postings/warehouse.md
      job_type: warehouse
      section: requirements
    - name: overtime-faq
      text: Overtime needs manager approval.

Relative paths resolve against the manifest's directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.IngestManifest(cmd.Context(), args[0], force)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-ingest unchanged files")
	return cmd
}

func newDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document>",
		Short: "Remove every chunk of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(fmt.Sprintf("no chunks found for %q", args[0])))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("✓ Deleted %q (%d chunks)", args[0], n)))
			return nil
		},
	}
}

func printResults(w io.Writer, results []kb.IngestResult) {
	var written, skipped int
	for _, r := range results {
		printResult(w, r)
		if r.Skipped {
			skipped++
		} else {
			written++
		}
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d ingested, %d unchanged", written, skipped)))
}

func printResult(w io.Writer, r kb.IngestResult) {
	switch {
	case r.Skipped:
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("- %s: unchanged, skipped", r.DocumentName)))
	case len(r.ChunksFailed) > 0:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("! %s: %d chunks written, failed: %s",
			r.DocumentName, r.ChunksWritten, joinInts(r.ChunksFailed))))
	default:
		fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✓ %s: %d chunks (%d replaced)", r.DocumentName, r.ChunksWritten, r.ChunksDeleted)))
	}
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
