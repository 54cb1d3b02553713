package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"jobkb/internal/kb"
	"jobkb/internal/retriever"
)

// requestFlags are the retrieval knobs shared by query and shell.
type requestFlags struct {
	strategy  string
	topK      int
	jobType   string
	section   string
	threshold float64
	semantic  float64
	keyword   float64
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "", "semantic, similarity or hybrid (default from DEFAULT_STRATEGY)")
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "maximum number of results (default from TOP_K)")
	cmd.Flags().StringVar(&f.jobType, "job-type", "", "only search this job type")
	cmd.Flags().StringVar(&f.section, "section", "", "only search this section")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "minimum similarity for the similarity strategy")
	cmd.Flags().Float64Var(&f.semantic, "semantic-weight", 0, "hybrid weight of semantic similarity")
	cmd.Flags().Float64Var(&f.keyword, "keyword-weight", 0, "hybrid weight of keyword overlap")
}

// request builds a retriever request, leaving unset flags to the configured
// defaults.
func (f *requestFlags) request(cmd *cobra.Command, query string) (retriever.Request, error) {
	req := retriever.Request{
		Query:  query,
		TopK:   f.topK,
		Filter: kb.Filter{JobType: f.jobType, Section: f.section},
	}
	if f.strategy != "" {
		strategy, err := kb.ParseStrategy(f.strategy)
		if err != nil {
			return req, err
		}
		req.Strategy = strategy
	}
	if cmd.Flags().Changed("threshold") {
		t := f.threshold
		req.Threshold = &t
	}
	if cmd.Flags().Changed("semantic-weight") || cmd.Flags().Changed("keyword-weight") {
		w := retriever.DefaultWeights()
		if cmd.Flags().Changed("semantic-weight") {
			w.Semantic = f.semantic
		}
		if cmd.Flags().Changed("keyword-weight") {
			w.Keyword = f.keyword
		}
		req.Weights = &w
	}
	return req, nil
}

func newQueryCmd(s *session) *cobra.Command {
	var (
		flags     requestFlags
		asJSON    bool
		asContext bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve the chunks most relevant to a question",
		Long: `Ranks indexed chunks against the question.

Strategies:
  semantic    cosine similarity only
  similarity  cosine similarity, dropping results below --threshold
  hybrid      weighted blend of similarity and keyword overlap`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd, strings.Join(args, " "))
			if err != nil {
				return err
			}

			a, err := s.app(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Retrieve(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("retrieval failed: %w", err)
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return writeJSON(out, results)
			case asContext:
				fmt.Fprintln(out, a.FormatContext(results))
				return nil
			default:
				printHits(out, results)
				return nil
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	cmd.Flags().BoolVar(&asContext, "context", false, "output the prompt context block")
	return cmd
}

func printHits(w io.Writer, results []kb.RetrievalResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, dimStyle.Render(retriever.NoResults))
		return
	}
	for _, r := range results {
		header := fmt.Sprintf("[%d] %s", r.Rank, r.Chunk.DocumentName)
		if r.Chunk.Section != "" {
			header += " · " + r.Chunk.Section
		}
		header += " · " + r.Chunk.JobType

		score := fmt.Sprintf("%.3f", r.Score)
		detail := fmt.Sprintf("(semantic %.3f, keyword %.3f, chunk %d)", r.SemanticScore, r.KeywordScore, r.Chunk.ChunkIndex)

		fmt.Fprintf(w, "%s  %s %s\n", titleStyle.Render(header), scoreStyle.Render(score), dimStyle.Render(detail))
		fmt.Fprintf(w, "    %s\n\n", snippet(r.Chunk.Text))
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
