package retriever

import (
	"fmt"
	"strings"

	"jobkb/internal/kb"
)

// NoResults is the context returned when nothing was retrieved.
const NoResults = "No relevant information found in the knowledge base."

// FormatContext renders results, in the order given, as a source-attributed
// block for prompt injection.
func FormatContext(results []kb.RetrievalResult) string {
	if len(results) == 0 {
		return NoResults
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source %d] (Document: %s, Section: %s, Score: %.3f)\n%s\n",
			i+1, r.Chunk.DocumentName, r.Chunk.Section, r.Score, r.Chunk.Text)
	}
	return strings.Join(parts, "\n")
}
