package extract

import (
	"context"
	"os"
	"regexp"
	"strings"
)

// Text reads plain text files as they are, normalising line endings.
type Text struct{}

func (Text) Name() string { return "text" }

func (Text) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return normalize(string(data)), nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// normalize converts CRLF to LF, strips trailing spaces on each line and
// collapses runs of blank lines into one.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")

	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}
