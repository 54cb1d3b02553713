package extract

import (
	"context"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markdown renders a markdown file to plain text: headings and paragraphs
// become blank-line separated blocks, list items become lines and code
// blocks are kept verbatim. Markup is dropped.
type Markdown struct{}

func (Markdown) Name() string { return "markdown" }

func (m Markdown) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return m.Render(data), nil
}

// Render converts markdown source to plain text.
func (Markdown) Render(source []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				writeLines(&buf, n, source)
				buf.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteString("\n")
				}
			}

		case *ast.Heading, *ast.Paragraph:
			if !entering {
				buf.WriteString("\n\n")
			}

		case *ast.TextBlock:
			// Tight list items hold a TextBlock instead of a Paragraph.
			if !entering {
				buf.WriteString("\n")
			}

		case *ast.ThematicBreak:
			if entering {
				buf.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return normalize(buf.String())
}

func writeLines(buf *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}
