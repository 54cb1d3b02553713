package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkb/internal/kb"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFactory_For(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		path string
		want string
	}{
		{"handbook.txt", "text"},
		{"handbook.TXT", "text"},
		{"benefits.md", "markdown"},
		{"benefits.markdown", "markdown"},
		{"posting.pdf", "pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, err := f.For(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Name())
			assert.True(t, f.Supports(tt.path))
		})
	}

	_, err := f.For("resume.docx")
	assert.ErrorIs(t, err, kb.ErrValidation)
	assert.False(t, f.Supports("resume.docx"))
	assert.Equal(t, []string{".markdown", ".md", ".pdf", ".text", ".txt"}, f.Extensions())
}

func TestFactory_Extract(t *testing.T) {
	ctx := context.Background()
	f := NewFactory()

	t.Run("text file", func(t *testing.T) {
		path := writeFile(t, "posting.txt", "Forklift certification required.  \r\n\r\n\r\n\r\nNight shifts available.\r\n")
		got, err := f.Extract(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "Forklift certification required.\n\nNight shifts available.", got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := f.Extract(ctx, filepath.Join(t.TempDir(), "nope.txt"))
		assert.ErrorIs(t, err, kb.ErrValidation)
	})

	t.Run("custom extractor", func(t *testing.T) {
		f := NewFactory()
		f.Register(".csv", Text{})
		path := writeFile(t, "shifts.csv", "day,night\n")
		got, err := f.Extract(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "day,night", got)
	})
}

func TestMarkdown_Render(t *testing.T) {
	src := "# Warehouse Associate\n\n" +
		"Must hold a **forklift** certification.\n" +
		"Shifts rotate weekly.\n\n" +
		"## Benefits\n\n" +
		"- Health insurance\n" +
		"- Paid time off\n\n" +
		"```\nshift_code: WH-42\n```\n"

	got := Markdown{}.Render([]byte(src))

	assert.Contains(t, got, "Warehouse Associate\n\nMust hold a forklift certification.")
	assert.Contains(t, got, "Shifts rotate weekly.")
	assert.Contains(t, got, "Benefits")
	assert.Contains(t, got, "Health insurance")
	assert.Contains(t, got, "Paid time off")
	assert.Contains(t, got, "shift_code: WH-42")
	assert.NotContains(t, got, "**")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "```")
	assert.NotContains(t, got, "\n\n\n")
}

func TestMarkdown_ExtractFile(t *testing.T) {
	path := writeFile(t, "faq.md", "## Pay\n\nWeekly direct deposit.\n")
	got, err := NewFactory().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Pay\n\nWeekly direct deposit.", got)
}

func TestPDF_InvalidFile(t *testing.T) {
	path := writeFile(t, "broken.pdf", "not a pdf")
	_, err := NewFactory().Extract(context.Background(), path)
	assert.Error(t, err)
}
