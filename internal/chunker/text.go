package chunker

import (
	"strings"
	"unicode"

	"jobkb/internal/logger"
)

// TextChunker slides a fixed window over the text and moves each cut back to
// the nearest paragraph, line, sentence or word boundary.
type TextChunker struct {
	config Config
}

// NewTextChunker creates a window chunker.
func NewTextChunker(config Config) *TextChunker {
	return &TextChunker{config: config}
}

func (s *TextChunker) Name() string {
	return "window"
}

// Split returns the windows of text. Whitespace-only input yields no pieces;
// text shorter than the window yields one.
func (s *TextChunker) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	var pieces []Piece

	for start := 0; start < n; {
		end := start + s.config.Size
		if end >= n {
			end = n
		} else {
			end = s.cut(runes, start, end)
		}

		if part := string(runes[start:end]); strings.TrimSpace(part) != "" {
			pieces = append(pieces, Piece{
				Index: len(pieces),
				Text:  part,
				Start: start,
				End:   end,
			})
		}

		if end >= n {
			break
		}

		// Step back by the overlap but always move forward.
		next := end - s.config.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	logger.Debug("[%s] created %d chunks from %d runes", s.Name(), len(pieces), n)
	return pieces
}

// cut picks where the window [start, end) should end. It prefers, in order, a
// paragraph break, a line break, a sentence end and any whitespace inside the
// look-back range, and falls back to a hard cut at end.
func (s *TextChunker) cut(runes []rune, start, end int) int {
	lo := end - s.config.Lookback
	// Keep the next window start ahead of this one.
	if floor := start + s.config.Overlap + 1; lo < floor {
		lo = floor
	}
	if lo >= end {
		return end
	}

	for _, isBoundary := range []func([]rune, int) bool{
		paragraphBreak,
		lineBreak,
		sentenceEnd,
		whitespace,
	} {
		for i := end; i >= lo; i-- {
			if isBoundary(runes, i) {
				return i
			}
		}
	}
	return end
}

// Each boundary check looks at the runes just before position i.

func paragraphBreak(r []rune, i int) bool {
	return i >= 2 && r[i-1] == '\n' && r[i-2] == '\n'
}

func lineBreak(r []rune, i int) bool {
	return i >= 1 && r[i-1] == '\n'
}

func sentenceEnd(r []rune, i int) bool {
	if i < 2 || !unicode.IsSpace(r[i-1]) {
		return false
	}
	switch r[i-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func whitespace(r []rune, i int) bool {
	return i >= 1 && unicode.IsSpace(r[i-1])
}
