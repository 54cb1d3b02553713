// Package chunker splits document text into overlapping windows.
package chunker

import "jobkb/internal/kb"

// Piece is one window of the source text. Start and End are rune offsets.
type Piece struct {
	Index int
	Text  string
	Start int
	End   int
}

// Chunker splits text into ordered pieces.
type Chunker interface {
	Split(text string) []Piece

	// Name is used in logs.
	Name() string
}

// Config holds window parameters, in runes.
type Config struct {
	Size     int // window length
	Overlap  int // runes shared by consecutive windows
	Lookback int // how far back from the window edge to search for a boundary
}

// DefaultConfig is a 512 rune window with 20% overlap.
func DefaultConfig() Config {
	return Config{Size: 512, Overlap: 102, Lookback: 64}
}

// Validate rejects windows that cannot advance.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return kb.Validationf("chunk_size", "must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return kb.Validationf("chunk_overlap", "must be in [0, %d), got %d", c.Size, c.Overlap)
	}
	if c.Lookback < 0 {
		return kb.Validationf("chunk_lookback", "must not be negative, got %d", c.Lookback)
	}
	return nil
}
