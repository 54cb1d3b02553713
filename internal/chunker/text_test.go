package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobkb/internal/kb"
)

func TestTextChunker_EmptyAndShort(t *testing.T) {
	c := NewTextChunker(DefaultConfig())

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\t "))

	text := "Forklift certification required."
	pieces := c.Split(text)
	require.Len(t, pieces, 1)
	assert.Equal(t, Piece{Index: 0, Text: text, Start: 0, End: utf8.RuneCountInString(text)}, pieces[0])
}

func TestTextChunker_PrefersBoundaries(t *testing.T) {
	t.Run("paragraph break", func(t *testing.T) {
		c := NewTextChunker(Config{Size: 20, Overlap: 0, Lookback: 15})
		pieces := c.Split("Intro line.\n\nSecond para has words")
		require.NotEmpty(t, pieces)
		assert.Equal(t, "Intro line.\n\n", pieces[0].Text)
	})

	t.Run("sentence end over plain space", func(t *testing.T) {
		c := NewTextChunker(Config{Size: 17, Overlap: 0, Lookback: 10})
		pieces := c.Split("One two. Three four five")
		require.Len(t, pieces, 2)
		assert.Equal(t, "One two. ", pieces[0].Text)
		assert.Equal(t, "Three four five", pieces[1].Text)
	})

	t.Run("hard cut without boundary", func(t *testing.T) {
		c := NewTextChunker(Config{Size: 10, Overlap: 2, Lookback: 4})
		pieces := c.Split("abcdefghijklmnopqrstuvwxyz")
		require.Len(t, pieces, 3)
		assert.Equal(t, "abcdefghij", pieces[0].Text)
		assert.Equal(t, "ijklmnopqr", pieces[1].Text)
		assert.Equal(t, "qrstuvwxyz", pieces[2].Text)
	})
}

func TestTextChunker_Coverage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Warehouse associates must lift 50 lbs and operate pallet jacks safely. ")
		if i%7 == 6 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	total := utf8.RuneCountInString(text)

	configs := []Config{
		DefaultConfig(),
		{Size: 100, Overlap: 20, Lookback: 30},
		{Size: 64, Overlap: 0, Lookback: 0},
		{Size: 33, Overlap: 32, Lookback: 10},
	}

	for _, cfg := range configs {
		pieces := NewTextChunker(cfg).Split(text)
		require.NotEmpty(t, pieces)

		assert.Equal(t, 0, pieces[0].Start)
		assert.Equal(t, total, pieces[len(pieces)-1].End)
		for i, p := range pieces {
			assert.Equal(t, i, p.Index)
			assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), cfg.Size)
			if i > 0 {
				assert.Greater(t, p.Start, pieces[i-1].Start, "windows must advance")
				assert.LessOrEqual(t, p.Start, pieces[i-1].End, "no gap between windows")
			}
		}
		assert.Equal(t, text, Reassemble(pieces))
	}
}

func TestTextChunker_MultibyteText(t *testing.T) {
	text := strings.Repeat("Überstunden möglich – Schichtzulage inklusive. ", 30)
	pieces := NewTextChunker(Config{Size: 80, Overlap: 16, Lookback: 20}).Split(text)

	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		assert.True(t, utf8.ValidString(p.Text))
	}
	assert.Equal(t, text, Reassemble(pieces))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{Size: 0}.Validate(), kb.ErrValidation)
	assert.ErrorIs(t, Config{Size: 10, Overlap: 10}.Validate(), kb.ErrValidation)
	assert.ErrorIs(t, Config{Size: 10, Overlap: -1}.Validate(), kb.ErrValidation)
	assert.ErrorIs(t, Config{Size: 10, Lookback: -1}.Validate(), kb.ErrValidation)
}

func TestChunkID(t *testing.T) {
	a := ChunkID("handbook", 0)
	assert.Equal(t, a, ChunkID("handbook", 0))
	assert.NotEqual(t, a, ChunkID("handbook", 1))
	assert.NotEqual(t, a, ChunkID("handbook-2", 0))
	assert.Len(t, a, 36)
}
