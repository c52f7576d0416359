package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		overlap int
	}{
		{"zero max size", 0, 0},
		{"negative max size", -10, 0},
		{"negative overlap", 100, -1},
		{"overlap equals max size", 100, 100},
		{"overlap exceeds max size", 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.maxSize, tt.overlap)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\n\t  "))
}

func TestSplit_SingleShortParagraph(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	chunks := c.Split("A short paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short paragraph.", chunks[0])
}

func TestSplit_ParagraphBoundaries(t *testing.T) {
	c, err := New(100, 0)
	require.NoError(t, err)

	text := "First paragraph.\n\nSecond paragraph.\n\n\nThird paragraph."
	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "First paragraph.", chunks[0])
	assert.Equal(t, "Second paragraph.", chunks[1])
	assert.Equal(t, "Third paragraph.", chunks[2])
}

func TestSplit_OversizedParagraphSplitsOnSentences(t *testing.T) {
	c, err := New(40, 0)
	require.NoError(t, err)

	text := "One sentence here. Another sentence here. A third one follows. And a fourth."
	chunks := c.Split(text)

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 40, "chunk %q over size", chunk)
	}
}

func TestSplit_OverlongSentenceEmittedUnsplit(t *testing.T) {
	c, err := New(20, 0)
	require.NoError(t, err)

	long := strings.Repeat("x", 55) + "."
	chunks := c.Split(long)

	require.Len(t, chunks, 1)
	assert.Equal(t, long, chunks[0], "overlong sentence must never be truncated")
}

func TestSplit_OverlapStitching(t *testing.T) {
	c, err := New(30, 8)
	require.NoError(t, err)

	text := "Alpha beta gamma delta done. Epsilon zeta eta theta done. Iota kappa lambda mu done."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// Rebuild the raw segments by progressively stripping overlap prefixes;
	// each chunk after the first must begin with its predecessor's suffix.
	prevRaw := chunks[0]
	for i := 1; i < len(chunks); i++ {
		n := c.OverlapPrefixLen(prevRaw)
		prefix := string([]rune(prevRaw)[len([]rune(prevRaw))-n:])
		assert.True(t, strings.HasPrefix(chunks[i], prefix),
			"chunk %d %q does not start with overlap %q", i, chunks[i], prefix)
		prevRaw = string([]rune(chunks[i])[n:])
	}
}

// TestSplit_ReassemblyInvariant verifies that stripping the overlap prefix
// and re-joining chunks reproduces the input modulo boundary whitespace.
func TestSplit_ReassemblyInvariant(t *testing.T) {
	c, err := New(35, 10)
	require.NoError(t, err)

	text := "The library opens at eight. Books are due in two weeks. Fines accrue daily after that.\n\nThe gym requires a campus card."
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	var rebuilt []string
	prevRaw := ""
	for i, chunk := range chunks {
		raw := chunk
		if i > 0 {
			n := c.OverlapPrefixLen(prevRaw)
			raw = string([]rune(chunk)[n:])
		}
		rebuilt = append(rebuilt, raw)
		prevRaw = raw
	}

	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	assert.Equal(t, normalize(text), normalize(strings.Join(rebuilt, " ")))
}

func TestSplit_CJKSentences(t *testing.T) {
	c, err := New(12, 0)
	require.NoError(t, err)

	text := "图书馆八点开门。健身房需要校园卡。食堂晚上九点关门。"
	chunks := c.Split(text)

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 12)
	}
}

func TestSplit_ZeroOverlapUnchanged(t *testing.T) {
	c, err := New(50, 0)
	require.NoError(t, err)

	text := "Para one.\n\nPara two."
	chunks := c.Split(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Para one.", chunks[0])
	assert.Equal(t, "Para two.", chunks[1])
}
