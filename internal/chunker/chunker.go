// Package chunker splits document text into bounded, overlapping segments
// for embedding and retrieval.
//
// Splitting happens on paragraph boundaries first; a paragraph longer than
// the configured size is further split on sentence boundaries. Adjacent
// chunks are stitched with an overlap so context survives chunk borders.
// All sizes are measured in runes, not bytes, since campus documents are
// frequently CJK text.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidConfig indicates an unusable size/overlap combination. It is a
// configuration error: fatal, surfaced immediately, never retried.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// paragraphSplitter matches blank-line paragraph separators.
var paragraphSplitter = regexp.MustCompile(`\n[ \t]*\n+`)

// sentenceSplitter matches a sentence: text up to a run of terminal
// punctuation (Latin or CJK) plus trailing whitespace.
var sentenceSplitter = regexp.MustCompile(`[^.!?。！？]*[.!?。！？]+[)"'」』]*\s*`)

// Chunker is a pure text splitter. It performs no I/O and is safe for
// concurrent use.
type Chunker struct {
	maxSize int
	overlap int
}

// New creates a Chunker. maxSize must be positive and overlap must be
// non-negative and strictly smaller than maxSize.
func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, overlap, maxSize)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Split returns the ordered chunks for text. Empty or whitespace-only
// input yields nil. A single sentence longer than maxSize is emitted
// unsplit rather than truncated.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var segments []string
	for _, para := range paragraphSplitter.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if runeLen(para) <= c.maxSize {
			segments = append(segments, para)
			continue
		}
		segments = append(segments, c.splitParagraph(para)...)
	}

	return c.stitch(segments)
}

// splitParagraph breaks an oversized paragraph on sentence boundaries,
// greedily packing sentences up to maxSize per segment.
func (c *Chunker) splitParagraph(para string) []string {
	sentences := sentenceSplitter.FindAllString(para, -1)
	consumed := 0
	for _, s := range sentences {
		consumed += len(s)
	}
	// Trailing text without terminal punctuation is its own sentence.
	if rest := strings.TrimSpace(para[consumed:]); rest != "" {
		sentences = append(sentences, rest)
	}

	var segments []string
	var current strings.Builder
	currentLen := 0

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		sLen := runeLen(sentence)

		if currentLen > 0 && currentLen+1+sLen > c.maxSize {
			segments = append(segments, current.String())
			current.Reset()
			currentLen = 0
		}

		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += sLen
	}
	if currentLen > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// stitch prepends the overlap-rune suffix of each raw segment to its
// successor. The suffix is taken from the raw segment, not the stitched
// one, so overlaps never cascade.
func (c *Chunker) stitch(segments []string) []string {
	if len(segments) == 0 {
		return nil
	}
	if c.overlap == 0 || len(segments) == 1 {
		return segments
	}

	out := make([]string, len(segments))
	out[0] = segments[0]
	for i := 1; i < len(segments); i++ {
		out[i] = runeSuffix(segments[i-1], c.overlap) + segments[i]
	}
	return out
}

// OverlapPrefixLen reports how many runes of the chunk at index i are
// overlap carried from its predecessor, given the raw (unstitched)
// predecessor. Callers re-assembling a document strip this prefix.
func (c *Chunker) OverlapPrefixLen(prevRaw string) int {
	if c.overlap == 0 {
		return 0
	}
	n := runeLen(prevRaw)
	if n < c.overlap {
		return n
	}
	return c.overlap
}

func runeLen(s string) int { return len([]rune(s)) }

func runeSuffix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
