package chunker

import (
	"slices"

	"mitey/internal/domain"
)

// Paragraphs first, then lines, then sentences, then words.
var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// RecursiveChunker behaves like FixedChunker but moves each cut back to the
// strongest natural break inside the window. Text without breaks is cut on
// length alone.
type RecursiveChunker struct {
	opts       Options
	separators []string
}

func (c *RecursiveChunker) Split(doc domain.Document) []domain.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}
	var chunks []domain.Chunk
	start := 0
	for {
		if len(runes)-start <= c.opts.Size {
			chunks = append(chunks, newChunk(doc.Source, runes, start, len(runes), len(chunks)))
			return chunks
		}
		end := c.cut(runes, start)
		chunks = append(chunks, newChunk(doc.Source, runes, start, end, len(chunks)))
		start = end - c.opts.Overlap
	}
}

// cut returns the end of the chunk starting at start. The end always lies in
// (start+Overlap, start+Size] so the next chunk starts strictly later.
func (c *RecursiveChunker) cut(runes []rune, start int) int {
	limit := start + c.opts.Size
	floor := start + c.opts.Overlap
	for _, sep := range c.separators {
		s := []rune(sep)
		for end := limit; end > floor && end-len(s) >= start; end-- {
			if slices.Equal(runes[end-len(s):end], s) {
				return end
			}
		}
	}
	return limit
}
