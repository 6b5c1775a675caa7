package chunker

import "mitey/internal/domain"

// FixedChunker cuts text into windows of Size runes that advance by
// Size-Overlap, so neighbours share exactly Overlap runes.
type FixedChunker struct {
	opts Options
}

func (c *FixedChunker) Split(doc domain.Document) []domain.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}
	step := c.opts.Size - c.opts.Overlap
	var chunks []domain.Chunk
	for start := 0; ; start += step {
		end := min(start+c.opts.Size, len(runes))
		chunks = append(chunks, newChunk(doc.Source, runes, start, end, len(chunks)))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
