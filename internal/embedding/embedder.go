package embedding

import (
	"context"
	"fmt"

	"mitey/internal/domain"
)

const DefaultBatchSize = 32

// EmbedAll embeds texts in order and returns one vector per text. Embedders
// that implement domain.BatchEmbedder receive requests of at most batchSize
// texts; others are called once per text.
func EmbedAll(ctx context.Context, e domain.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([][]float32, 0, len(texts))
	if be, ok := e.(domain.BatchEmbedder); ok {
		for start := 0; start < len(texts); start += batchSize {
			end := min(start+batchSize, len(texts))
			vecs, err := be.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vecs))
			}
			out = append(out, vecs...)
		}
		return out, checkDimensions(out)
	}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, checkDimensions(out)
}

func checkDimensions(vecs [][]float32) error {
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("empty embedding for text %d", i)
		}
		if len(v) != len(vecs[0]) {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), len(vecs[0]))
		}
	}
	return nil
}
