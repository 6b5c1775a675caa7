package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type singleEmbedder struct {
	calls int
	fail  int
}

func (s *singleEmbedder) Name() string { return "single" }

func (s *singleEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.fail > 0 && s.calls == s.fail {
		return nil, errors.New("boom")
	}
	return []float32{float32(len(text)), 1}, nil
}

type batchEmbedder struct {
	singleEmbedder
	batches []int
	dim     func(i int) int
}

func (b *batchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.batches = append(b.batches, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		n := 3
		if b.dim != nil {
			n = b.dim(i)
		}
		out[i] = make([]float32, n)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func TestEmbedAll(t *testing.T) {
	ctx := context.Background()
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	t.Run("single embedder keeps order", func(t *testing.T) {
		e := &singleEmbedder{}
		vecs, err := EmbedAll(ctx, e, texts, 2)
		require.NoError(t, err)
		require.Len(t, vecs, 5)
		for i, v := range vecs {
			assert.Equal(t, float32(i+1), v[0])
		}
		assert.Equal(t, 5, e.calls)
	})

	t.Run("batch embedder is chunked", func(t *testing.T) {
		e := &batchEmbedder{}
		vecs, err := EmbedAll(ctx, e, texts, 2)
		require.NoError(t, err)
		require.Len(t, vecs, 5)
		assert.Equal(t, []int{2, 2, 1}, e.batches)
		assert.Equal(t, float32(5), vecs[4][0])
	})

	t.Run("failure stops the pass", func(t *testing.T) {
		e := &singleEmbedder{fail: 3}
		_, err := EmbedAll(ctx, e, texts, 0)
		assert.Error(t, err)
		assert.Equal(t, 3, e.calls)
	})

	t.Run("mixed dimensions are rejected", func(t *testing.T) {
		e := &batchEmbedder{dim: func(i int) int { return 3 + i%2 }}
		_, err := EmbedAll(ctx, e, texts, 10)
		assert.ErrorContains(t, err, "dimension")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := EmbedAll(cctx, &singleEmbedder{}, texts, 0)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
