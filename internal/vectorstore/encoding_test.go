package vectorstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingBlob(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, math.MaxFloat32, float32(math.Inf(-1))}
	b := EncodeEmbedding(vec)
	assert.Len(t, b, 20)

	got, err := DecodeEmbedding(b)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "not multiple of 4")

	empty, err := DecodeEmbedding(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
