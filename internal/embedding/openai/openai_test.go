package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_OPENAI_KEY", Model: "m", MaxRetries: 2})
	require.NoError(t, err)
	c.retryBase = time.Millisecond
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("MISSING_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "MISSING_KEY"})
	assert.ErrorContains(t, err, "MISSING_KEY")

	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, "openai/"+DefaultModel, c.Name())
}

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		// out of order on purpose
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,2]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	vecs, err := newTestClient(t, srv.URL).EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 2}}, vecs)
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "429")
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedAcceptsOllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.25,0.75]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.75}, v)
}

func TestRetryDelayIsCapped(t *testing.T) {
	c := &Client{retryBase: 200 * time.Millisecond}
	assert.Equal(t, 200*time.Millisecond, c.retryDelay(0))
	assert.Equal(t, 800*time.Millisecond, c.retryDelay(2))
	assert.Equal(t, 5*time.Second, c.retryDelay(10))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter("soon"))
}
