package retriever

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mitey/internal/domain"
)

type fakeSearcher struct {
	results []domain.SearchResult
	err     error
	calls   int
	lastK   int
}

func (f *fakeSearcher) SimilaritySearch(_ context.Context, _ string, k int) ([]domain.SearchResult, error) {
	f.calls++
	f.lastK = k
	return f.results, f.err
}

func hit(source, text string) domain.SearchResult {
	return domain.SearchResult{Record: domain.Record{Source: source, Text: text}}
}

func projectWith(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestMatchFile(t *testing.T) {
	manifest := domain.Manifest{"src/app.ts", "src/util.ts", "lib/app.ts"}
	tests := []struct {
		query string
		want  string
		ok    bool
	}{
		{"what does app.ts do", "src/app.ts", true},
		{"Explain UTIL.TS please", "src/util.ts", true},
		{"compare util.ts and app.ts", "src/app.ts", true},
		{"how is routing set up", "", false},
		{"what is in src/", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := MatchFile(tt.query, manifest)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetrieveDirectFile(t *testing.T) {
	root := projectWith(t, map[string]string{
		"src/app.ts":  "export const app = createApp();\n// edited after indexing\n",
		"src/util.ts": "export const id = (x) => x;\n",
	})
	r := New(Options{ProjectRoot: root})
	s := &fakeSearcher{results: []domain.SearchResult{hit("src/app.ts", "stale chunk")}}

	got, err := r.Retrieve(context.Background(), "what does app.ts do", domain.Manifest{"src/app.ts", "src/util.ts"}, s)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDirect, got.Mode)
	assert.Equal(t, "[File: src/app.ts]\nexport const app = createApp();\n// edited after indexing\n", got.Text)
	assert.Equal(t, []string{"src/app.ts"}, got.Sources)
	assert.Zero(t, s.calls, "direct match must not query the index")
}

func TestRetrieveDirectFileMissing(t *testing.T) {
	r := New(Options{ProjectRoot: t.TempDir()})
	_, err := r.Retrieve(context.Background(), "open gone.md", domain.Manifest{"gone.md"}, &fakeSearcher{})
	assert.ErrorIs(t, err, domain.ErrScanIO)
}

func TestRetrieveSemantic(t *testing.T) {
	r := New(Options{ProjectRoot: t.TempDir()})
	s := &fakeSearcher{results: []domain.SearchResult{
		hit("src/a.ts", "first"),
		hit("src/b.ts", "second"),
		hit("src/a.ts", "third"),
	}}

	got, err := r.Retrieve(context.Background(), "how are users stored", domain.Manifest{"src/a.ts", "src/b.ts"}, s)
	require.NoError(t, err)
	assert.Equal(t, 6, s.lastK)
	assert.Equal(t, domain.ModeSemantic, got.Mode)
	assert.Equal(t, "[File: src/a.ts]\nfirst\n---\n[File: src/b.ts]\nsecond\n---\n[File: src/a.ts]\nthird", got.Text)
	assert.Equal(t, []string{"src/a.ts", "src/b.ts"}, got.Sources)
}

func TestRetrieveEmpty(t *testing.T) {
	r := New(Options{})
	got, err := r.Retrieve(context.Background(), "anything", nil, &fakeSearcher{})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeEmpty, got.Mode)
	assert.Equal(t, domain.EmptyContext, got.Text)
}

func TestRetrieveSearchError(t *testing.T) {
	boom := errors.New("embedder down")
	_, err := New(Options{}).Retrieve(context.Background(), "q", domain.Manifest{"a.md"}, &fakeSearcher{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestCustomK(t *testing.T) {
	s := &fakeSearcher{}
	_, err := New(Options{K: 3}).Retrieve(context.Background(), "q", nil, s)
	require.NoError(t, err)
	assert.Equal(t, 3, s.lastK)
}
