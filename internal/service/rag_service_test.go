package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mitey/internal/chunker"
	"mitey/internal/conversation"
	"mitey/internal/domain"
	"mitey/internal/embedding/hashing"
	"mitey/internal/retriever"
	"mitey/internal/scanner"
	"mitey/internal/vectorstore"
	"mitey/internal/vectorstore/memory"
	"mitey/internal/vectorstore/sqlite"
)

type fakeModel struct {
	reply    string
	err      error
	received [][]domain.Message
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	m.received = append(m.received, msgs)
	return m.reply, m.err
}

type brokenEmbedder struct{}

func (brokenEmbedder) Name() string { return "broken" }

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

// offlineEmbedder fails its reachability check and counts embed calls.
type offlineEmbedder struct {
	embeds int
}

func (e *offlineEmbedder) Name() string { return "offline" }

func (e *offlineEmbedder) Ping(context.Context) error {
	return errors.New("dial tcp 127.0.0.1:11434: connection refused")
}

func (e *offlineEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.embeds++
	return []float32{1}, nil
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newService(t *testing.T, root string, emb domain.Embedder, store vectorstore.Storage, model domain.ChatModel) *RAGService {
	t.Helper()
	ch, err := chunker.New("fixed", chunker.DefaultOptions())
	require.NoError(t, err)
	return NewRAGService(Dependencies{
		Scanner:   scanner.New(scanner.Options{ProjectRoot: root}, ch),
		Embedder:  emb,
		Store:     store,
		Retriever: retriever.New(retriever.Options{ProjectRoot: root}),
		Assembler: conversation.NewAssembler(conversation.Options{}, nil, nil),
		Model:     model,
	}, Options{})
}

func TestIndexSingleFile(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	store := memory.NewStorage()
	svc := newService(t, root, hashing.NewEmbedder(64), store, &fakeModel{})

	sum, err := svc.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 1, sum.Chunks)
	assert.Equal(t, domain.Manifest{"a.md"}, sum.Manifest)
	assert.Len(t, sum.BuildID, 26)

	idx, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sum.BuildID, idx.BuildID())
	assert.Equal(t, "hashing/64", idx.Model())
	assert.Equal(t, 64, idx.Dimension())
	assert.Equal(t, 1, idx.Len())

	rec := idx.(*memory.Index).Records()[0]
	assert.Equal(t, "a.md", rec.Source)
	assert.Equal(t, "hello world", rec.Text)
	assert.Equal(t, 0, rec.Seq)
	assert.NotEmpty(t, rec.ID)
}

func TestIndexEmptyProject(t *testing.T) {
	root := writeProject(t, map[string]string{"main.go": "package main"})
	svc := newService(t, root, hashing.NewEmbedder(64), memory.NewStorage(), &fakeModel{reply: "nothing here"})

	sum, err := svc.Index(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Chunks)

	history := conversation.NewHistory()
	ans, err := svc.Ask(context.Background(), history, "what is this project?")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeEmpty, ans.Context.Mode)
	assert.Equal(t, domain.EmptyContext, ans.Context.Text)
}

func TestIndexEmbeddingFailureKeepsPreviousBuild(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	store := memory.NewStorage()

	first, err := newService(t, root, hashing.NewEmbedder(64), store, &fakeModel{}).Index(context.Background())
	require.NoError(t, err)

	_, err = newService(t, root, brokenEmbedder{}, store, &fakeModel{}).Index(context.Background())
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	idx, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.BuildID, idx.BuildID())
}

func TestIndexEmbeddingFailurePersistsNothing(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	dir := filepath.Join(t.TempDir(), "local_index_data")
	store := sqlite.NewStorage(dir)

	_, err := newService(t, root, brokenEmbedder{}, store, &fakeModel{}).Index(context.Background())
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestIndexUnreachableEmbedderFailsBeforeScan(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	store := memory.NewStorage()
	emb := &offlineEmbedder{}

	_, err := newService(t, root, emb, store, &fakeModel{}).Index(context.Background())
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, emb.embeds)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestAskBeforeIndex(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	model := &fakeModel{reply: "hi"}
	svc := newService(t, root, hashing.NewEmbedder(64), sqlite.NewStorage(t.TempDir()), model)

	history := conversation.NewHistory()
	_, err := svc.Ask(context.Background(), history, "what is a.md?")
	require.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.Zero(t, history.Len())
	assert.Empty(t, model.received)
}

func TestLoadIncompatibleEmbedder(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	store := memory.NewStorage()
	_, err := newService(t, root, hashing.NewEmbedder(64), store, &fakeModel{}).Index(context.Background())
	require.NoError(t, err)

	_, err = newService(t, root, hashing.NewEmbedder(128), store, &fakeModel{}).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrIndexIncompatible)
}

func TestAskDirectFile(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/app.ts":  "export const app = 1;",
		"src/util.ts": "export const id = (x) => x;",
	})
	model := &fakeModel{reply: "app.ts exports app"}
	svc := newService(t, root, hashing.NewEmbedder(64), memory.NewStorage(), model)
	_, err := svc.Index(context.Background())
	require.NoError(t, err)

	history := conversation.NewHistory()
	ans, err := svc.Ask(context.Background(), history, "What does app.ts do?")
	require.NoError(t, err)
	assert.Equal(t, "app.ts exports app", ans.Reply)
	assert.Equal(t, domain.ModeDirect, ans.Context.Mode)
	assert.Equal(t, []string{"src/app.ts"}, ans.Context.Sources)

	require.Len(t, model.received, 1)
	msgs := model.received[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Project files: src/app.ts, src/util.ts.")
	assert.Equal(t, "Context snippets:\n[File: src/app.ts]\nexport const app = 1;\n\nQuestion: What does app.ts do?", msgs[1].Content)

	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "What does app.ts do?"},
		{Role: domain.RoleAssistant, Content: "app.ts exports app"},
	}, history.Turns())
}

func TestAskSemanticReplaysHistory(t *testing.T) {
	root := writeProject(t, map[string]string{
		"docs/routing.md": "The router maps each path to a handler.",
		"docs/cache.md":   "Entries expire after ten minutes in the cache.",
	})
	model := &fakeModel{reply: "first"}
	svc := newService(t, root, hashing.NewEmbedder(256), memory.NewStorage(), model)
	_, err := svc.Index(context.Background())
	require.NoError(t, err)

	history := conversation.NewHistory()
	ans, err := svc.Ask(context.Background(), history, "how does the router pick a handler")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeSemantic, ans.Context.Mode)
	assert.Equal(t, "docs/routing.md", ans.Context.Sources[0])
	assert.True(t, strings.HasPrefix(ans.Context.Text, "[File: docs/routing.md]\n"))

	model.reply = "second"
	_, err = svc.Ask(context.Background(), history, "and when do entries expire")
	require.NoError(t, err)

	require.Len(t, model.received, 2)
	second := model.received[1]
	require.Len(t, second, 4)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "how does the router pick a handler"}, second[1])
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "first"}, second[2])
	assert.Equal(t, 4, history.Len())
}

func TestAskModelFailureLeavesHistory(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	model := &fakeModel{err: errors.New("connection refused")}
	svc := newService(t, root, hashing.NewEmbedder(64), memory.NewStorage(), model)
	_, err := svc.Index(context.Background())
	require.NoError(t, err)

	history := conversation.NewHistory()
	history.Append("earlier", "answer")

	_, err = svc.Ask(context.Background(), history, "what is a.md?")
	require.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Equal(t, 2, history.Len())
}

func TestPersistedSearchMatchesFreshBuild(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.md":       "alpha beta gamma",
		"b.md":       "beta gamma delta",
		"src/c.ts":   "export function gamma() { return delta; }",
		"src/d.tsx":  "const Alpha = () => <div>alpha</div>;",
		"README.md":  "Project readme mentions alpha and delta.",
		"notes/e.md": "",
	})
	store := sqlite.NewStorage(filepath.Join(t.TempDir(), "local_index_data"))
	svc := newService(t, root, hashing.NewEmbedder(128), store, &fakeModel{})

	_, err := svc.Index(context.Background())
	require.NoError(t, err)
	persisted, err := svc.Load(context.Background())
	require.NoError(t, err)

	res, err := svc.deps.Scanner.Scan(context.Background())
	require.NoError(t, err)
	snap, err := svc.Build(context.Background(), res.Chunks)
	require.NoError(t, err)
	fresh := memory.NewIndex(snap)

	for _, q := range []string{"alpha", "gamma delta", "readme", "unrelated words"} {
		want, err := svc.Searcher(fresh).SimilaritySearch(context.Background(), q, 6)
		require.NoError(t, err)
		got, err := svc.Searcher(persisted).SimilaritySearch(context.Background(), q, 6)
		require.NoError(t, err)
		require.Len(t, got, len(want), q)
		for i := range want {
			assert.Equal(t, want[i].Record.Source, got[i].Record.Source, q)
			assert.Equal(t, want[i].Record.Text, got[i].Record.Text, q)
			assert.InDelta(t, want[i].Distance, got[i].Distance, 1e-9, q)
		}
	}
}

func TestSimilaritySearchInvalidK(t *testing.T) {
	root := writeProject(t, map[string]string{"a.md": "hello world"})
	svc := newService(t, root, hashing.NewEmbedder(64), memory.NewStorage(), &fakeModel{})
	_, err := svc.Index(context.Background())
	require.NoError(t, err)

	_, err = svc.SimilaritySearch(context.Background(), "hello", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	hits, err := svc.SimilaritySearch(context.Background(), "hello", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.md", hits[0].Record.Source)
}
