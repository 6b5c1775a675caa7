package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extFilter struct{}

func (extFilter) Allowed(name string) bool { return strings.HasSuffix(name, ".md") }
func (extFilter) Ignored(name string) bool { return name == "node_modules" }

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) onChange(changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, changed)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func startWatcher(t *testing.T, root string) *recorder {
	t.Helper()
	rec := &recorder{}
	w, err := New(Config{Root: root, Debounce: 100 * time.Millisecond}, extFilter{}, rec.onChange)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return rec
}

func TestWatcherDebouncesBurst(t *testing.T) {
	root := t.TempDir()
	rec := startWatcher(t, root)

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "b.md"),
		filepath.Join(root, "c.md"),
	}, rec.last())
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	root := t.TempDir()
	rec := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))
	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	rec := startWatcher(t, root)

	sub := filepath.Join(root, "docs")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return rec.count() >= 1 }, 3*time.Second, 20*time.Millisecond)

	before := rec.count()
	require.NoError(t, os.WriteFile(filepath.Join(sub, "guide.md"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return rec.count() > before }, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, rec.last(), filepath.Join(sub, "guide.md"))
}

func TestWatcherSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	nm := filepath.Join(root, "node_modules")
	require.NoError(t, os.Mkdir(nm, 0o755))
	rec := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(nm, "readme.md"), []byte("x"), 0o644))
	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, rec.count())
}
