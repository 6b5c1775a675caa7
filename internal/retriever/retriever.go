// Package retriever decides what context accompanies a question: a whole
// file when the question names one, otherwise the nearest indexed chunks.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mitey/internal/domain"
	"mitey/internal/log"
)

const (
	DefaultK  = 6
	Separator = "\n---\n"
)

// Searcher answers nearest-neighbour queries for a question.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

type Options struct {
	// ProjectRoot is the directory manifest sources are relative to.
	ProjectRoot string
	K           int
}

type Retriever struct {
	root   string
	k      int
	logger *slog.Logger
}

func New(opts Options) *Retriever {
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = "."
	}
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	return &Retriever{
		root:   opts.ProjectRoot,
		k:      opts.K,
		logger: log.NewModuleLogger("retriever", "hybrid"),
	}
}

// MatchFile returns the first manifest entry whose base name occurs in the
// query, ignoring case.
func MatchFile(query string, manifest domain.Manifest) (string, bool) {
	q := strings.ToLower(query)
	for _, src := range manifest {
		base := strings.ToLower(path.Base(src))
		if base != "" && strings.Contains(q, base) {
			return src, true
		}
	}
	return "", false
}

// Retrieve builds the context block for query. A named file is read from
// disk in full; otherwise the k nearest chunks are joined best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, manifest domain.Manifest, searcher Searcher) (domain.RetrievedContext, error) {
	if src, ok := MatchFile(query, manifest); ok {
		data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(src)))
		if err != nil {
			return domain.RetrievedContext{}, fmt.Errorf("%w: read %s: %w", domain.ErrScanIO, src, err)
		}
		r.logger.Debug("direct file match", "source", src, "bytes", len(data))
		return domain.RetrievedContext{
			Text:    block(src, string(data)),
			Sources: []string{src},
			Mode:    domain.ModeDirect,
		}, nil
	}

	results, err := searcher.SimilaritySearch(ctx, query, r.k)
	if err != nil {
		return domain.RetrievedContext{}, err
	}
	if len(results) == 0 {
		return domain.RetrievedContext{Text: domain.EmptyContext, Mode: domain.ModeEmpty}, nil
	}
	blocks := make([]string, len(results))
	sources := make([]string, len(results))
	for i, res := range results {
		blocks[i] = block(res.Record.Source, res.Record.Text)
		sources[i] = res.Record.Source
	}
	r.logger.Debug("semantic retrieval", "k", r.k, "hits", len(results))
	return domain.RetrievedContext{
		Text:    strings.Join(blocks, Separator),
		Sources: dedupe(sources),
		Mode:    domain.ModeSemantic,
	}, nil
}

func block(source, text string) string {
	return "[File: " + source + "]\n" + text
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
