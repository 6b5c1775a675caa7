package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mitey/internal/domain"
	"mitey/internal/log"
)

var DefaultExtensions = []string{".tsx", ".ts", ".js", ".jsx", ".md"}

var DefaultIgnoreDirs = []string{".git", "node_modules"}

// Options configure a scan. Sources are reported relative to ProjectRoot.
type Options struct {
	ProjectRoot string
	SourceDir   string
	Extensions  []string
	IgnoreDirs  []string
	Concurrency int
}

// Result is the output of one scan.
type Result struct {
	Files    int
	Chunks   []domain.Chunk
	Manifest domain.Manifest
	Elapsed  time.Duration
}

// Scanner walks a source tree and chunks every allow-listed file.
type Scanner struct {
	opts    Options
	exts    map[string]struct{}
	ignore  map[string]struct{}
	chunker domain.Chunker
	logger  *slog.Logger
}

func New(opts Options, ch domain.Chunker) *Scanner {
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = "."
	}
	if opts.SourceDir == "" {
		opts.SourceDir = "."
	}
	if opts.Extensions == nil {
		opts.Extensions = DefaultExtensions
	}
	if opts.IgnoreDirs == nil {
		opts.IgnoreDirs = DefaultIgnoreDirs
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	s := &Scanner{
		opts:    opts,
		exts:    make(map[string]struct{}, len(opts.Extensions)),
		ignore:  make(map[string]struct{}, len(opts.IgnoreDirs)),
		chunker: ch,
		logger:  log.NewModuleLogger("scanner", "walk"),
	}
	for _, e := range opts.Extensions {
		s.exts[strings.ToLower(e)] = struct{}{}
	}
	for _, d := range opts.IgnoreDirs {
		s.ignore[d] = struct{}{}
	}
	return s
}

// Allowed reports whether a file name passes the extension allow-list.
func (s *Scanner) Allowed(name string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Ignored reports whether a directory name is excluded from the walk.
func (s *Scanner) Ignored(name string) bool {
	_, ok := s.ignore[name]
	return ok
}

// Dirs returns the absolute project root and source directory. A relative
// source directory is taken from the project root.
func (s *Scanner) Dirs() (root, srcDir string, err error) {
	root, err = filepath.Abs(s.opts.ProjectRoot)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", domain.ErrScanIO, err)
	}
	srcDir = s.opts.SourceDir
	if !filepath.IsAbs(srcDir) {
		srcDir = filepath.Join(root, srcDir)
	}
	return root, srcDir, nil
}

// Scan lists, reads and chunks the tree. Any unreadable directory or file
// aborts the scan with domain.ErrScanIO.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	start := time.Now()
	root, srcDir, err := s.Dirs()
	if err != nil {
		return nil, err
	}

	paths, err := s.listFiles(ctx, srcDir)
	if err != nil {
		return nil, err
	}
	files := make([]file, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrScanIO, err)
		}
		files = append(files, file{path: p, source: filepath.ToSlash(rel)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].source < files[j].source })

	perFile, err := s.chunkFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	var chunks []domain.Chunk
	for _, cs := range perFile {
		chunks = append(chunks, cs...)
	}
	res := &Result{
		Files:    len(files),
		Chunks:   chunks,
		Manifest: domain.NewManifest(chunks),
		Elapsed:  time.Since(start),
	}
	s.logger.Info("scan complete", "dir", srcDir, "files", res.Files, "chunks", len(chunks), "elapsed", res.Elapsed)
	return res, nil
}

type file struct {
	path   string
	source string
}

// listFiles walks the tree one level at a time. Directories of a level are
// read concurrently and joined before the next level starts.
func (s *Scanner) listFiles(ctx context.Context, dir string) ([]string, error) {
	var files []string
	level := []string{dir}
	for depth := 0; len(level) > 0; depth++ {
		entries := make([][]fs.DirEntry, len(level))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Concurrency)
		for i, d := range level {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				es, err := os.ReadDir(d)
				if err != nil {
					return fmt.Errorf("%w: read dir %s: %w", domain.ErrScanIO, d, err)
				}
				entries[i] = es
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for i, d := range level {
			for _, e := range entries[i] {
				p := filepath.Join(d, e.Name())
				switch {
				case e.IsDir():
					if !s.Ignored(e.Name()) {
						next = append(next, p)
					}
				case e.Type().IsRegular():
					if s.Allowed(e.Name()) {
						files = append(files, p)
					}
				}
			}
		}
		s.logger.Debug("scanned level", "depth", depth, "dirs", len(level), "files", len(files))
		level = next
	}
	return files, nil
}

func (s *Scanner) chunkFiles(ctx context.Context, files []file) ([][]domain.Chunk, error) {
	out := make([][]domain.Chunk, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.path)
			if err != nil {
				return fmt.Errorf("%w: read %s: %w", domain.ErrScanIO, f.source, err)
			}
			out[i] = s.chunker.Split(domain.Document{Source: f.source, Text: string(data)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
