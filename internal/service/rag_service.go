package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"mitey/internal/conversation"
	"mitey/internal/domain"
	"mitey/internal/embedding"
	"mitey/internal/log"
	"mitey/internal/retriever"
	"mitey/internal/scanner"
	"mitey/internal/vectorstore"
)

// Dependencies are the collaborators a RAGService drives.
type Dependencies struct {
	Scanner   *scanner.Scanner
	Embedder  domain.Embedder
	Store     vectorstore.Storage
	Retriever *retriever.Retriever
	Assembler *conversation.Assembler
	Model     domain.ChatModel
}

type Options struct {
	BatchSize int
}

// RAGService runs indexing passes and answers questions against the
// persisted index. Indexing passes are serialized; queries load the index
// fresh and never block on each other.
type RAGService struct {
	deps      Dependencies
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

func NewRAGService(deps Dependencies, opts Options) *RAGService {
	return &RAGService{
		deps:      deps,
		batchSize: opts.BatchSize,
		logger:    log.NewModuleLogger("service", "rag"),
		entropy:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// pinger is implemented by embedders backed by a server that can be
// checked before a pass starts.
type pinger interface {
	Ping(ctx context.Context) error
}

// IndexSummary reports one indexing pass.
type IndexSummary struct {
	BuildID   string
	Files     int
	Chunks    int
	Manifest  domain.Manifest
	ScanTime  time.Duration
	EmbedTime time.Duration
	Elapsed   time.Duration
}

// Index scans the source tree, embeds every chunk and replaces the
// persisted index. On any failure the previous index is left in place.
func (s *RAGService) Index(ctx context.Context) (*IndexSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if p, ok := s.deps.Embedder.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, s.deps.Embedder.Name(), err)
		}
	}
	res, err := s.deps.Scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	scanned := time.Now()

	snap, err := s.build(ctx, res.Chunks)
	if err != nil {
		return nil, err
	}
	embedded := time.Now()

	if err := s.deps.Store.Persist(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	sum := &IndexSummary{
		BuildID:   snap.BuildID,
		Files:     res.Files,
		Chunks:    len(snap.Records),
		Manifest:  snap.Manifest,
		ScanTime:  scanned.Sub(start),
		EmbedTime: embedded.Sub(scanned),
		Elapsed:   time.Since(start),
	}
	s.logger.Info("index built",
		"build_id", sum.BuildID,
		"files", sum.Files,
		"chunks", sum.Chunks,
		"scan", sum.ScanTime,
		"embed", sum.EmbedTime,
	)
	return sum, nil
}

// Build embeds chunks into a snapshot without persisting it.
func (s *RAGService) Build(ctx context.Context, chunks []domain.Chunk) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.build(ctx, chunks)
}

func (s *RAGService) build(ctx context.Context, chunks []domain.Chunk) (*domain.Snapshot, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := embedding.EmbedAll(ctx, s.deps.Embedder, texts, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, s.deps.Embedder.Name(), err)
	}

	now := time.Now()
	snap := &domain.Snapshot{
		BuildID:   ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		Model:     s.deps.Embedder.Name(),
		CreatedAt: now,
		Manifest:  domain.NewManifest(chunks),
		Records:   make([]domain.Record, len(chunks)),
	}
	if len(vecs) > 0 {
		snap.Dimension = len(vecs[0])
	}
	for i, c := range chunks {
		snap.Records[i] = domain.Record{
			ID:     uuid.NewString(),
			Seq:    i,
			Source: c.Source,
			Text:   c.Text,
			Vector: vecs[i],
		}
	}
	return snap, nil
}

// Load opens the persisted index and checks it was built with the
// configured embedder.
func (s *RAGService) Load(ctx context.Context) (vectorstore.Index, error) {
	idx, err := s.deps.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if idx.Len() > 0 && idx.Model() != s.deps.Embedder.Name() {
		return nil, fmt.Errorf("%w: index uses %s, configured embedder is %s", domain.ErrIndexIncompatible, idx.Model(), s.deps.Embedder.Name())
	}
	return idx, nil
}

// Manifest returns the file list of the persisted index.
func (s *RAGService) Manifest(ctx context.Context) (domain.Manifest, error) {
	idx, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Manifest(), nil
}

// Searcher adapts a loaded index to text queries.
func (s *RAGService) Searcher(idx vectorstore.Index) retriever.Searcher {
	return indexSearcher{idx: idx, embedder: s.deps.Embedder}
}

// SimilaritySearch returns the k records nearest to query.
func (s *RAGService) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	idx, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Searcher(idx).SimilaritySearch(ctx, query, k)
}

// Retrieve runs the hybrid retrieval decision against the persisted index.
func (s *RAGService) Retrieve(ctx context.Context, query string) (domain.RetrievedContext, error) {
	idx, err := s.Load(ctx)
	if err != nil {
		return domain.RetrievedContext{}, err
	}
	return s.deps.Retriever.Retrieve(ctx, query, idx.Manifest(), s.Searcher(idx))
}

// Answer is a model reply and the context it was given.
type Answer struct {
	Reply   string
	Context domain.RetrievedContext
	BuildID string
	Elapsed time.Duration
}

// Ask answers query with the session history. The exchange is appended to
// history only after the model replies; any failure leaves it untouched.
func (s *RAGService) Ask(ctx context.Context, history *conversation.History, query string) (*Answer, error) {
	start := time.Now()
	idx, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := s.deps.Retriever.Retrieve(ctx, query, idx.Manifest(), s.Searcher(idx))
	if err != nil {
		return nil, err
	}
	msgs := s.deps.Assembler.BuildPrompt(idx.Manifest(), history.Turns(), rc, query)

	reply, err := s.deps.Model.Complete(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrModelUnavailable, s.deps.Model.Name(), err)
	}
	history.Append(query, reply)

	s.logger.Debug("answered",
		"mode", rc.Mode,
		"sources", len(rc.Sources),
		"messages", len(msgs),
		"elapsed", time.Since(start),
	)
	return &Answer{Reply: reply, Context: rc, BuildID: idx.BuildID(), Elapsed: time.Since(start)}, nil
}

type indexSearcher struct {
	idx      vectorstore.Index
	embedder domain.Embedder
}

func (q indexSearcher) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidInput, k)
	}
	if q.idx.Len() == 0 {
		return nil, nil
	}
	vec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, q.embedder.Name(), err)
	}
	return q.idx.Search(ctx, vec, k)
}
