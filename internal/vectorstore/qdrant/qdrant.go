// Package qdrant keeps index vectors in a Qdrant collection. Every build goes
// into a fresh collection; a small pointer file next to the local index names
// the live one and is swapped atomically after the upload finishes.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"gopkg.in/yaml.v3"

	"mitey/internal/domain"
	"mitey/internal/log"
	"mitey/internal/vectorstore"
)

const (
	PointerFile   = "qdrant.yaml"
	upsertBatch   = 256
	defaultPrefix = "mitey"
)

// client is the subset of *qdrant.Client used here.
type client interface {
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

type Config struct {
	Host             string
	Port             int
	APIKey           string
	UseTLS           bool
	CollectionPrefix string
	// Dir holds the pointer file.
	Dir string
}

type Storage struct {
	client client
	prefix string
	dir    string
	logger *slog.Logger
}

var _ vectorstore.Storage = (*Storage)(nil)

// pointer records which collection holds the live build.
type pointer struct {
	BuildID    string    `yaml:"build_id"`
	Model      string    `yaml:"model"`
	Dimension  int       `yaml:"dimension"`
	CreatedAt  time.Time `yaml:"created_at"`
	Collection string    `yaml:"collection"`
	Records    int       `yaml:"records"`
	Manifest   []string  `yaml:"manifest"`
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return newStorage(c, cfg), nil
}

func newStorage(c client, cfg Config) *Storage {
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Storage{
		client: c,
		prefix: prefix,
		dir:    cfg.Dir,
		logger: log.NewModuleLogger("vectorstore", "qdrant"),
	}
}

func (s *Storage) Close() error { return s.client.Close() }

func (s *Storage) collectionName(buildID string) string {
	return s.prefix + "_" + strings.ToLower(buildID)
}

// Persist uploads snap into a new collection, then repoints the live index at
// it and drops the previous collection.
func (s *Storage) Persist(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", domain.ErrInvalidInput)
	}
	next := pointer{
		BuildID:   snap.BuildID,
		Model:     snap.Model,
		Dimension: snap.Dimension,
		CreatedAt: snap.CreatedAt.UTC(),
		Records:   len(snap.Records),
		Manifest:  append([]string{}, snap.Manifest...),
	}
	if len(snap.Records) > 0 {
		next.Collection = s.collectionName(snap.BuildID)
		if err := s.upload(ctx, next.Collection, snap); err != nil {
			s.dropCollection(next.Collection)
			return err
		}
	}

	prev, _ := s.readPointer()
	if err := s.writePointer(next); err != nil {
		if next.Collection != "" {
			s.dropCollection(next.Collection)
		}
		return err
	}
	if prev != nil && prev.Collection != "" && prev.Collection != next.Collection {
		s.dropCollection(prev.Collection)
	}
	return nil
}

func (s *Storage) upload(ctx context.Context, name string, snap *domain.Snapshot) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(snap.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	wait := true
	for start := 0; start < len(snap.Records); start += upsertBatch {
		end := min(start+upsertBatch, len(snap.Records))
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           &wait,
			Points:         toPoints(snap.Records[start:end]),
		})
		if err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, end, err)
		}
	}
	s.logger.Debug("uploaded build", "collection", name, "points", len(snap.Records))
	return nil
}

func (s *Storage) dropCollection(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		s.logger.Warn("failed to drop collection", "collection", name, "error", err)
	}
}

func (s *Storage) Load(ctx context.Context) (vectorstore.Index, error) {
	p, err := s.readPointer()
	if err != nil {
		return nil, err
	}
	if p.Collection != "" {
		ok, err := s.client.CollectionExists(ctx, p.Collection)
		if err != nil {
			return nil, fmt.Errorf("check collection %s: %w", p.Collection, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: collection %s is missing", domain.ErrIndexCorrupt, p.Collection)
		}
	}
	return &Index{client: s.client, ptr: *p}, nil
}

func (s *Storage) pointerPath() string { return filepath.Join(s.dir, PointerFile) }

func (s *Storage) readPointer() (*pointer, error) {
	data, err := os.ReadFile(s.pointerPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.pointerPath())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}
	var p pointer
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrIndexCorrupt, s.pointerPath(), err)
	}
	if p.BuildID == "" || (p.Records > 0 && p.Collection == "") {
		return nil, fmt.Errorf("%w: %s: incomplete pointer", domain.ErrIndexCorrupt, s.pointerPath())
	}
	return &p, nil
}

func (s *Storage) writePointer(p pointer) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pointer: %w", err)
	}
	tmp := s.pointerPath() + ".tmp-" + p.BuildID
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write pointer: %w", err)
	}
	if err := os.Rename(tmp, s.pointerPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace pointer: %w", err)
	}
	return nil
}

func toPoints(records []domain.Record) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"source": r.Source,
				"text":   r.Text,
				"seq":    r.Seq,
			}),
		}
	}
	return points
}

// Index queries the live collection.
type Index struct {
	client client
	ptr    pointer
}

func (x *Index) BuildID() string { return x.ptr.BuildID }
func (x *Index) Model() string { return x.ptr.Model }
func (x *Index) Dimension() int { return x.ptr.Dimension }
func (x *Index) Manifest() domain.Manifest { return domain.Manifest(x.ptr.Manifest) }
func (x *Index) Len() int { return x.ptr.Records }

func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidInput, k)
	}
	if x.ptr.Records == 0 {
		return nil, nil
	}
	if len(vector) != x.ptr.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", domain.ErrIndexIncompatible, len(vector), x.ptr.Dimension)
	}
	limit := uint64(k)
	hits, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.ptr.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query qdrant: %w", err)
	}
	return toResults(hits), nil
}

// toResults converts hits and re-sorts them so equal scores fall back to
// insertion order.
func toResults(hits []*qdrant.ScoredPoint) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		score := float64(hit.GetScore())
		out = append(out, domain.SearchResult{
			Record: domain.Record{
				ID:     hit.GetId().GetUuid(),
				Seq:    int(payload["seq"].GetIntegerValue()),
				Source: payload["source"].GetStringValue(),
				Text:   payload["text"].GetStringValue(),
			},
			Score:    score,
			Distance: 1 - score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Record.Seq < out[j].Record.Seq
	})
	return out
}
