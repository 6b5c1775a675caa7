// Package sqlite persists index builds as single SQLite files. Each build is
// written to a temporary file next to the target and renamed over it, so
// readers see either the previous build or the new one.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"mitey/internal/domain"
	"mitey/internal/vectorstore"
	"mitey/internal/vectorstore/memory"
)

const (
	FileName      = "index.db"
	formatVersion = "1"
)

const schema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE files (
	seq    INTEGER PRIMARY KEY,
	source TEXT NOT NULL UNIQUE
);
CREATE TABLE records (
	seq       INTEGER PRIMARY KEY,
	id        TEXT NOT NULL UNIQUE,
	source    TEXT NOT NULL,
	text      TEXT NOT NULL,
	embedding BLOB NOT NULL
);
`

// Storage reads and writes <dir>/index.db.
type Storage struct {
	dir  string
	path string
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage(dir string) *Storage {
	return &Storage{dir: dir, path: filepath.Join(dir, FileName)}
}

func (s *Storage) Path() string { return s.path }

func (s *Storage) Close() error { return nil }

// Persist writes snap to a temporary file and renames it over the index.
func (s *Storage) Persist(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := filepath.Join(s.dir, "."+FileName+".tmp-"+snap.BuildID)
	if err := write(ctx, tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

func write(ctx context.Context, path string, snap *domain.Snapshot) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	meta := map[string]string{
		"format_version": formatVersion,
		"build_id":       snap.BuildID,
		"model":          snap.Model,
		"dimension":      strconv.Itoa(snap.Dimension),
		"created_at":     snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	for i, src := range snap.Manifest {
		if _, err := tx.ExecContext(ctx, `INSERT INTO files (seq, source) VALUES (?, ?)`, i, src); err != nil {
			return fmt.Errorf("insert file %s: %w", src, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (seq, id, source, text, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range snap.Records {
		if len(r.Vector) != snap.Dimension {
			return fmt.Errorf("%w: record %d has dimension %d, want %d", domain.ErrInvalidInput, r.Seq, len(r.Vector), snap.Dimension)
		}
		if _, err := stmt.ExecContext(ctx, r.Seq, r.ID, r.Source, r.Text, vectorstore.EncodeEmbedding(r.Vector)); err != nil {
			return fmt.Errorf("insert record %d: %w", r.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return db.Close()
}

// Load reads the whole build into memory.
func (s *Storage) Load(ctx context.Context) (vectorstore.Index, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexCorrupt, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrIndexCorrupt, s.path)
	}
	snap, err := read(ctx, s.path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrIndexCorrupt, s.path, err)
	}
	return memory.NewIndex(snap), nil
}

func read(ctx context.Context, path string) (*domain.Snapshot, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if meta["format_version"] != formatVersion {
		return nil, fmt.Errorf("unsupported format version %q", meta["format_version"])
	}
	dim, err := strconv.Atoi(meta["dimension"])
	if err != nil {
		return nil, fmt.Errorf("bad dimension: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, meta["created_at"])
	if err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	snap := &domain.Snapshot{
		BuildID:   meta["build_id"],
		Model:     meta["model"],
		Dimension: dim,
		CreatedAt: created,
	}

	if snap.Manifest, err = readManifest(ctx, db); err != nil {
		return nil, err
	}
	if snap.Records, err = readRecords(ctx, db, dim); err != nil {
		return nil, err
	}
	return snap, nil
}

func readManifest(ctx context.Context, db *sql.DB) (domain.Manifest, error) {
	rows, err := db.QueryContext(ctx, `SELECT source FROM files ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := domain.Manifest{}
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		m = append(m, src)
	}
	return m, rows.Err()
}

func readRecords(ctx context.Context, db *sql.DB, dim int) ([]domain.Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT seq, id, source, text, embedding FROM records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Record
	for rows.Next() {
		var (
			r    domain.Record
			blob []byte
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.Source, &r.Text, &blob); err != nil {
			return nil, err
		}
		if r.Vector, err = vectorstore.DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("record %d: %w", r.Seq, err)
		}
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("record %d has dimension %d, want %d", r.Seq, len(r.Vector), dim)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
