// Package sqlitevec implements vectorstore.Store on a SQLite database
// with the sqlite-vec extension. One Store maps to one vec0 virtual table
// per collection; rows are written once at load time from the in-memory
// index tables and are read-only afterwards.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/graphrag/vectorstore"
)

func init() {
	sqlite_vec.Auto()
}

// DB wraps one SQLite database holding any number of collections.
type DB struct {
	db  *sql.DB
	dim int
}

// Open opens (or creates) the database at path for collections of the
// given embedding dimension.
func Open(path string, dim int) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", vectorstore.ErrUnavailable, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &DB{db: db, dim: dim}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }

// Collection opens (creating if needed) the named collection.
func (d *DB) Collection(name string) (*Store, error) {
	schema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_%s USING vec0(
			id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		)`, name, d.dim)
	if _, err := d.db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	return &Store{db: d.db, table: "vec_" + name, dim: d.dim}, nil
}

// Store is one collection inside a DB.
type Store struct {
	db    *sql.DB
	table string
	dim   int
}

// Add implements vectorstore.Writer.
func (s *Store) Add(ctx context.Context, id string, vector []float32) error {
	if len(vector) != s.dim {
		return fmt.Errorf("%w: got %d, collection dim %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dim)
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (id, embedding) VALUES (?, ?)", s.table),
		id, serializeFloat32(vector))
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", s.table, err)
	}
	return nil
}

// Similar implements vectorstore.Store. sqlite-vec returns cosine
// distance (1 - cos); scores are converted to the 1 + cosine convention.
//
// Id filters are applied in Go over an oversampled candidate set: vec0
// KNN queries cannot combine MATCH with arbitrary predicates on the
// primary key across all supported versions.
func (s *Store) Similar(ctx context.Context, vector []float32, k int, opts ...vectorstore.SearchOption) ([]vectorstore.Result, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query dim %d, collection dim %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	cfg := vectorstore.ApplyOptions(opts)

	fetch := k
	if cfg.FilterIDs != nil {
		fetch = k + len(cfg.FilterIDs)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, distance
		FROM %s
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, s.table), serializeFloat32(vector), fetch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorstore.ErrUnavailable, err)
	}
	defer rows.Close()

	var results []vectorstore.Result
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		if cfg.FilterIDs != nil && !cfg.FilterIDs[id] {
			continue
		}
		results = append(results, vectorstore.Result{ID: id, Score: 2 - distance})
		if len(results) == k {
			break
		}
	}
	return results, rows.Err()
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
