// Package pgvector implements vectorstore.Store on PostgreSQL with the
// pgvector extension, for deployments that already run postgres. Each
// collection is one table with an HNSW cosine index.
package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/brunobiangulo/graphrag/vectorstore"
)

// DB wraps a pgx connection pool holding any number of collections.
type DB struct {
	pool *pgxpool.Pool
	dim  int
}

// Open connects to postgres and ensures the pgvector extension exists.
func Open(ctx context.Context, dsn string, dim int) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", vectorstore.ErrUnavailable, err)
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating vector extension: %w", err)
	}
	return &DB{pool: pool, dim: dim}, nil
}

// Close releases the connection pool.
func (d *DB) Close() { d.pool.Close() }

// Collection opens (creating if needed) the named collection.
func (d *DB) Collection(ctx context.Context, name string) (*Store, error) {
	table := "vec_" + name
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        text PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, table, d.dim)
	if _, err := d.pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	idx := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_hnsw ON %s USING hnsw (embedding vector_cosine_ops)",
		table, table)
	if _, err := d.pool.Exec(ctx, idx); err != nil {
		return nil, fmt.Errorf("creating index on %s: %w", table, err)
	}
	return &Store{pool: d.pool, table: table, dim: d.dim}, nil
}

// Store is one collection inside a DB.
type Store struct {
	pool  *pgxpool.Pool
	table string
	dim   int
}

// Add implements vectorstore.Writer.
func (s *Store) Add(ctx context.Context, id string, vector []float32) error {
	if len(vector) != s.dim {
		return fmt.Errorf("%w: got %d, collection dim %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dim)
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, embedding) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`, s.table)
	if _, err := s.pool.Exec(ctx, q, id, pgv.NewVector(vector)); err != nil {
		return fmt.Errorf("inserting into %s: %w", s.table, err)
	}
	return nil
}

// Similar implements vectorstore.Store. The <=> operator is cosine
// distance (1 - cos); scores are converted to the 1 + cosine convention.
func (s *Store) Similar(ctx context.Context, vector []float32, k int, opts ...vectorstore.SearchOption) ([]vectorstore.Result, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query dim %d, collection dim %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	cfg := vectorstore.ApplyOptions(opts)

	args := []any{pgv.NewVector(vector)}
	where := ""
	if cfg.FilterIDs != nil {
		ids := make([]string, 0, len(cfg.FilterIDs))
		for id := range cfg.FilterIDs {
			ids = append(ids, id)
		}
		args = append(args, ids)
		where = fmt.Sprintf("WHERE id = ANY($%d)", len(args))
	}
	args = append(args, k)

	q := fmt.Sprintf(`
		SELECT id, embedding <=> $1 AS distance
		FROM   %s
		%s
		ORDER  BY distance, id
		LIMIT  $%d`, s.table, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vectorstore.ErrUnavailable, err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.Result, error) {
		var r vectorstore.Result
		var distance float64
		if err := row.Scan(&r.ID, &distance); err != nil {
			return vectorstore.Result{}, err
		}
		r.Score = 2 - distance
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s rows: %w", s.table, err)
	}
	return results, nil
}
