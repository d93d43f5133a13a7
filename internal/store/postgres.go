package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists document records in a single table, adapted
// from sumanthd032-CollabText/server's pgxpool wiring.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool against dsn and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.init(ctx); err != nil {
		pool.Close()

		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id text PRIMARY KEY,
			content text NOT NULL,
			version integer NOT NULL,
			updated_at timestamptz NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}

	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Get(ctx context.Context, docID string) (Record, error) {
	var rec Record

	row := s.pool.QueryRow(ctx,
		`SELECT content, version, updated_at FROM documents WHERE id = $1`, docID)

	if err := row.Scan(&rec.Content, &rec.Version, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}

		return Record{}, fmt.Errorf("store: get %s: %w", docID, err)
	}

	return rec, nil
}

func (s *PostgresStore) UpsertByID(ctx context.Context, docID string, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, content, version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		docID, rec.Content, rec.Version, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", docID, err)
	}

	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) (string, error) {
	docID := uuid.NewString()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, content, version, updated_at) VALUES ($1, $2, $3, $4)`,
		docID, rec.Content, rec.Version, rec.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("store: create: %w", err)
	}

	return docID, nil
}

var _ Store = (*PostgresStore)(nil)
