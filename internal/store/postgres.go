package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS boystats_blobs (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	size       INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS boystats_blobs_updated_at_idx ON boystats_blobs (updated_at DESC);
`

// PostgresStore implements BlobStore using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the blob table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM boystats_blobs WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return data, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO boystats_blobs (key, data, size, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (key) DO UPDATE
		 SET data = EXCLUDED.data, size = EXCLUDED.size, updated_at = EXCLUDED.updated_at`,
		key, data, len(data),
	)
	if err != nil {
		return fmt.Errorf("put blob %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM boystats_blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, size, updated_at FROM boystats_blobs
		 WHERE starts_with(key, $1)
		 ORDER BY updated_at DESC, key DESC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list blobs %s: %w", prefix, err)
	}
	defer rows.Close()
	return scanBlobInfos(rows)
}

// pgxRows is the subset of pgx.Rows used by scan helpers.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanBlobInfos(rows pgxRows) ([]BlobInfo, error) {
	var infos []BlobInfo
	for rows.Next() {
		var b BlobInfo
		if err := rows.Scan(&b.Key, &b.Size, &b.UpdatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, b)
	}
	return infos, rows.Err()
}
