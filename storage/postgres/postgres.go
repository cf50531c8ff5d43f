// Package postgres implements storage.TokenStore backed by PostgreSQL.
//
// Rows are keyed by (profile, key) so one database can hold the sessions of
// several client profiles, for example a kiosk fleet sharing a database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/occasio/occasio/storage"
)

// Store implements storage.TokenStore backed by PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	profile string
}

var _ storage.TokenStore = (*Store)(nil)

// NewStore returns a Store for profile backed by the given pgx connection pool.
func NewStore(pool *pgxpool.Pool, profile string) *Store {
	if profile == "" {
		profile = "default"
	}
	return &Store{pool: pool, profile: profile}
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Store.
func NewStoreFromDSN(ctx context.Context, dsn, profile string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewStore(pool, profile), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.pool.QueryRow(context.Background(),
		`SELECT value FROM client_tokens WHERE profile = $1 AND key = $2`,
		s.profile, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%s/%s: %w", s.profile, key, storage.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) Set(key, value string) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO client_tokens (profile, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (profile, key)
		 DO UPDATE SET value = $3, updated_at = now()`,
		s.profile, key, value)
	return err
}

func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(context.Background(),
		`DELETE FROM client_tokens WHERE profile = $1 AND key = ANY($2)`,
		s.profile, keys)
	return err
}
