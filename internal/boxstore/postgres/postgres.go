// Package postgres is a boxstore.Store reading data boxes from a PostgreSQL
// table through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/cloudbox/internal/boxstore"
)

// Store implements boxstore.Store for PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	cfg  *boxstore.DBConfig

	getSQL  string
	listSQL string
}

// New creates a Store (does not connect yet).
func New(cfg *boxstore.DBConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table := quoteTable(cfg.Table)
	return &Store{
		cfg:     cfg,
		getSQL:  "SELECT name, provider, credentials::text, config::text FROM " + table + " WHERE name = $1",
		listSQL: "SELECT name, provider, credentials::text, config::text FROM " + table + " ORDER BY name",
	}, nil
}

// Connect establishes the connection pool and verifies it.
func (s *Store) Connect(ctx context.Context) error {
	pool, err := buildPool(ctx, s.cfg)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return mapError(err, "Connect", "")
	}
	s.pool = pool
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (*boxstore.Box, error) {
	if s.pool == nil {
		return nil, errNotConnected
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		boxName, provider string
		creds, config     *string
	)
	err := s.pool.QueryRow(ctx, s.getSQL, name).Scan(&boxName, &provider, &creds, &config)
	if err != nil {
		return nil, mapError(err, "Get", name)
	}
	b := boxstore.FromRow(boxName, provider, bytesOf(creds), bytesOf(config))
	return &b, nil
}

func (s *Store) List(ctx context.Context) ([]boxstore.Box, error) {
	if s.pool == nil {
		return nil, errNotConnected
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, s.listSQL)
	if err != nil {
		return nil, mapError(err, "List", "")
	}
	defer rows.Close()

	var out []boxstore.Box
	for rows.Next() {
		var (
			name, provider string
			creds, config  *string
		)
		if err := rows.Scan(&name, &provider, &creds, &config); err != nil {
			return nil, mapError(err, "List", "")
		}
		out = append(out, boxstore.FromRow(name, provider, bytesOf(creds), bytesOf(config)))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "List", "")
	}
	return out, nil
}

// Close shuts down the connection pool.
func (s *Store) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// quoteTable quotes a validated "table" or "schema.table" name.
func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func bytesOf(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}

var errNotConnected = fmt.Errorf("boxstore: postgres store is not connected")
