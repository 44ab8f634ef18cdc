// Package mysql is a boxstore.Store reading data boxes from a MySQL table
// through database/sql and the go-sql-driver/mysql driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/koustreak/cloudbox/internal/boxstore"
)

// Store implements boxstore.Store for MySQL.
type Store struct {
	db  *sql.DB
	cfg *boxstore.DBConfig

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
		getSQL:  "SELECT name, provider, credentials, config FROM " + table + " WHERE name = ?",
		listSQL: "SELECT name, provider, credentials, config FROM " + table + " ORDER BY name",
	}, nil
}

// Connect opens and verifies the connection pool.
func (s *Store) Connect(ctx context.Context) error {
	db, err := buildPool(s.cfg)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return mapError(err, "Connect", "")
	}
	s.db = db
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (*boxstore.Box, error) {
	if s.db == nil {
		return nil, errNotConnected
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		boxName, provider string
		creds, config     []byte
	)
	err := s.db.QueryRowContext(ctx, s.getSQL, name).Scan(&boxName, &provider, &creds, &config)
	if err != nil {
		return nil, mapError(err, "Get", name)
	}
	b := boxstore.FromRow(boxName, provider, creds, config)
	return &b, nil
}

func (s *Store) List(ctx context.Context) ([]boxstore.Box, error) {
	if s.db == nil {
		return nil, errNotConnected
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.listSQL)
	if err != nil {
		return nil, mapError(err, "List", "")
	}
	defer rows.Close()

	var out []boxstore.Box
	for rows.Next() {
		var (
			name, provider string
			creds, config  []byte
		)
		if err := rows.Scan(&name, &provider, &creds, &config); err != nil {
			return nil, mapError(err, "List", "")
		}
		out = append(out, boxstore.FromRow(name, provider, creds, config))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "List", "")
	}
	return out, nil
}

// Close shuts down the connection pool.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		return s.db.Close()
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
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = "`" + p + "`"
	}
	return strings.Join(parts, ".")
}

var errNotConnected = fmt.Errorf("boxstore: mysql store is not connected")
