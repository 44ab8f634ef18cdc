package mysql

import (
	"database/sql"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/cloudbox/internal/boxstore"
)

const (
	defaultMaxOpenConns = 4
	defaultMaxIdleConns = 2
)

// buildPool configures and returns a *sql.DB with pool settings.
func buildPool(cfg *boxstore.DBConfig) (*sql.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("boxstore: opening mysql: %w", err)
	}

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := int(cfg.MinConns)
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	return db, nil
}

// buildDSN normalizes the configured DSN: the connect timeout is applied and
// time columns are parsed.
func buildDSN(cfg *boxstore.DBConfig) (string, error) {
	mc, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return "", fmt.Errorf("boxstore: invalid mysql dsn: %w", err)
	}
	mc.ParseTime = true
	if cfg.ConnectTimeout > 0 {
		mc.Timeout = cfg.ConnectTimeout
	}
	return mc.FormatDSN(), nil
}
