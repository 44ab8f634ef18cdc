package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/cloudbox/internal/boxstore"
)

// buildPool creates and configures a pgxpool.Pool from cfg.
func buildPool(ctx context.Context, cfg *boxstore.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("boxstore: creating postgres pool: %w", err)
	}
	return pool, nil
}

func poolConfig(cfg *boxstore.DBConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("boxstore: invalid postgres dsn: %w", err)
	}

	poolCfg.MaxConns = withDefault(cfg.MaxConns, 4)
	poolCfg.MinConns = withDefault(cfg.MinConns, 0)
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	return poolCfg, nil
}

func withDefault(val, def int32) int32 {
	if val == 0 {
		return def
	}
	return val
}
