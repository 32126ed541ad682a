package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// PoolConfig tunes the connection pool created by NewPool
type PoolConfig struct {
	MaxConns       int32
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	// ConnectRetries bounds the startup ping attempts
	ConnectRetries uint64
}

// DefaultPoolConfig returns the pool settings used by serve
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:       10,
		IdleTimeout:    60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		ConnectRetries: 5,
	}
}

// NewPool opens a pool with pgvector types registered on every connection
// and waits until the server answers a ping. The caller owns the pool.
func NewPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse postgres DSN")
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.IdleTimeout > 0 {
		poolCfg.MaxConnIdleTime = cfg.IdleTimeout
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	// Neon only accepts TLS; keep an explicit sslmode in the DSN untouched
	if strings.Contains(poolCfg.ConnConfig.Host, "neon.tech") && poolCfg.ConnConfig.TLSConfig == nil {
		return nil, goerr.New("neon.tech requires sslmode=require in the DSN",
			goerr.V("host", poolCfg.ConnConfig.Host))
	}
	poolCfg.AfterConnect = pgxvec.RegisterTypes

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create postgres pool")
	}

	ping := func() error {
		if err := pool.Ping(ctx); err != nil {
			logging.From(ctx).Warn("postgres not ready", "error", err.Error())
			return err
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries), ctx)
	if err := backoff.Retry(ping, b); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to connect to postgres",
			goerr.V("host", poolCfg.ConnConfig.Host),
			goerr.V("database", poolCfg.ConnConfig.Database),
		)
	}

	return pool, nil
}
