// Package db provides PostgreSQL-backed repositories for the Tamasha jobs.
// Every repository accepts a DBTX, satisfied by *pgxpool.Pool, a leased
// *pgxpool.Conn and pgx.Tx, so the runner decides which connection a job
// invocation talks through.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tamasha/internal/config"
	"tamasha/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool, *pgxpool.Conn and
// pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Conn is one connection leased from the pool for the duration of a job
// invocation. Release must be called exactly once.
type Conn interface {
	DBTX
	Release()
}

// Pool wraps pgxpool.Pool. Jobs lease a single connection per invocation
// through AcquireConn; the health probe uses Ping.
type Pool struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewPool opens the pool and verifies connectivity.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	p, err := OpenPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// OpenPool parses the database URL and applies the pool tuning from cfg.
// Connections are dialed lazily, so an unreachable database surfaces on first
// use rather than here.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &Pool{pool: pool, acquireTimeout: cfg.AcquireTimeout}, nil
}

// NewPoolFrom wraps an existing pgxpool.Pool.
func NewPoolFrom(pool *pgxpool.Pool) *Pool {
	return &Pool{pool: pool}
}

// AcquireConn leases one connection. The caller owns it until Release.
func (p *Pool) AcquireConn(ctx context.Context) (Conn, error) {
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire database connection", err)
	}
	return conn, nil
}

// Ping runs a trivial round trip on a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	var one int
	if err := p.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "database ping failed", err)
	}
	return nil
}

// Close closes every connection in the pool.
func (p *Pool) Close() {
	p.pool.Close()
}
