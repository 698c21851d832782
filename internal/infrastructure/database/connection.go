package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dataguard/gdpr-engine/internal/infrastructure/config"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Every
// repository runs against it, so statements join an ambient transaction when
// one is carried in the context.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConnectionPool wraps the pgx pool with transaction and advisory lock
// helpers.
type ConnectionPool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewConnectionPool creates and pings a pgx connection pool.
func NewConnectionPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.HealthCheckPeriod = time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection pool initialized",
		zap.Int32("max_connections", poolConfig.MaxConns))

	return &ConnectionPool{pool: pool, logger: logger}, nil
}

// Pool exposes the underlying pgx pool.
func (p *ConnectionPool) Pool() *pgxpool.Pool {
	return p.pool
}

// Close shuts down the pool.
func (p *ConnectionPool) Close() {
	p.pool.Close()
}

// Health checks connectivity within a short deadline.
func (p *ConnectionPool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

type txKey struct{}

// InTransaction runs fn with a transaction carried in the context. Every
// repository call inside fn joins that transaction; commit happens only when
// fn returns nil. Nested calls reuse the outer transaction.
func (p *ConnectionPool) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DB returns the ambient transaction from the context, falling back to the
// pool when the call runs outside a transaction.
func (p *ConnectionPool) DB(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return p.pool
}

// TryAdvisoryLock attempts a session-scoped advisory lock keyed by job name.
// Returns false when another worker holds it. The caller must release via the
// returned function; connection release is tied to it.
func (p *ConnectionPool) TryAdvisoryLock(ctx context.Context, jobName string) (bool, func(), error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("failed to acquire connection for advisory lock: %w", err)
	}

	var acquired bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, jobName).Scan(&acquired)
	if err != nil {
		conn.Release()
		return false, nil, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil, nil
	}

	release := func() {
		// Unlock on a fresh context; the job's context may already be done.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, jobName); err != nil {
			p.logger.Warn("failed to release advisory lock",
				zap.String("job", jobName), zap.Error(err))
		}
		conn.Release()
	}
	return true, release, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}
