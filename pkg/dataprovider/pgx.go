package dataprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgxPool is the part of *pgxpool.Pool the provider uses.
type pgxPool interface {
	pgxQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PgxProvider executes commands through a pgx connection pool.
type PgxProvider struct {
	pool    pgxPool
	q       pgxQuerier
	tx      pgx.Tx
	root    *PgxProvider
	logger  logging.Logger
	metrics *Metrics
}

// NewPgxProvider creates a provider over pool. metrics may be nil.
func NewPgxProvider(pool *pgxpool.Pool, logger logging.Logger, metrics *Metrics) *PgxProvider {
	return newPgxProvider(pool, logger, metrics)
}

func newPgxProvider(pool pgxPool, logger logging.Logger, metrics *Metrics) *PgxProvider {
	return &PgxProvider{
		pool:    pool,
		q:       pool,
		logger:  logger.With(logging.F("component", "pgx_provider")),
		metrics: metrics,
	}
}

// Query runs cmd and collects every row.
func (p *PgxProvider) Query(ctx context.Context, cmd Command) ([]Record, error) {
	start := time.Now()
	records, err := p.query(ctx, cmd)
	p.metrics.observe(cmd.Scope, "query", start, err)
	if err != nil {
		p.logger.WithContext(ctx).Debug("Query failed", logging.F("sql", cmd.SQL), logging.Err(err))
		return nil, err
	}
	return records, nil
}

func (p *PgxProvider) query(ctx context.Context, cmd Command) ([]Record, error) {
	rows, err := p.q.Query(ctx, cmd.SQL, cmd.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", translateError(err))
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", translateError(err))
	}

	records := make([]Record, len(maps))
	for i, m := range maps {
		records[i] = Record(m)
	}
	return records, nil
}

// Exec runs cmd and returns the affected row count.
func (p *PgxProvider) Exec(ctx context.Context, cmd Command) (int64, error) {
	start := time.Now()
	tag, err := p.q.Exec(ctx, cmd.SQL, cmd.Args...)
	p.metrics.observe(cmd.Scope, "exec", start, err)
	if err != nil {
		p.logger.WithContext(ctx).Debug("Exec failed", logging.F("sql", cmd.SQL), logging.Err(err))
		return 0, fmt.Errorf("failed to execute: %w", translateError(err))
	}
	return tag.RowsAffected(), nil
}

// InTx runs fn inside a transaction, committing when fn succeeds.
func (p *PgxProvider) InTx(ctx context.Context, fn func(tx Provider) error) error {
	if p.tx != nil {
		return fn(p)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck

	bound := &PgxProvider{
		pool:    p.pool,
		q:       tx,
		tx:      tx,
		root:    p,
		logger:  p.logger,
		metrics: p.metrics,
	}
	if err := fn(bound); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", translateError(err))
	}
	return nil
}

// Clone returns the pool-bound provider.
func (p *PgxProvider) Clone() Provider {
	if p.root != nil {
		return p.root
	}
	return p
}

// Close closes the pool when called on the pool-bound provider.
func (p *PgxProvider) Close() {
	if p.root == nil && p.pool != nil {
		p.pool.Close()
	}
}
