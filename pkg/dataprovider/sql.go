package dataprovider

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLProvider executes commands through database/sql and the lib/pq driver.
type SQLProvider struct {
	db      *sql.DB
	q       sqlQuerier
	tx      *sql.Tx
	root    *SQLProvider
	logger  logging.Logger
	metrics *Metrics
}

// OpenSQLProvider opens a lib/pq backed provider for dsn and verifies it.
func OpenSQLProvider(ctx context.Context, dsn string, logger logging.Logger, metrics *Metrics) (*SQLProvider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLProvider(db, logger, metrics), nil
}

// NewSQLProvider creates a provider over an open *sql.DB.
func NewSQLProvider(db *sql.DB, logger logging.Logger, metrics *Metrics) *SQLProvider {
	return &SQLProvider{
		db:      db,
		q:       db,
		logger:  logger.With(logging.F("component", "sql_provider")),
		metrics: metrics,
	}
}

// Query runs cmd and scans every row into a Record.
func (p *SQLProvider) Query(ctx context.Context, cmd Command) ([]Record, error) {
	start := time.Now()
	records, err := p.query(ctx, cmd)
	p.metrics.observe(cmd.Scope, "query", start, err)
	if err != nil {
		p.logger.WithContext(ctx).Debug("Query failed", logging.F("sql", cmd.SQL), logging.Err(err))
		return nil, err
	}
	return records, nil
}

func (p *SQLProvider) query(ctx context.Context, cmd Command) ([]Record, error) {
	rows, err := p.q.QueryContext(ctx, cmd.SQL, cmd.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", translateError(err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(Record, len(columns))
		for i, column := range columns {
			record[column] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", translateError(err))
	}
	return records, nil
}

// Exec runs cmd and returns the affected row count.
func (p *SQLProvider) Exec(ctx context.Context, cmd Command) (int64, error) {
	start := time.Now()
	result, err := p.q.ExecContext(ctx, cmd.SQL, cmd.Args...)
	p.metrics.observe(cmd.Scope, "exec", start, err)
	if err != nil {
		p.logger.WithContext(ctx).Debug("Exec failed", logging.F("sql", cmd.SQL), logging.Err(err))
		return 0, fmt.Errorf("failed to execute: %w", translateError(err))
	}
	return result.RowsAffected()
}

// InTx runs fn inside a transaction, committing when fn succeeds.
func (p *SQLProvider) InTx(ctx context.Context, fn func(tx Provider) error) error {
	if p.tx != nil {
		return fn(p)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	bound := &SQLProvider{
		db:      p.db,
		q:       tx,
		tx:      tx,
		root:    p,
		logger:  p.logger,
		metrics: p.metrics,
	}
	if err := fn(bound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", translateError(err))
	}
	return nil
}

// Clone returns the database-bound provider.
func (p *SQLProvider) Clone() Provider {
	if p.root != nil {
		return p.root
	}
	return p
}

// Close closes the database when called on the database-bound provider.
func (p *SQLProvider) Close() {
	if p.root == nil && p.db != nil {
		p.db.Close()
	}
}
