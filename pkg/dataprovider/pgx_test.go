package dataprovider

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

// pgxCalls records what the stub pool and its transactions were asked to do.
type pgxCalls struct {
	statements []string
	begins     int
	commits    int
	rollbacks  int

	fields  []string
	rows    [][]any
	execErr error
}

func (c *pgxCalls) query(prefix, sql string) (pgx.Rows, error) {
	c.statements = append(c.statements, prefix+sql)
	return &stubRows{fields: c.fields, rows: c.rows}, nil
}

func (c *pgxCalls) exec(prefix, sql string) (pgconn.CommandTag, error) {
	c.statements = append(c.statements, prefix+sql)
	if c.execErr != nil {
		return pgconn.CommandTag{}, c.execErr
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

type stubPool struct {
	calls  *pgxCalls
	closed bool
}

func (p *stubPool) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	return p.calls.query("pool: ", sql)
}

func (p *stubPool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return p.calls.exec("pool: ", sql)
}

func (p *stubPool) Begin(context.Context) (pgx.Tx, error) {
	p.calls.begins++
	return &stubTx{calls: p.calls}, nil
}

func (p *stubPool) Close() { p.closed = true }

// stubTx implements the pgx.Tx methods the provider calls; the embedded
// interface is nil.
type stubTx struct {
	pgx.Tx
	calls *pgxCalls
	done  bool
}

func (tx *stubTx) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	return tx.calls.query("tx: ", sql)
}

func (tx *stubTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return tx.calls.exec("tx: ", sql)
}

func (tx *stubTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.calls.commits++
	return nil
}

func (tx *stubTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.calls.rollbacks++
	return nil
}

type stubRows struct {
	fields []string
	rows   [][]any
	pos    int
	closed bool
}

func (r *stubRows) Close()                        { r.closed = true }
func (r *stubRows) Err() error                    { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *stubRows) RawValues() [][]byte           { return nil }
func (r *stubRows) Conn() *pgx.Conn               { return nil }

func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.fields))
	for i, name := range r.fields {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}

func (r *stubRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

func (r *stubRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if scanner, ok := dest[0].(pgx.RowScanner); ok {
			return scanner.ScanRow(r)
		}
	}
	return errors.New("stub rows only scan through a RowScanner")
}

func newStubPgxProvider(calls *pgxCalls) (*PgxProvider, *stubPool) {
	pool := &stubPool{calls: calls}
	return newPgxProvider(pool, logging.NewNopLogger(), nil), pool
}

func TestPgxProvider_QueryMapsRows(t *testing.T) {
	id := uuid.New()
	calls := &pgxCalls{
		fields: []string{"food_group_identifier", "parent_identifier", "is_active", "membership"},
		rows: [][]any{
			{[16]byte(id), nil, true, int16(2)},
		},
	}
	p, _ := newStubPgxProvider(calls)

	records, err := p.Query(context.Background(), Command{Scope: ScopeSystem, SQL: "SELECT 1"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	got, err := records[0].UUID("food_group_identifier")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	parent, err := records[0].NullableUUID("parent_identifier")
	require.NoError(t, err)
	assert.Nil(t, parent)

	active, err := records[0].Bool("is_active")
	require.NoError(t, err)
	assert.True(t, active)

	membership, err := records[0].Int("membership")
	require.NoError(t, err)
	assert.Equal(t, 2, membership)

	assert.Equal(t, []string{"pool: SELECT 1"}, calls.statements)
}

func TestPgxProvider_InTx(t *testing.T) {
	ctx := context.Background()
	calls := &pgxCalls{}
	p, _ := newStubPgxProvider(calls)

	err := p.InTx(ctx, func(tx Provider) error {
		if _, err := tx.Exec(ctx, Command{SQL: "UPDATE a"}); err != nil {
			return err
		}
		assert.Same(t, p, tx.Clone(), "clones leave the transaction")
		return tx.InTx(ctx, func(nested Provider) error {
			assert.Same(t, tx, nested, "nested calls reuse the transaction")
			_, err := nested.Exec(ctx, Command{SQL: "UPDATE b"})
			return err
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls.begins)
	assert.Equal(t, 1, calls.commits)
	assert.Zero(t, calls.rollbacks)
	assert.Equal(t, []string{"tx: UPDATE a", "tx: UPDATE b"}, calls.statements)
	assert.Same(t, p, p.Clone())
}

func TestPgxProvider_InTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	calls := &pgxCalls{}
	p, _ := newStubPgxProvider(calls)
	boom := errors.New("boom")

	err := p.InTx(ctx, func(tx Provider) error {
		if _, err := tx.Exec(ctx, Command{SQL: "UPDATE a"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls.begins)
	assert.Zero(t, calls.commits)
	assert.Equal(t, 1, calls.rollbacks)
}

func TestPgxProvider_ExecError(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewLogger(&logging.Config{Level: logging.LevelDebug, JSONFormat: true, Output: buf})
	metrics := NewMetrics("test")
	calls := &pgxCalls{execErr: &pgconn.PgError{Code: "23505", ConstraintName: "households_pkey"}}
	p := newPgxProvider(&stubPool{calls: calls}, logger, metrics)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{9, 8, 7},
		SpanID:     trace.SpanID{6, 5, 4},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	_, err := p.Exec(ctx, Command{Scope: ScopeHousehold, SQL: "INSERT INTO households"})
	assert.True(t, fwerrors.IsConflict(err))
	assert.Contains(t, buf.String(), sc.TraceID().String())
	assert.Contains(t, buf.String(), "INSERT INTO households")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.commands.WithLabelValues("household", "exec", "error")))
}

func TestPgxProvider_Close(t *testing.T) {
	ctx := context.Background()
	p, pool := newStubPgxProvider(&pgxCalls{})

	require.NoError(t, p.InTx(ctx, func(tx Provider) error {
		tx.Close()
		return nil
	}))
	assert.False(t, pool.closed, "transaction-bound providers leave the pool open")

	p.Close()
	assert.True(t, pool.closed)
}
