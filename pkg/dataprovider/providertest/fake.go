// Package providertest provides a scripted in-memory dataprovider.Provider
// for proxy and repository tests.
package providertest

import (
	"context"
	"strings"
	"sync"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
)

// QueryFunc answers a query with rows.
type QueryFunc func(args []any) ([]dataprovider.Record, error)

// ExecFunc answers a command with an affected row count.
type ExecFunc func(args []any) (int64, error)

type queryHandler struct {
	fragment string
	fn       QueryFunc
}

type execHandler struct {
	fragment string
	fn       ExecFunc
}

// Fake answers commands from handlers registered by SQL fragment. The most
// recently registered matching handler wins. Queries without a handler
// return no rows; commands without a handler affect one row.
type Fake struct {
	mu           sync.Mutex
	queries      []queryHandler
	execs        []execHandler
	queried      []dataprovider.Command
	executed     []dataprovider.Command
	transactions int
	outermost    int
	depth        int
	rolledBack   int
	closed       bool
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{}
}

// OnQuery registers fn for queries whose SQL contains fragment.
func (f *Fake) OnQuery(fragment string, fn QueryFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, queryHandler{fragment: fragment, fn: fn})
	return f
}

// OnQueryRows registers static rows for queries whose SQL contains fragment.
func (f *Fake) OnQueryRows(fragment string, rows ...dataprovider.Record) *Fake {
	return f.OnQuery(fragment, func([]any) ([]dataprovider.Record, error) {
		return rows, nil
	})
}

// OnExec registers fn for commands whose SQL contains fragment.
func (f *Fake) OnExec(fragment string, fn ExecFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, execHandler{fragment: fragment, fn: fn})
	return f
}

// Query implements dataprovider.Provider.
func (f *Fake) Query(ctx context.Context, cmd dataprovider.Command) ([]dataprovider.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.queried = append(f.queried, cmd)
	var fn QueryFunc
	for i := len(f.queries) - 1; i >= 0; i-- {
		if strings.Contains(cmd.SQL, f.queries[i].fragment) {
			fn = f.queries[i].fn
			break
		}
	}
	f.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(cmd.Args)
}

// Exec implements dataprovider.Provider.
func (f *Fake) Exec(ctx context.Context, cmd dataprovider.Command) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.executed = append(f.executed, cmd)
	var fn ExecFunc
	for i := len(f.execs) - 1; i >= 0; i-- {
		if strings.Contains(cmd.SQL, f.execs[i].fragment) {
			fn = f.execs[i].fn
			break
		}
	}
	f.mu.Unlock()

	if fn == nil {
		return 1, nil
	}
	return fn(cmd.Args)
}

// InTx implements dataprovider.Provider. Every call, nested or not, is counted.
func (f *Fake) InTx(ctx context.Context, fn func(tx dataprovider.Provider) error) error {
	f.mu.Lock()
	f.transactions++
	if f.depth == 0 {
		f.outermost++
	}
	f.depth++
	f.mu.Unlock()

	err := fn(f)

	f.mu.Lock()
	f.depth--
	f.mu.Unlock()

	if err != nil {
		f.mu.Lock()
		f.rolledBack++
		f.mu.Unlock()
		return err
	}
	return nil
}

// Clone implements dataprovider.Provider.
func (f *Fake) Clone() dataprovider.Provider {
	return f
}

// Close implements dataprovider.Provider.
func (f *Fake) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Executed returns the commands executed so far whose SQL contains fragment.
// An empty fragment returns all of them.
func (f *Fake) Executed(fragment string) []dataprovider.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filter(f.executed, fragment)
}

// Queried returns the queries run so far whose SQL contains fragment.
func (f *Fake) Queried(fragment string) []dataprovider.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return filter(f.queried, fragment)
}

// Transactions returns how many times InTx was entered.
func (f *Fake) Transactions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transactions
}

// OutermostTransactions returns how many InTx calls were not nested in
// another one.
func (f *Fake) OutermostTransactions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outermost
}

// RolledBack returns how many InTx calls returned an error.
func (f *Fake) RolledBack() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rolledBack
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset forgets recorded commands but keeps handlers.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = nil
	f.executed = nil
	f.transactions = 0
	f.outermost = 0
	f.rolledBack = 0
}

func filter(cmds []dataprovider.Command, fragment string) []dataprovider.Command {
	var out []dataprovider.Command
	for _, cmd := range cmds {
		if fragment == "" || strings.Contains(cmd.SQL, fragment) {
			out = append(out, cmd)
		}
	}
	return out
}
