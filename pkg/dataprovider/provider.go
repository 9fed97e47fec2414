// Package dataprovider maps data proxies to PostgreSQL rows.
//
// A data proxy knows how to build its own SQL commands and how to
// materialise itself from a row. The provider executes those commands and
// orchestrates the relation hooks: relations are saved after the proxy's row
// is written and deleted before the row is removed, all inside one
// transaction.
package dataprovider

import (
	"context"
	"fmt"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// Provider executes commands against a database.
type Provider interface {
	// Query runs a command and returns every row.
	Query(ctx context.Context, cmd Command) ([]Record, error)

	// Exec runs a command and returns the number of affected rows.
	Exec(ctx context.Context, cmd Command) (int64, error)

	// InTx runs fn inside a transaction. Providers already bound to a
	// transaction run fn directly.
	InTx(ctx context.Context, fn func(tx Provider) error) error

	// Clone returns a provider independent of the current transaction.
	// Proxies keep it as their handle for loading relations on demand.
	Clone() Provider

	// Close releases the provider's resources. Clones and transaction-bound
	// providers do not own the connection pool and ignore Close.
	Close()
}

// DataProxy maps one domain object to one table row.
type DataProxy interface {
	// UniqueID identifies the proxy in logs and errors.
	UniqueID() string

	QueryForID() (Command, error)
	InsertCommand() (Command, error)
	UpdateCommand() (Command, error)
	DeleteCommand() (Command, error)

	// MapData populates the proxy from a row and keeps p for lazy loading.
	MapData(r Reader, p Provider) error

	// MapRelations loads relations that must be present right after mapping.
	MapRelations(ctx context.Context, p Provider) error

	// SaveRelations writes relations after the proxy's own row.
	SaveRelations(ctx context.Context, p Provider, inserting bool) error

	// DeleteRelations removes dependent rows before the proxy's own row.
	DeleteRelations(ctx context.Context, p Provider) error
}

// Get loads the row addressed by proxy.QueryForID into proxy.
func Get[T DataProxy](ctx context.Context, p Provider, proxy T) (T, error) {
	ctx, span := startSpan(ctx, "get", proxy)
	defer span.End()

	var zero T
	cmd, err := proxy.QueryForID()
	if err != nil {
		return zero, recordErr(span, fmt.Errorf("%s: %w", proxy.UniqueID(), err))
	}

	rows, err := p.Query(ctx, cmd)
	if err != nil {
		return zero, recordErr(span, fmt.Errorf("get %s: %w", proxy.UniqueID(), err))
	}
	if len(rows) == 0 {
		return zero, recordErr(span, fmt.Errorf("%s: %w", proxy.UniqueID(), fwerrors.ErrNotFound))
	}

	if err := proxy.MapData(rows[0], p); err != nil {
		return zero, recordErr(span, fmt.Errorf("map %s: %w", proxy.UniqueID(), err))
	}
	if err := proxy.MapRelations(ctx, p); err != nil {
		return zero, recordErr(span, fmt.Errorf("map relations of %s: %w", proxy.UniqueID(), err))
	}
	return proxy, nil
}

// GetCollection runs cmd and maps every row into a proxy returned by create.
func GetCollection[T DataProxy](ctx context.Context, p Provider, cmd Command, create func() T) ([]T, error) {
	rows, err := p.Query(ctx, cmd)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(rows))
	for _, row := range rows {
		proxy := create()
		if err := proxy.MapData(row, p); err != nil {
			return nil, fmt.Errorf("map %T: %w", proxy, err)
		}
		if err := proxy.MapRelations(ctx, p); err != nil {
			return nil, fmt.Errorf("map relations of %s: %w", proxy.UniqueID(), err)
		}
		result = append(result, proxy)
	}
	return result, nil
}

// Add inserts the proxy's row and saves its relations in one transaction.
func Add[T DataProxy](ctx context.Context, p Provider, proxy T) (T, error) {
	ctx, span := startSpan(ctx, "add", proxy)
	defer span.End()

	err := p.InTx(ctx, func(tx Provider) error {
		cmd, err := proxy.InsertCommand()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, cmd); err != nil {
			return err
		}
		return proxy.SaveRelations(ctx, tx, true)
	})
	if err != nil {
		var zero T
		return zero, recordErr(span, fmt.Errorf("add %s: %w", proxy.UniqueID(), err))
	}
	return proxy, nil
}

// Save updates the proxy's row and saves its relations in one transaction.
func Save[T DataProxy](ctx context.Context, p Provider, proxy T) (T, error) {
	ctx, span := startSpan(ctx, "save", proxy)
	defer span.End()

	err := p.InTx(ctx, func(tx Provider) error {
		cmd, err := proxy.UpdateCommand()
		if err != nil {
			return err
		}
		affected, err := tx.Exec(ctx, cmd)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fwerrors.ErrNotFound
		}
		return proxy.SaveRelations(ctx, tx, false)
	})
	if err != nil {
		var zero T
		return zero, recordErr(span, fmt.Errorf("save %s: %w", proxy.UniqueID(), err))
	}
	return proxy, nil
}

// Delete removes the proxy's relations and then its row in one transaction.
func Delete[T DataProxy](ctx context.Context, p Provider, proxy T) error {
	ctx, span := startSpan(ctx, "delete", proxy)
	defer span.End()

	err := p.InTx(ctx, func(tx Provider) error {
		if err := proxy.DeleteRelations(ctx, tx); err != nil {
			return err
		}
		cmd, err := proxy.DeleteCommand()
		if err != nil {
			return err
		}
		affected, err := tx.Exec(ctx, cmd)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fwerrors.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return recordErr(span, fmt.Errorf("delete %s: %w", proxy.UniqueID(), err))
	}
	return nil
}
