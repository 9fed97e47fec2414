package dataprovider

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// PostgreSQL SQLSTATE codes classified by translateError.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// translateError maps driver errors onto the domain sentinels, keeping the
// driver error in the chain.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var code, detail string
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code, detail = pgErr.Code, pgErr.ConstraintName
	case errors.As(err, &pqErr):
		code, detail = string(pqErr.Code), pqErr.Constraint
	default:
		return err
	}

	switch code {
	case sqlStateUniqueViolation:
		return fmt.Errorf("%w (%s): %w", fwerrors.ErrConflict, detail, err)
	case sqlStateForeignKeyViolation:
		return fmt.Errorf("%w (%s): %w", fwerrors.ErrInvalidState, detail, err)
	default:
		return err
	}
}
