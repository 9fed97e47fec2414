// Package errors holds the failure conditions shared by the fwdata
// repositories, the data providers and the command handlers.
//
// Data providers translate driver errors into these sentinels, so callers
// test for a condition without knowing whether pgx or lib/pq raised it:
//
//	household, err := repo.HouseholdGet(ctx, id)
//	if fwerrors.IsNotFound(err) {
//		return nil, fwerrors.NewCodedError(fwerrors.CodeNotFound, "no such household", err)
//	}
package errors

import "errors"

var (
	// ErrNotFound: no row or domain object has the requested key.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a unique key is already taken.
	ErrConflict = errors.New("conflict")

	// ErrValidation: a value fails the column or domain rules.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized: no household member matches the caller's claims.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden: the member is outside the household being touched.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState: the stored rows do not allow the operation, such as a
	// broken foreign key or a looping food group tree.
	ErrInvalidState = errors.New("invalid state")

	// ErrNoIdentifier: a data proxy cannot address its row.
	ErrNoIdentifier = errors.New("identifier has no value")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation also matches ErrNoIdentifier; a proxy without an identifier
// is rejected before any SQL runs.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNoIdentifier)
}

func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
