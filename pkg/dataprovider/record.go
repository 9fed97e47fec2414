package dataprovider

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrColumnNotFound is returned when a row has no column with the requested name.
	ErrColumnNotFound = errors.New("column not found")

	// ErrColumnType is returned when a column value cannot be converted.
	ErrColumnType = errors.New("unexpected column type")
)

// Reader gives typed access to one result row.
type Reader interface {
	String(column string) (string, error)
	NullableString(column string) (*string, error)
	UUID(column string) (uuid.UUID, error)
	NullableUUID(column string) (*uuid.UUID, error)
	Bool(column string) (bool, error)
	Int(column string) (int, error)
	Time(column string) (time.Time, error)
	NullableTime(column string) (*time.Time, error)
	Bytes(column string) ([]byte, error)
}

// Record is a materialised row keyed by column name.
type Record map[string]any

func (r Record) value(column string) (any, error) {
	v, ok := r[column]
	if !ok {
		return nil, fmt.Errorf("%q: %w", column, ErrColumnNotFound)
	}
	return v, nil
}

func typeError(column string, v any) error {
	return fmt.Errorf("%q holds %T: %w", column, v, ErrColumnType)
}

// String returns a non-null text column.
func (r Record) String(column string) (string, error) {
	s, err := r.NullableString(column)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", fmt.Errorf("%q is null: %w", column, ErrColumnType)
	}
	return *s, nil
}

// NullableString returns a text column that may be null.
func (r Record) NullableString(column string) (*string, error) {
	v, err := r.value(column)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &t, nil
	case []byte:
		s := string(t)
		return &s, nil
	default:
		return nil, typeError(column, v)
	}
}

// UUID returns a non-null identifier column.
func (r Record) UUID(column string) (uuid.UUID, error) {
	id, err := r.NullableUUID(column)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, fmt.Errorf("%q is null: %w", column, ErrColumnType)
	}
	return *id, nil
}

// NullableUUID returns an identifier column that may be null. Native UUIDs,
// 16-byte arrays and textual GUIDs are accepted.
func (r Record) NullableUUID(column string) (*uuid.UUID, error) {
	v, err := r.value(column)
	if err != nil {
		return nil, err
	}

	var id uuid.UUID
	switch t := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		id = t
	case [16]byte:
		id = uuid.UUID(t)
	case string:
		id, err = uuid.Parse(t)
	case []byte:
		if len(t) == 16 {
			id, err = uuid.FromBytes(t)
		} else {
			id, err = uuid.ParseBytes(t)
		}
	default:
		return nil, typeError(column, v)
	}
	if err != nil {
		return nil, fmt.Errorf("%q: %v: %w", column, err, ErrColumnType)
	}
	return &id, nil
}

// Bool returns a boolean column. Integer bit columns are accepted.
func (r Record) Bool(column string) (bool, error) {
	v, err := r.value(column)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case int32:
		return t != 0, nil
	case int16:
		return t != 0, nil
	case int:
		return t != 0, nil
	default:
		return false, typeError(column, v)
	}
}

// Int returns an integer column.
func (r Record) Int(column string) (int, error) {
	v, err := r.value(column)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint8:
		return int(t), nil
	default:
		return 0, typeError(column, v)
	}
}

// Time returns a non-null timestamp column in UTC.
func (r Record) Time(column string) (time.Time, error) {
	t, err := r.NullableTime(column)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, fmt.Errorf("%q is null: %w", column, ErrColumnType)
	}
	return *t, nil
}

// NullableTime returns a timestamp column that may be null.
func (r Record) NullableTime(column string) (*time.Time, error) {
	v, err := r.value(column)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		utc := t.UTC()
		return &utc, nil
	default:
		return nil, typeError(column, v)
	}
}

// Bytes returns a binary column; null is returned as nil.
func (r Record) Bytes(column string) ([]byte, error) {
	v, err := r.value(column)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	default:
		return nil, typeError(column, v)
	}
}
