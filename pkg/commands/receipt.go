// Package commands provides the command handlers that change household and
// system data, built on two generic base handlers.
package commands

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// Identifiable is a domain object with a GUID identifier.
type Identifiable interface {
	Identifier() uuid.UUID
}

// Receipt acknowledges an executed command.
type Receipt struct {
	Identifier uuid.UUID `json:"identifier" yaml:"identifier"`
	EventDate  time.Time `json:"event_date" yaml:"event_date"`
}

// ReceiptMapper maps the domain object a command changed to a receipt.
type ReceiptMapper interface {
	Map(obj Identifiable) (*Receipt, error)
}

// DefaultReceiptMapper stamps receipts with the current time.
type DefaultReceiptMapper struct {
	now func() time.Time
}

// NewReceiptMapper creates a receipt mapper. A nil clock uses time.Now.
func NewReceiptMapper(now func() time.Time) *DefaultReceiptMapper {
	if now == nil {
		now = time.Now
	}
	return &DefaultReceiptMapper{now: now}
}

// Map implements ReceiptMapper.
func (m *DefaultReceiptMapper) Map(obj Identifiable) (*Receipt, error) {
	if isNil(obj) {
		return nil, fmt.Errorf("no domain object to map: %w", fwerrors.ErrValidation)
	}
	id := obj.Identifier()
	if id == uuid.Nil {
		return nil, fmt.Errorf("%T: %w", obj, fwerrors.ErrNoIdentifier)
	}
	return &Receipt{Identifier: id, EventDate: m.now().UTC()}, nil
}

// isNil reports whether v is nil or an interface holding a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
