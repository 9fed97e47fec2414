package commands

import (
	"errors"
	"fmt"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// FaultKind tells callers who has to act on a fault.
type FaultKind int

const (
	FaultBusiness FaultKind = iota
	FaultValidation
	FaultSystem
)

func (k FaultKind) String() string {
	switch k {
	case FaultBusiness:
		return "business"
	case FaultValidation:
		return "validation"
	case FaultSystem:
		return "system"
	default:
		return fmt.Sprintf("fault(%d)", int(k))
	}
}

// Fault is the error returned by command handlers.
type Fault struct {
	Kind FaultKind
	Op   string
	Code fwerrors.ErrorCode
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s fault [%s]: %v", f.Op, f.Kind, f.Code, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// AsFault returns the fault in err's chain.
func AsFault(err error) (*Fault, bool) {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

// FaultBuilder turns handler failures into faults.
type FaultBuilder interface {
	Build(op string, err error) error
}

// DefaultFaultBuilder classifies errors by their error code.
type DefaultFaultBuilder struct{}

// NewFaultBuilder creates the default fault builder.
func NewFaultBuilder() DefaultFaultBuilder {
	return DefaultFaultBuilder{}
}

// Build wraps err in a *Fault. Errors that already are faults pass through.
func (DefaultFaultBuilder) Build(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsFault(err); ok {
		return err
	}

	code := fwerrors.Classify(err)
	kind := FaultBusiness
	switch code {
	case fwerrors.CodeValidation:
		kind = FaultValidation
	case fwerrors.CodeInternal, fwerrors.CodeContextCancelled:
		kind = FaultSystem
	}
	return &Fault{Kind: kind, Op: op, Code: code, Err: err}
}
