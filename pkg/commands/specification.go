package commands

import (
	"fmt"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

type rule struct {
	satisfied func() bool
	err       error
}

// Specification collects rules a command must satisfy.
type Specification struct {
	rules []rule
}

// SpecificationFactory creates a fresh specification per execution.
type SpecificationFactory func() *Specification

// NewSpecification creates an empty specification.
func NewSpecification() *Specification {
	return &Specification{}
}

// IsSatisfiedBy adds a rule. err is returned by Evaluate when fn reports false.
func (s *Specification) IsSatisfiedBy(fn func() bool, err error) *Specification {
	s.rules = append(s.rules, rule{satisfied: fn, err: err})
	return s
}

// Evaluate returns the error of the first failing rule and clears the rules.
func (s *Specification) Evaluate() error {
	rules := s.rules
	s.rules = nil

	for i, r := range rules {
		if r.satisfied == nil {
			return fmt.Errorf("rule %d has no predicate: %w", i, fwerrors.ErrValidation)
		}
		if r.satisfied() {
			continue
		}
		if r.err == nil {
			return fmt.Errorf("rule %d is not satisfied: %w", i, fwerrors.ErrValidation)
		}
		return r.err
	}
	return nil
}

// Len returns the number of pending rules.
func (s *Specification) Len() int {
	return len(s.rules)
}

// validationError returns a validation failure with a caller-facing message.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), fwerrors.ErrValidation)
}
