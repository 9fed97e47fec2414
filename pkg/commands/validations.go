package commands

import (
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/householddata"
)

// Validations are the checks command rules are written with.
type Validations interface {
	HasValue(value string) bool
	IsLengthValid(value string, min, max int) bool
	ContainsIllegalChar(value string) bool
	IsMailAddress(value string) bool
	IsIdentifier(id uuid.UUID) bool
	IsPastDateTime(value, now time.Time) bool
	IsFutureDateTime(value, now time.Time) bool
	IsMembershipValid(m householddata.Membership) bool
}

// DefaultValidations implements Validations.
type DefaultValidations struct{}

// NewValidations creates the default validations.
func NewValidations() DefaultValidations {
	return DefaultValidations{}
}

// illegalChars may not appear in names shown to other household members.
const illegalChars = "<>{}[]\\|;"

func (DefaultValidations) HasValue(value string) bool {
	return strings.TrimSpace(value) != ""
}

// IsLengthValid counts characters, not bytes, of the trimmed value.
func (DefaultValidations) IsLengthValid(value string, min, max int) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	return n >= min && n <= max
}

func (DefaultValidations) ContainsIllegalChar(value string) bool {
	for _, r := range value {
		if unicode.IsControl(r) || strings.ContainsRune(illegalChars, r) {
			return true
		}
	}
	return false
}

func (DefaultValidations) IsMailAddress(value string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	return err == nil && addr.Name == "" && strings.Contains(addr.Address, "@")
}

func (DefaultValidations) IsIdentifier(id uuid.UUID) bool {
	return id != uuid.Nil
}

func (DefaultValidations) IsPastDateTime(value, now time.Time) bool {
	return value.Before(now)
}

func (DefaultValidations) IsFutureDateTime(value, now time.Time) bool {
	return value.After(now)
}

func (DefaultValidations) IsMembershipValid(m householddata.Membership) bool {
	return m.IsValid()
}
