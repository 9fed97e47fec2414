// Package householddata provides the data proxies for households, their
// members, the memberships linking them and the payments members make.
package householddata

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// Membership is the subscription level of a household member.
type Membership int

const (
	MembershipBasic   Membership = 1
	MembershipDeluxe  Membership = 2
	MembershipPremium Membership = 3
)

// MembershipPeriod is how long a paid membership lasts.
const MembershipPeriod = 365 * 24 * time.Hour

// IsValid reports whether m is a known membership level.
func (m Membership) IsValid() bool {
	return m >= MembershipBasic && m <= MembershipPremium
}

func (m Membership) String() string {
	switch m {
	case MembershipBasic:
		return "basic"
	case MembershipDeluxe:
		return "deluxe"
	case MembershipPremium:
		return "premium"
	default:
		return fmt.Sprintf("membership(%d)", int(m))
	}
}

// ParseMembership parses a membership level by name.
func ParseMembership(s string) (Membership, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return MembershipBasic, nil
	case "deluxe":
		return MembershipDeluxe, nil
	case "premium":
		return MembershipPremium, nil
	default:
		return 0, fmt.Errorf("unknown membership %q: %w", s, fwerrors.ErrValidation)
	}
}

// StakeholderType identifies who made a payment.
type StakeholderType int

const (
	StakeholderHouseholdMember StakeholderType = 1
)

func uniqueID(kind string, id uuid.UUID) string {
	return kind + "/" + id.String()
}

func requireID(kind string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s: %w", kind, fwerrors.ErrNoIdentifier)
	}
	return nil
}
