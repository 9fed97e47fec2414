package householddata

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

const (
	householdMemberColumns = "hm.household_member_identifier, hm.mail_address, hm.membership, hm.membership_expire_time, hm.activation_code, hm.activation_time, hm.privacy_policy_accepted_time, hm.creation_time"

	mailAddressSize    = 128
	activationCodeSize = 64
)

// HouseholdMember is a registered user who can belong to several households.
type HouseholdMember struct {
	ID                        uuid.UUID
	MailAddress               string
	Membership                Membership
	MembershipExpireTime      *time.Time
	ActivationCode            string
	ActivationTime            *time.Time
	PrivacyPolicyAcceptedTime *time.Time
	CreationTime              time.Time

	dataProvider     dataprovider.Provider
	households       []*Household
	householdsLoaded bool
	payments         []*Payment
	paymentsLoaded   bool
	pendingPayments  []*Payment
	joined           map[uuid.UUID]time.Time
}

// NewHouseholdMember creates an in-memory basic member with a fresh
// identifier and activation code.
func NewHouseholdMember(mailAddress string, now time.Time) *HouseholdMember {
	return &HouseholdMember{
		ID:             uuid.New(),
		MailAddress:    mailAddress,
		Membership:     MembershipBasic,
		ActivationCode: NewActivationCode(),
		CreationTime:   now.UTC(),
	}
}

// NewActivationCode returns a random activation code.
func NewActivationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func newHouseholdMember() *HouseholdMember { return &HouseholdMember{} }

// IsActivated reports whether the member has been activated.
func (m *HouseholdMember) IsActivated() bool {
	return m.ActivationTime != nil
}

// Activate activates the member when code matches the activation code.
func (m *HouseholdMember) Activate(code string, now time.Time) error {
	if m.IsActivated() {
		return fmt.Errorf("household member %s is already activated: %w", m.ID, fwerrors.ErrInvalidState)
	}
	if code == "" || !strings.EqualFold(strings.TrimSpace(code), m.ActivationCode) {
		return fmt.Errorf("activation code does not match: %w", fwerrors.ErrValidation)
	}
	t := now.UTC()
	m.ActivationTime = &t
	return nil
}

// IsPrivacyPolicyAccepted reports whether the member accepted the privacy policy.
func (m *HouseholdMember) IsPrivacyPolicyAccepted() bool {
	return m.PrivacyPolicyAcceptedTime != nil
}

// AcceptPrivacyPolicy records the acceptance time. Accepting again keeps
// the first acceptance.
func (m *HouseholdMember) AcceptPrivacyPolicy(now time.Time) {
	if m.IsPrivacyPolicyAccepted() {
		return
	}
	t := now.UTC()
	m.PrivacyPolicyAcceptedTime = &t
}

// EffectiveMembership returns the membership in force at now. An expired
// paid membership falls back to basic.
func (m *HouseholdMember) EffectiveMembership(now time.Time) Membership {
	if m.Membership <= MembershipBasic {
		return MembershipBasic
	}
	if m.MembershipExpireTime == nil || !m.MembershipExpireTime.After(now) {
		return MembershipBasic
	}
	return m.Membership
}

// HasRequiredMembership reports whether the member's membership at now is
// at least required.
func (m *HouseholdMember) HasRequiredMembership(required Membership, now time.Time) bool {
	return m.EffectiveMembership(now) >= required
}

// ApplyMembership sets the membership level. Paid levels run for one
// MembershipPeriod, extending an unexpired period of the same level.
func (m *HouseholdMember) ApplyMembership(membership Membership, now time.Time) error {
	if !membership.IsValid() {
		return fmt.Errorf("%s: %w", membership, fwerrors.ErrValidation)
	}
	if membership == MembershipBasic {
		m.Membership = MembershipBasic
		m.MembershipExpireTime = nil
		return nil
	}

	start := now.UTC()
	if m.EffectiveMembership(now) == membership {
		start = m.MembershipExpireTime.UTC()
	}
	expire := start.Add(MembershipPeriod)
	m.Membership = membership
	m.MembershipExpireTime = &expire
	return nil
}

// Households returns the households of the member, loading them on first access.
func (m *HouseholdMember) Households(ctx context.Context) ([]*Household, error) {
	if m.householdsLoaded || m.dataProvider == nil || m.ID == uuid.Nil {
		return m.households, nil
	}
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+householdColumns+" FROM households AS h JOIN member_of_households AS moh ON moh.household_identifier = h.household_identifier WHERE moh.household_member_identifier = @householdMemberIdentifier ORDER BY h.name").
		AddIdentifierParameter("@householdMemberIdentifier", m.ID).
		Build()
	if err != nil {
		return nil, err
	}
	households, err := dataprovider.GetCollection(ctx, m.dataProvider, cmd, func() *Household { return &Household{} })
	if err != nil {
		return nil, fmt.Errorf("failed to get households: %w", err)
	}
	m.households = households
	m.householdsLoaded = true
	return households, nil
}

// HasHousehold reports whether a household with the given identifier is
// loaded into the member.
func (m *HouseholdMember) HasHousehold(id uuid.UUID) bool {
	for _, h := range m.households {
		if h.ID == id {
			return true
		}
	}
	return false
}

// AddHousehold adds household to the member and the member to the
// household, joining at now.
func (m *HouseholdMember) AddHousehold(ctx context.Context, household *Household, now time.Time) error {
	if _, err := m.Households(ctx); err != nil {
		return err
	}
	if m.HasHousehold(household.ID) {
		return nil
	}
	m.households = append(m.households, household)
	m.joined = stampJoin(m.joined, household.ID, now)
	return household.AddMember(ctx, m, now)
}

// RemoveHousehold removes household from the member and the member from
// the household.
func (m *HouseholdMember) RemoveHousehold(ctx context.Context, household *Household) error {
	if _, err := m.Households(ctx); err != nil {
		return err
	}
	if !m.HasHousehold(household.ID) {
		return nil
	}
	remaining := make([]*Household, 0, len(m.households))
	for _, h := range m.households {
		if h.ID != household.ID {
			remaining = append(remaining, h)
		}
	}
	m.households = remaining
	return household.RemoveMember(ctx, m)
}

// Payments returns the payments made by the member, loading them on first access.
func (m *HouseholdMember) Payments(ctx context.Context) ([]*Payment, error) {
	if m.paymentsLoaded || m.dataProvider == nil || m.ID == uuid.Nil {
		return m.payments, nil
	}
	payments, err := PaymentsForStakeholder(ctx, m.dataProvider, m.ID)
	if err != nil {
		return nil, err
	}
	m.payments = append(payments, m.pendingPayments...)
	m.paymentsLoaded = true
	return m.payments, nil
}

// PaymentAdd records a payment made by the member, inserted when the member
// is saved.
func (m *HouseholdMember) PaymentAdd(payment *Payment) {
	payment.StakeholderID = m.ID
	payment.StakeholderType = StakeholderHouseholdMember
	m.payments = append(m.payments, payment)
	m.pendingPayments = append(m.pendingPayments, payment)
}

func (m *HouseholdMember) UniqueID() string { return uniqueID("household_member", m.ID) }

// Identifier returns the household member identifier.
func (m *HouseholdMember) Identifier() uuid.UUID { return m.ID }

func (m *HouseholdMember) QueryForID() (dataprovider.Command, error) {
	if err := requireID("household member", m.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+householdMemberColumns+" FROM household_members AS hm WHERE hm.household_member_identifier = @householdMemberIdentifier").
		AddIdentifierParameter("@householdMemberIdentifier", m.ID).
		Build()
}

func (m *HouseholdMember) InsertCommand() (dataprovider.Command, error) {
	if err := m.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return m.writeCommand(
		"INSERT INTO household_members (household_member_identifier, mail_address, membership, membership_expire_time, activation_code, activation_time, privacy_policy_accepted_time, creation_time) VALUES (@householdMemberIdentifier, @mailAddress, @membership, @membershipExpireTime, @activationCode, @activationTime, @privacyPolicyAcceptedTime, @creationTime)")
}

func (m *HouseholdMember) UpdateCommand() (dataprovider.Command, error) {
	if err := m.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return m.writeCommand(
		"UPDATE household_members SET mail_address = @mailAddress, membership = @membership, membership_expire_time = @membershipExpireTime, activation_code = @activationCode, activation_time = @activationTime, privacy_policy_accepted_time = @privacyPolicyAcceptedTime, creation_time = @creationTime WHERE household_member_identifier = @householdMemberIdentifier")
}

func (m *HouseholdMember) writeCommand(sql string) (dataprovider.Command, error) {
	return dataprovider.NewHouseholdCommandBuilder(sql).
		AddIdentifierParameter("@householdMemberIdentifier", m.ID).
		AddVarCharParameter("@mailAddress", m.MailAddress, mailAddressSize, false).
		AddSmallIntParameter("@membership", int(m.Membership)).
		AddNullableDateTimeParameter("@membershipExpireTime", m.MembershipExpireTime).
		AddVarCharParameter("@activationCode", m.ActivationCode, activationCodeSize, false).
		AddNullableDateTimeParameter("@activationTime", m.ActivationTime).
		AddNullableDateTimeParameter("@privacyPolicyAcceptedTime", m.PrivacyPolicyAcceptedTime).
		AddDateTimeParameter("@creationTime", m.CreationTime).
		Build()
}

func (m *HouseholdMember) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("household member", m.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"DELETE FROM household_members WHERE household_member_identifier = @householdMemberIdentifier").
		AddIdentifierParameter("@householdMemberIdentifier", m.ID).
		Build()
}

func (m *HouseholdMember) validate() error {
	if err := requireID("household member", m.ID); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(m.MailAddress); err != nil {
		return fmt.Errorf("mail address %q: %w", m.MailAddress, fwerrors.ErrValidation)
	}
	if !m.Membership.IsValid() {
		return fmt.Errorf("household member %s: %s: %w", m.ID, m.Membership, fwerrors.ErrValidation)
	}
	if strings.TrimSpace(m.ActivationCode) == "" {
		return fmt.Errorf("household member %s has no activation code: %w", m.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (m *HouseholdMember) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if m.ID, err = r.UUID("household_member_identifier"); err != nil {
		return err
	}
	if m.MailAddress, err = r.String("mail_address"); err != nil {
		return err
	}
	membership, err := r.Int("membership")
	if err != nil {
		return err
	}
	m.Membership = Membership(membership)
	if m.MembershipExpireTime, err = r.NullableTime("membership_expire_time"); err != nil {
		return err
	}
	if m.ActivationCode, err = r.String("activation_code"); err != nil {
		return err
	}
	if m.ActivationTime, err = r.NullableTime("activation_time"); err != nil {
		return err
	}
	if m.PrivacyPolicyAcceptedTime, err = r.NullableTime("privacy_policy_accepted_time"); err != nil {
		return err
	}
	if m.CreationTime, err = r.Time("creation_time"); err != nil {
		return err
	}

	m.households, m.householdsLoaded = nil, false
	m.payments, m.paymentsLoaded, m.pendingPayments = nil, false, nil
	m.joined = nil
	m.dataProvider = handle(p)
	return nil
}

func (m *HouseholdMember) MapRelations(context.Context, dataprovider.Provider) error { return nil }

// SaveRelations synchronises member_of_households with the member's
// households and inserts payments added in memory.
func (m *HouseholdMember) SaveRelations(ctx context.Context, p dataprovider.Provider, inserting bool) error {
	households, err := m.Households(ctx)
	if err != nil {
		return err
	}
	target := make([]uuid.UUID, 0, len(households))
	for _, h := range households {
		target = append(target, h.ID)
	}

	var existing []*MemberOfHousehold
	if !inserting {
		if existing, err = MembershipsForMember(ctx, p, m.ID); err != nil {
			return err
		}
	}

	missing, stale := dataprovider.DiffLinks(existing, func(link *MemberOfHousehold) uuid.UUID {
		return link.HouseholdID
	}, target)
	err = syncMemberships(ctx, p, stale, missing, func(householdID uuid.UUID) *MemberOfHousehold {
		return NewMemberOfHousehold(m.ID, householdID, joinTime(m.joined, householdID, m.CreationTime))
	})
	if err != nil {
		return err
	}

	for _, payment := range m.pendingPayments {
		if _, err := dataprovider.Add(ctx, p, payment); err != nil {
			return fmt.Errorf("failed to add payment: %w", err)
		}
	}
	m.pendingPayments = nil
	return nil
}

// DeleteRelations removes the member's payments and memberships and deletes
// every household left without members.
func (m *HouseholdMember) DeleteRelations(ctx context.Context, p dataprovider.Provider) error {
	if err := DeletePaymentsForStakeholder(ctx, p, m.ID); err != nil {
		return err
	}

	links, err := MembershipsForMember(ctx, p, m.ID)
	if err != nil {
		return err
	}
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"DELETE FROM member_of_households WHERE household_member_identifier = @householdMemberIdentifier").
		AddIdentifierParameter("@householdMemberIdentifier", m.ID).
		Build()
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(links))
	for _, link := range links {
		if seen[link.HouseholdID] {
			continue
		}
		seen[link.HouseholdID] = true
		remaining, err := MembershipsForHousehold(ctx, p, link.HouseholdID)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			continue
		}
		if err := dataprovider.Delete(ctx, p, &Household{ID: link.HouseholdID}); err != nil {
			return fmt.Errorf("failed to delete empty household %s: %w", link.HouseholdID, err)
		}
	}
	return nil
}
