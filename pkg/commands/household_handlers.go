package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/householddata"
	"github.com/otherjamesbrown/foodwaste-data/pkg/systemdata"
)

const (
	householdNameMax        = 64
	householdDescriptionMax = 2048
	mailAddressMax          = 128
	paymentReferenceMax     = 128
)

// requirements is embedded by household modifiers to declare what the
// calling member needs.
type requirements struct {
	activated      bool
	privacyPolicy  bool
	membershipNeed householddata.Membership
}

// activeMember requires an activated member who accepted the privacy policy.
var activeMember = requirements{activated: true, privacyPolicy: true, membershipNeed: householddata.MembershipBasic}

func (r requirements) ShouldBeActivated() bool               { return r.activated }
func (r requirements) ShouldHaveAcceptedPrivacyPolicy() bool { return r.privacyPolicy }
func (r requirements) RequiredMembership() householddata.Membership {
	if r.membershipNeed == 0 {
		return householddata.MembershipBasic
	}
	return r.membershipNeed
}

func addHouseholdNameRules(name string, description *string, spec *Specification, v Validations) {
	spec.IsSatisfiedBy(func() bool { return v.HasValue(name) },
		validationError("household name is required")).
		IsSatisfiedBy(func() bool { return v.IsLengthValid(name, 1, householdNameMax) },
			validationError("household name must be at most %d characters", householdNameMax)).
		IsSatisfiedBy(func() bool { return !v.ContainsIllegalChar(name) },
			validationError("household name contains illegal characters"))
	if description != nil {
		spec.IsSatisfiedBy(func() bool { return v.IsLengthValid(*description, 0, householdDescriptionMax) },
			validationError("household description must be at most %d characters", householdDescriptionMax))
	}
}

// memberHousehold loads a household the member belongs to.
func memberHousehold(ctx context.Context, repo HouseholdDataRepository, member *householddata.HouseholdMember, id uuid.UUID) (*householddata.Household, error) {
	household, err := repo.HouseholdGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := household.Members(ctx); err != nil {
		return nil, err
	}
	if !household.HasMember(member.ID) {
		return nil, fmt.Errorf("household member %s does not belong to household %s: %w", member.ID, id, fwerrors.ErrForbidden)
	}
	return household, nil
}

// ==================== Household add ====================

// HouseholdAddCommand creates a household with the caller as its first member.
type HouseholdAddCommand struct {
	Name        string
	Description *string
}

type householdAdd struct{ requirements }

func (householdAdd) CommandName() string { return "household_add" }

func (householdAdd) AddValidationRules(cmd HouseholdAddCommand, _ *householddata.HouseholdMember, spec *Specification, v Validations, _ time.Time) {
	addHouseholdNameRules(cmd.Name, cmd.Description, spec, v)
}

func (householdAdd) ModifyData(ctx context.Context, cmd HouseholdAddCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, now time.Time) (Identifiable, error) {
	household := householddata.NewHousehold(cmd.Name, cmd.Description, now)
	if err := household.AddMember(ctx, member, now); err != nil {
		return nil, err
	}
	if err := repo.Insert(ctx, household); err != nil {
		return nil, fmt.Errorf("failed to add household: %w", err)
	}
	return household, nil
}

// NewHouseholdAddHandler creates the household add handler.
func NewHouseholdAddHandler(repo HouseholdDataRepository, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[HouseholdAddCommand], error) {
	return NewHouseholdDataHandler[HouseholdAddCommand](repo, deps, householdAdd{activeMember}, opts...)
}

// ==================== Household update ====================

// HouseholdUpdateCommand renames a household of the caller.
type HouseholdUpdateCommand struct {
	HouseholdID uuid.UUID
	Name        string
	Description *string
}

type householdUpdate struct{ requirements }

func (householdUpdate) CommandName() string { return "household_update" }

func (householdUpdate) AddValidationRules(cmd HouseholdUpdateCommand, _ *householddata.HouseholdMember, spec *Specification, v Validations, _ time.Time) {
	spec.IsSatisfiedBy(func() bool { return v.IsIdentifier(cmd.HouseholdID) },
		validationError("household identifier is required"))
	addHouseholdNameRules(cmd.Name, cmd.Description, spec, v)
}

func (householdUpdate) ModifyData(ctx context.Context, cmd HouseholdUpdateCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, _ time.Time) (Identifiable, error) {
	household, err := memberHousehold(ctx, repo, member, cmd.HouseholdID)
	if err != nil {
		return nil, err
	}
	household.Name = cmd.Name
	household.Description = cmd.Description
	if err := repo.Update(ctx, household); err != nil {
		return nil, fmt.Errorf("failed to update household: %w", err)
	}
	return household, nil
}

// NewHouseholdUpdateHandler creates the household update handler.
func NewHouseholdUpdateHandler(repo HouseholdDataRepository, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[HouseholdUpdateCommand], error) {
	return NewHouseholdDataHandler[HouseholdUpdateCommand](repo, deps, householdUpdate{activeMember}, opts...)
}

// ==================== Household add member ====================

// HouseholdAddMemberCommand invites a mail address into a household of the
// caller. Unknown mail addresses are registered as new members.
type HouseholdAddMemberCommand struct {
	HouseholdID uuid.UUID
	MailAddress string
}

type householdAddMember struct{ requirements }

func (householdAddMember) CommandName() string { return "household_add_member" }

func (householdAddMember) AddValidationRules(cmd HouseholdAddMemberCommand, _ *householddata.HouseholdMember, spec *Specification, v Validations, _ time.Time) {
	spec.IsSatisfiedBy(func() bool { return v.IsIdentifier(cmd.HouseholdID) },
		validationError("household identifier is required")).
		IsSatisfiedBy(func() bool { return v.IsMailAddress(cmd.MailAddress) },
			validationError("%q is not a valid mail address", cmd.MailAddress)).
		IsSatisfiedBy(func() bool { return v.IsLengthValid(cmd.MailAddress, 1, mailAddressMax) },
			validationError("mail address must be at most %d characters", mailAddressMax))
}

func (householdAddMember) ModifyData(ctx context.Context, cmd HouseholdAddMemberCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, now time.Time) (Identifiable, error) {
	household, err := memberHousehold(ctx, repo, member, cmd.HouseholdID)
	if err != nil {
		return nil, err
	}

	invited, err := repo.HouseholdMemberGetByMailAddress(ctx, cmd.MailAddress)
	switch {
	case fwerrors.IsNotFound(err):
		invited = householddata.NewHouseholdMember(cmd.MailAddress, now)
		if err := repo.Insert(ctx, invited); err != nil {
			return nil, fmt.Errorf("failed to add household member: %w", err)
		}
	case err != nil:
		return nil, err
	}

	if err := household.AddMember(ctx, invited, now); err != nil {
		return nil, err
	}
	if err := repo.Update(ctx, household); err != nil {
		return nil, fmt.Errorf("failed to update household members: %w", err)
	}
	return invited, nil
}

// NewHouseholdAddMemberHandler creates the household add member handler.
func NewHouseholdAddMemberHandler(repo HouseholdDataRepository, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[HouseholdAddMemberCommand], error) {
	return NewHouseholdDataHandler[HouseholdAddMemberCommand](repo, deps, householdAddMember{activeMember}, opts...)
}

// ==================== Household remove member ====================

// HouseholdRemoveMemberCommand removes a member from a household of the
// caller. The household is kept even when no member is left.
type HouseholdRemoveMemberCommand struct {
	HouseholdID       uuid.UUID
	HouseholdMemberID uuid.UUID
}

type householdRemoveMember struct{ requirements }

func (householdRemoveMember) CommandName() string { return "household_remove_member" }

func (householdRemoveMember) AddValidationRules(cmd HouseholdRemoveMemberCommand, _ *householddata.HouseholdMember, spec *Specification, v Validations, _ time.Time) {
	spec.IsSatisfiedBy(func() bool { return v.IsIdentifier(cmd.HouseholdID) },
		validationError("household identifier is required")).
		IsSatisfiedBy(func() bool { return v.IsIdentifier(cmd.HouseholdMemberID) },
			validationError("household member identifier is required"))
}

func (householdRemoveMember) ModifyData(ctx context.Context, cmd HouseholdRemoveMemberCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, _ time.Time) (Identifiable, error) {
	household, err := memberHousehold(ctx, repo, member, cmd.HouseholdID)
	if err != nil {
		return nil, err
	}
	if !household.HasMember(cmd.HouseholdMemberID) {
		return nil, fmt.Errorf("household member %s in household %s: %w", cmd.HouseholdMemberID, cmd.HouseholdID, fwerrors.ErrNotFound)
	}

	removed := member
	if cmd.HouseholdMemberID != member.ID {
		if removed, err = repo.HouseholdMemberGet(ctx, cmd.HouseholdMemberID); err != nil {
			return nil, err
		}
	}
	if err := household.RemoveMember(ctx, removed); err != nil {
		return nil, err
	}
	if err := repo.Update(ctx, household); err != nil {
		return nil, fmt.Errorf("failed to update household members: %w", err)
	}
	return household, nil
}

// NewHouseholdRemoveMemberHandler creates the household remove member handler.
func NewHouseholdRemoveMemberHandler(repo HouseholdDataRepository, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[HouseholdRemoveMemberCommand], error) {
	return NewHouseholdDataHandler[HouseholdRemoveMemberCommand](repo, deps, householdRemoveMember{activeMember}, opts...)
}

// ==================== Member activate ====================

// MemberActivateCommand activates the caller with the mailed activation code.
type MemberActivateCommand struct {
	ActivationCode string
}

type memberActivate struct{ requirements }

func (memberActivate) CommandName() string { return "household_member_activate" }

func (memberActivate) AddValidationRules(cmd MemberActivateCommand, member *householddata.HouseholdMember, spec *Specification, v Validations, _ time.Time) {
	spec.IsSatisfiedBy(func() bool { return v.HasValue(cmd.ActivationCode) },
		validationError("activation code is required")).
		IsSatisfiedBy(func() bool { return !member.IsActivated() },
			fwerrors.NewCodedError(fwerrors.CodeInvalidState, "household member is already activated", fwerrors.ErrInvalidState))
}

func (memberActivate) ModifyData(ctx context.Context, cmd MemberActivateCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, now time.Time) (Identifiable, error) {
	if err := member.Activate(cmd.ActivationCode, now); err != nil {
		return nil, err
	}
	if err := repo.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to activate household member: %w", err)
	}
	return member, nil
}

// NewMemberActivateHandler creates the household member activate handler.
// The caller does not need to be activated.
func NewMemberActivateHandler(repo HouseholdDataRepository, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[MemberActivateCommand], error) {
	return NewHouseholdDataHandler[MemberActivateCommand](repo, deps, memberActivate{}, opts...)
}

// ==================== Accept privacy policy ====================

// AcceptPrivacyPolicyCommand records that the caller accepted the privacy policy.
type AcceptPrivacyPolicyCommand struct{}

type acceptPrivacyPolicy struct{ requirements }

func (acceptPrivacyPolicy) CommandName() string { return "accept_privacy_policy" }

func (acceptPrivacyPolicy) AddValidationRules(AcceptPrivacyPolicyCommand, *householddata.HouseholdMember, *Specification, Validations, time.Time) {
}

func (acceptPrivacyPolicy) ModifyData(ctx context.Context, _ AcceptPrivacyPolicyCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, now time.Time) (Identifiable, error) {
	member.AcceptPrivacyPolicy(now)
	if err := repo.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to accept privacy policy: %w", err)
	}
	return member, nil
}

// NewAcceptPrivacyPolicyHandler creates the accept privacy policy handler.
func NewAcceptPrivacyPolicyHandler(repo HouseholdDataRepository, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[AcceptPrivacyPolicyCommand], error) {
	return NewHouseholdDataHandler[AcceptPrivacyPolicyCommand](repo, deps, acceptPrivacyPolicy{requirements{activated: true}}, opts...)
}

// ==================== Upgrade membership ====================

// DataProviderGetter resolves the data provider a payment was made through.
type DataProviderGetter interface {
	DataProviderGet(ctx context.Context, id uuid.UUID) (*systemdata.DataProvider, error)
}

// UpgradeMembershipCommand records a payment and applies the paid membership.
type UpgradeMembershipCommand struct {
	Membership       householddata.Membership
	DataProviderID   uuid.UUID
	PaymentTime      time.Time
	PaymentReference string
	PaymentReceipt   []byte
}

type upgradeMembership struct {
	requirements
	dataProviders DataProviderGetter
}

func (upgradeMembership) CommandName() string { return "upgrade_membership" }

func (upgradeMembership) AddValidationRules(cmd UpgradeMembershipCommand, _ *householddata.HouseholdMember, spec *Specification, v Validations, now time.Time) {
	spec.IsSatisfiedBy(func() bool {
		return v.IsMembershipValid(cmd.Membership) && cmd.Membership > householddata.MembershipBasic
	},
		validationError("membership %s cannot be bought", cmd.Membership)).
		IsSatisfiedBy(func() bool { return v.IsIdentifier(cmd.DataProviderID) },
			validationError("data provider identifier is required")).
		IsSatisfiedBy(func() bool { return !v.IsFutureDateTime(cmd.PaymentTime, now) && !cmd.PaymentTime.IsZero() },
			validationError("payment time must not be in the future")).
		IsSatisfiedBy(func() bool { return v.HasValue(cmd.PaymentReference) },
			validationError("payment reference is required")).
		IsSatisfiedBy(func() bool { return v.IsLengthValid(cmd.PaymentReference, 1, paymentReferenceMax) },
			validationError("payment reference must be at most %d characters", paymentReferenceMax))
}

func (u upgradeMembership) ModifyData(ctx context.Context, cmd UpgradeMembershipCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, now time.Time) (Identifiable, error) {
	dp, err := u.dataProviders.DataProviderGet(ctx, cmd.DataProviderID)
	if err != nil {
		return nil, err
	}
	if !dp.HandlesPayments {
		return nil, fwerrors.NewCodedError(fwerrors.CodeInvalidState,
			fmt.Sprintf("data provider %s does not handle payments", dp.Name), fwerrors.ErrInvalidState)
	}

	payment := householddata.NewPayment(dp, cmd.PaymentTime, cmd.PaymentReference, cmd.PaymentReceipt, now)
	member.PaymentAdd(payment)
	if err := member.ApplyMembership(cmd.Membership, now); err != nil {
		return nil, err
	}
	if err := repo.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to upgrade membership: %w", err)
	}
	return payment, nil
}

// NewUpgradeMembershipHandler creates the upgrade membership handler.
func NewUpgradeMembershipHandler(repo HouseholdDataRepository, dataProviders DataProviderGetter, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[UpgradeMembershipCommand], error) {
	if isNil(dataProviders) {
		return nil, fmt.Errorf("data provider getter is required: %w", fwerrors.ErrValidation)
	}
	return NewHouseholdDataHandler[UpgradeMembershipCommand](repo, deps, upgradeMembership{requirements: activeMember, dataProviders: dataProviders}, opts...)
}

// ==================== Delete own member ====================

// DeleteOwnMemberCommand deletes the caller with its payments, memberships
// and every household left without members.
type DeleteOwnMemberCommand struct{}

type deleteOwnMember struct{ requirements }

func (deleteOwnMember) CommandName() string { return "household_member_delete" }

func (deleteOwnMember) AddValidationRules(DeleteOwnMemberCommand, *householddata.HouseholdMember, *Specification, Validations, time.Time) {
}

func (deleteOwnMember) ModifyData(ctx context.Context, _ DeleteOwnMemberCommand, member *householddata.HouseholdMember, repo HouseholdDataRepository, _ time.Time) (Identifiable, error) {
	if err := repo.Delete(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to delete household member: %w", err)
	}
	return member, nil
}

// NewDeleteOwnMemberHandler creates the delete own household member handler.
func NewDeleteOwnMemberHandler(repo HouseholdDataRepository, deps Dependencies, opts ...HandlerOption) (*HouseholdDataHandler[DeleteOwnMemberCommand], error) {
	return NewHouseholdDataHandler[DeleteOwnMemberCommand](repo, deps, deleteOwnMember{}, opts...)
}
