package householddata

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

// Repository provides access to household data.
type Repository struct {
	provider dataprovider.Provider
	logger   logging.Logger
}

// NewRepository creates a new household data repository.
func NewRepository(provider dataprovider.Provider, logger logging.Logger) *Repository {
	return &Repository{
		provider: provider,
		logger:   logger.With(logging.F("component", "household_data_repository")),
	}
}

// Provider returns the underlying data provider.
func (r *Repository) Provider() dataprovider.Provider {
	return r.provider
}

// HouseholdGet returns a household by identifier.
func (r *Repository) HouseholdGet(ctx context.Context, id uuid.UUID) (*Household, error) {
	return dataprovider.Get(ctx, r.provider, &Household{ID: id})
}

// HouseholdMemberGet returns a household member by identifier.
func (r *Repository) HouseholdMemberGet(ctx context.Context, id uuid.UUID) (*HouseholdMember, error) {
	return dataprovider.Get(ctx, r.provider, &HouseholdMember{ID: id})
}

// HouseholdMemberGetByMailAddress returns the member registered with a mail
// address, compared case-insensitively.
func (r *Repository) HouseholdMemberGetByMailAddress(ctx context.Context, mailAddress string) (*HouseholdMember, error) {
	mailAddress = strings.ToLower(strings.TrimSpace(mailAddress))
	if mailAddress == "" {
		return nil, fmt.Errorf("mail address is required: %w", fwerrors.ErrValidation)
	}
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+householdMemberColumns+" FROM household_members AS hm WHERE LOWER(hm.mail_address) = @mailAddress").
		AddVarCharParameter("@mailAddress", mailAddress, mailAddressSize, false).
		Build()
	if err != nil {
		return nil, err
	}
	members, err := dataprovider.GetCollection(ctx, r.provider, cmd, newHouseholdMember)
	if err != nil {
		return nil, fmt.Errorf("failed to get household member: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("household member %s: %w", mailAddress, fwerrors.ErrNotFound)
	}
	return members[0], nil
}

// MembershipsForMember returns the memberships of a household member.
func (r *Repository) MembershipsForMember(ctx context.Context, householdMemberID uuid.UUID) ([]*MemberOfHousehold, error) {
	return MembershipsForMember(ctx, r.provider, householdMemberID)
}

// MembershipsForHousehold returns the memberships of a household.
func (r *Repository) MembershipsForHousehold(ctx context.Context, householdID uuid.UUID) ([]*MemberOfHousehold, error) {
	return MembershipsForHousehold(ctx, r.provider, householdID)
}

// PaymentsForStakeholder returns the payments made by a stakeholder.
func (r *Repository) PaymentsForStakeholder(ctx context.Context, stakeholderID uuid.UUID) ([]*Payment, error) {
	return PaymentsForStakeholder(ctx, r.provider, stakeholderID)
}

// Insert adds proxy and its relations.
func (r *Repository) Insert(ctx context.Context, proxy dataprovider.DataProxy) error {
	if _, err := dataprovider.Add(ctx, r.provider, proxy); err != nil {
		return err
	}
	r.logger.Debug("Household data inserted", logging.F("proxy", proxy.UniqueID()))
	return nil
}

// Update saves proxy and its relations.
func (r *Repository) Update(ctx context.Context, proxy dataprovider.DataProxy) error {
	if _, err := dataprovider.Save(ctx, r.provider, proxy); err != nil {
		return err
	}
	r.logger.Debug("Household data updated", logging.F("proxy", proxy.UniqueID()))
	return nil
}

// Delete removes proxy and everything depending on it.
func (r *Repository) Delete(ctx context.Context, proxy dataprovider.DataProxy) error {
	if err := dataprovider.Delete(ctx, r.provider, proxy); err != nil {
		return err
	}
	r.logger.Info("Household data deleted", logging.F("proxy", proxy.UniqueID()))
	return nil
}
