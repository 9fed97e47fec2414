package householddata

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

const memberOfHouseholdColumns = "moh.member_of_household_identifier, moh.household_member_identifier, moh.household_identifier, moh.creation_time"

// MemberOfHousehold links a household member to a household and records
// when the member joined.
type MemberOfHousehold struct {
	ID                uuid.UUID
	HouseholdMemberID uuid.UUID
	HouseholdID       uuid.UUID
	CreationTime      time.Time

	dataProvider          dataprovider.Provider
	householdMember       *HouseholdMember
	householdMemberLoaded bool
	household             *Household
	householdLoaded       bool
}

// NewMemberOfHousehold creates an in-memory membership with a fresh identifier.
func NewMemberOfHousehold(householdMemberID, householdID uuid.UUID, now time.Time) *MemberOfHousehold {
	return &MemberOfHousehold{
		ID:                uuid.New(),
		HouseholdMemberID: householdMemberID,
		HouseholdID:       householdID,
		CreationTime:      now.UTC(),
	}
}

func newMemberOfHousehold() *MemberOfHousehold { return &MemberOfHousehold{} }

// HouseholdMember returns the linked member, loading it on first access.
func (moh *MemberOfHousehold) HouseholdMember(ctx context.Context) (*HouseholdMember, error) {
	if moh.householdMemberLoaded || moh.dataProvider == nil || moh.HouseholdMemberID == uuid.Nil {
		return moh.householdMember, nil
	}
	member, err := dataprovider.Get(ctx, moh.dataProvider, &HouseholdMember{ID: moh.HouseholdMemberID})
	if err != nil {
		return nil, fmt.Errorf("failed to load household member: %w", err)
	}
	moh.householdMember = member
	moh.householdMemberLoaded = true
	return member, nil
}

// Household returns the linked household, loading it on first access.
func (moh *MemberOfHousehold) Household(ctx context.Context) (*Household, error) {
	if moh.householdLoaded || moh.dataProvider == nil || moh.HouseholdID == uuid.Nil {
		return moh.household, nil
	}
	household, err := dataprovider.Get(ctx, moh.dataProvider, &Household{ID: moh.HouseholdID})
	if err != nil {
		return nil, fmt.Errorf("failed to load household: %w", err)
	}
	moh.household = household
	moh.householdLoaded = true
	return household, nil
}

func (moh *MemberOfHousehold) UniqueID() string { return uniqueID("member_of_household", moh.ID) }

func (moh *MemberOfHousehold) QueryForID() (dataprovider.Command, error) {
	if err := requireID("member of household", moh.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+memberOfHouseholdColumns+" FROM member_of_households AS moh WHERE moh.member_of_household_identifier = @memberOfHouseholdIdentifier").
		AddIdentifierParameter("@memberOfHouseholdIdentifier", moh.ID).
		Build()
}

func (moh *MemberOfHousehold) InsertCommand() (dataprovider.Command, error) {
	if err := moh.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return moh.writeCommand(
		"INSERT INTO member_of_households (member_of_household_identifier, household_member_identifier, household_identifier, creation_time) VALUES (@memberOfHouseholdIdentifier, @householdMemberIdentifier, @householdIdentifier, @creationTime)")
}

func (moh *MemberOfHousehold) UpdateCommand() (dataprovider.Command, error) {
	if err := moh.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return moh.writeCommand(
		"UPDATE member_of_households SET household_member_identifier = @householdMemberIdentifier, household_identifier = @householdIdentifier, creation_time = @creationTime WHERE member_of_household_identifier = @memberOfHouseholdIdentifier")
}

func (moh *MemberOfHousehold) writeCommand(sql string) (dataprovider.Command, error) {
	return dataprovider.NewHouseholdCommandBuilder(sql).
		AddIdentifierParameter("@memberOfHouseholdIdentifier", moh.ID).
		AddIdentifierParameter("@householdMemberIdentifier", moh.HouseholdMemberID).
		AddIdentifierParameter("@householdIdentifier", moh.HouseholdID).
		AddDateTimeParameter("@creationTime", moh.CreationTime).
		Build()
}

func (moh *MemberOfHousehold) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("member of household", moh.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"DELETE FROM member_of_households WHERE member_of_household_identifier = @memberOfHouseholdIdentifier").
		AddIdentifierParameter("@memberOfHouseholdIdentifier", moh.ID).
		Build()
}

func (moh *MemberOfHousehold) validate() error {
	if err := requireID("member of household", moh.ID); err != nil {
		return err
	}
	if moh.HouseholdMemberID == uuid.Nil || moh.HouseholdID == uuid.Nil {
		return fmt.Errorf("member of household %s must link a member and a household: %w", moh.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (moh *MemberOfHousehold) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if moh.ID, err = r.UUID("member_of_household_identifier"); err != nil {
		return err
	}
	if moh.HouseholdMemberID, err = r.UUID("household_member_identifier"); err != nil {
		return err
	}
	if moh.HouseholdID, err = r.UUID("household_identifier"); err != nil {
		return err
	}
	if moh.CreationTime, err = r.Time("creation_time"); err != nil {
		return err
	}
	moh.householdMember, moh.householdMemberLoaded = nil, false
	moh.household, moh.householdLoaded = nil, false
	moh.dataProvider = handle(p)
	return nil
}

func (moh *MemberOfHousehold) MapRelations(context.Context, dataprovider.Provider) error { return nil }

func (moh *MemberOfHousehold) SaveRelations(context.Context, dataprovider.Provider, bool) error {
	return nil
}

func (moh *MemberOfHousehold) DeleteRelations(context.Context, dataprovider.Provider) error {
	return nil
}

// MembershipsForMember returns the memberships of a household member.
func MembershipsForMember(ctx context.Context, p dataprovider.Provider, householdMemberID uuid.UUID) ([]*MemberOfHousehold, error) {
	return membershipsWhere(ctx, p, "moh.household_member_identifier = @identifier", householdMemberID)
}

// MembershipsForHousehold returns the memberships of a household.
func MembershipsForHousehold(ctx context.Context, p dataprovider.Provider, householdID uuid.UUID) ([]*MemberOfHousehold, error) {
	return membershipsWhere(ctx, p, "moh.household_identifier = @identifier", householdID)
}

func membershipsWhere(ctx context.Context, p dataprovider.Provider, where string, id uuid.UUID) ([]*MemberOfHousehold, error) {
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+memberOfHouseholdColumns+" FROM member_of_households AS moh WHERE "+where+" ORDER BY moh.creation_time").
		AddIdentifierParameter("@identifier", id).
		Build()
	if err != nil {
		return nil, err
	}
	links, err := dataprovider.GetCollection(ctx, p, cmd, newMemberOfHousehold)
	if err != nil {
		return nil, fmt.Errorf("failed to get memberships: %w", err)
	}
	return links, nil
}
