package householddata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

const (
	householdColumns = "h.household_identifier, h.name, h.description, h.creation_time"

	householdNameSize        = 64
	householdDescriptionSize = 2048
)

// Household is a group of household members sharing food inventory.
type Household struct {
	ID           uuid.UUID
	Name         string
	Description  *string
	CreationTime time.Time

	dataProvider  dataprovider.Provider
	members       []*HouseholdMember
	membersLoaded bool
	joined        map[uuid.UUID]time.Time
}

// NewHousehold creates an in-memory household with a fresh identifier.
func NewHousehold(name string, description *string, now time.Time) *Household {
	return &Household{
		ID:           uuid.New(),
		Name:         name,
		Description:  description,
		CreationTime: now.UTC(),
	}
}

// Members returns the members of the household, loading them on first access.
func (h *Household) Members(ctx context.Context) ([]*HouseholdMember, error) {
	if h.membersLoaded || h.dataProvider == nil || h.ID == uuid.Nil {
		return h.members, nil
	}
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+householdMemberColumns+" FROM household_members AS hm JOIN member_of_households AS moh ON moh.household_member_identifier = hm.household_member_identifier WHERE moh.household_identifier = @householdIdentifier ORDER BY hm.mail_address").
		AddIdentifierParameter("@householdIdentifier", h.ID).
		Build()
	if err != nil {
		return nil, err
	}
	members, err := dataprovider.GetCollection(ctx, h.dataProvider, cmd, newHouseholdMember)
	if err != nil {
		return nil, fmt.Errorf("failed to get household members: %w", err)
	}
	h.members = members
	h.membersLoaded = true
	return members, nil
}

// HasMember reports whether a member with the given identifier is loaded
// into the household.
func (h *Household) HasMember(id uuid.UUID) bool {
	for _, m := range h.members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// AddMember adds member to the household and the household to the member.
// The membership is created with now as its join time when the household is
// saved.
func (h *Household) AddMember(ctx context.Context, member *HouseholdMember, now time.Time) error {
	if _, err := h.Members(ctx); err != nil {
		return err
	}
	if h.HasMember(member.ID) {
		return nil
	}
	h.members = append(h.members, member)
	h.joined = stampJoin(h.joined, member.ID, now)
	return member.AddHousehold(ctx, h, now)
}

// RemoveMember removes member from the household and the household from
// the member.
func (h *Household) RemoveMember(ctx context.Context, member *HouseholdMember) error {
	if _, err := h.Members(ctx); err != nil {
		return err
	}
	if !h.HasMember(member.ID) {
		return nil
	}
	remaining := make([]*HouseholdMember, 0, len(h.members))
	for _, m := range h.members {
		if m.ID != member.ID {
			remaining = append(remaining, m)
		}
	}
	h.members = remaining
	return member.RemoveHousehold(ctx, h)
}

func (h *Household) UniqueID() string { return uniqueID("household", h.ID) }

// Identifier returns the household identifier.
func (h *Household) Identifier() uuid.UUID { return h.ID }

func (h *Household) QueryForID() (dataprovider.Command, error) {
	if err := requireID("household", h.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"SELECT "+householdColumns+" FROM households AS h WHERE h.household_identifier = @householdIdentifier").
		AddIdentifierParameter("@householdIdentifier", h.ID).
		Build()
}

func (h *Household) InsertCommand() (dataprovider.Command, error) {
	if err := h.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"INSERT INTO households (household_identifier, name, description, creation_time) VALUES (@householdIdentifier, @name, @description, @creationTime)").
		AddIdentifierParameter("@householdIdentifier", h.ID).
		AddVarCharParameter("@name", h.Name, householdNameSize, false).
		AddVarCharParameter("@description", deref(h.Description), householdDescriptionSize, true).
		AddDateTimeParameter("@creationTime", h.CreationTime).
		Build()
}

func (h *Household) UpdateCommand() (dataprovider.Command, error) {
	if err := h.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"UPDATE households SET name = @name, description = @description WHERE household_identifier = @householdIdentifier").
		AddIdentifierParameter("@householdIdentifier", h.ID).
		AddVarCharParameter("@name", h.Name, householdNameSize, false).
		AddVarCharParameter("@description", deref(h.Description), householdDescriptionSize, true).
		Build()
}

func (h *Household) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("household", h.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewHouseholdCommandBuilder(
		"DELETE FROM households WHERE household_identifier = @householdIdentifier").
		AddIdentifierParameter("@householdIdentifier", h.ID).
		Build()
}

func (h *Household) validate() error {
	if err := requireID("household", h.ID); err != nil {
		return err
	}
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("household %s has no name: %w", h.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (h *Household) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if h.ID, err = r.UUID("household_identifier"); err != nil {
		return err
	}
	if h.Name, err = r.String("name"); err != nil {
		return err
	}
	if h.Description, err = r.NullableString("description"); err != nil {
		return err
	}
	if h.CreationTime, err = r.Time("creation_time"); err != nil {
		return err
	}
	h.members, h.membersLoaded = nil, false
	h.joined = nil
	h.dataProvider = handle(p)
	return nil
}

func (h *Household) MapRelations(context.Context, dataprovider.Provider) error { return nil }

// SaveRelations synchronises member_of_households with the household's members.
func (h *Household) SaveRelations(ctx context.Context, p dataprovider.Provider, inserting bool) error {
	members, err := h.Members(ctx)
	if err != nil {
		return err
	}
	target := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		target = append(target, m.ID)
	}

	var existing []*MemberOfHousehold
	if !inserting {
		if existing, err = MembershipsForHousehold(ctx, p, h.ID); err != nil {
			return err
		}
	}

	missing, stale := dataprovider.DiffLinks(existing, func(link *MemberOfHousehold) uuid.UUID {
		return link.HouseholdMemberID
	}, target)
	return syncMemberships(ctx, p, stale, missing, func(memberID uuid.UUID) *MemberOfHousehold {
		return NewMemberOfHousehold(memberID, h.ID, joinTime(h.joined, memberID, h.CreationTime))
	})
}

// DeleteRelations removes the household's memberships and deletes every
// member left without a household.
func (h *Household) DeleteRelations(ctx context.Context, p dataprovider.Provider) error {
	links, err := MembershipsForHousehold(ctx, p, h.ID)
	if err != nil {
		return err
	}
	cmd, err := dataprovider.NewHouseholdCommandBuilder(
		"DELETE FROM member_of_households WHERE household_identifier = @householdIdentifier").
		AddIdentifierParameter("@householdIdentifier", h.ID).
		Build()
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(links))
	for _, link := range links {
		if seen[link.HouseholdMemberID] {
			continue
		}
		seen[link.HouseholdMemberID] = true
		remaining, err := MembershipsForMember(ctx, p, link.HouseholdMemberID)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			continue
		}
		if err := dataprovider.Delete(ctx, p, &HouseholdMember{ID: link.HouseholdMemberID}); err != nil {
			return fmt.Errorf("failed to delete orphaned household member %s: %w", link.HouseholdMemberID, err)
		}
	}
	return nil
}

func stampJoin(joined map[uuid.UUID]time.Time, id uuid.UUID, now time.Time) map[uuid.UUID]time.Time {
	if joined == nil {
		joined = make(map[uuid.UUID]time.Time)
	}
	joined[id] = now.UTC()
	return joined
}

// joinTime returns when id was added in memory, or fallback for links
// that were not.
func joinTime(joined map[uuid.UUID]time.Time, id uuid.UUID, fallback time.Time) time.Time {
	if t, ok := joined[id]; ok {
		return t
	}
	return fallback
}

// syncMemberships deletes stale links and inserts one link per missing key.
func syncMemberships(ctx context.Context, p dataprovider.Provider, stale []*MemberOfHousehold, missing []uuid.UUID, create func(uuid.UUID) *MemberOfHousehold) error {
	for _, link := range stale {
		if err := dataprovider.Delete(ctx, p, link); err != nil {
			return fmt.Errorf("failed to delete membership %s: %w", link.ID, err)
		}
	}
	for _, id := range missing {
		link := create(id)
		if _, err := dataprovider.Add(ctx, p, link); err != nil {
			return fmt.Errorf("failed to add membership %s: %w", link.ID, err)
		}
	}
	return nil
}

func handle(p dataprovider.Provider) dataprovider.Provider {
	if p == nil {
		return nil
	}
	return p.Clone()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
