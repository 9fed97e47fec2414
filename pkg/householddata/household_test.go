package householddata

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider/providertest"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

func TestHousehold_AddMember_KeepsBothSides(t *testing.T) {
	ctx := context.Background()
	h := NewHousehold("Home", nil, testNow)
	m := NewHouseholdMember("ann@example.com", testNow)

	require.NoError(t, h.AddMember(ctx, m, testNow))
	require.NoError(t, h.AddMember(ctx, m, testNow))
	require.NoError(t, m.AddHousehold(ctx, h, testNow))

	members, err := h.Members(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
	households, err := m.Households(ctx)
	require.NoError(t, err)
	assert.Len(t, households, 1)

	require.NoError(t, m.RemoveHousehold(ctx, h))
	assert.False(t, h.HasMember(m.ID))
	assert.False(t, m.HasHousehold(h.ID))
}

func TestHousehold_Commands(t *testing.T) {
	_, err := (&Household{}).QueryForID()
	assert.ErrorIs(t, err, fwerrors.ErrNoIdentifier)

	h := NewHousehold("  ", nil, testNow)
	_, err = h.InsertCommand()
	assert.True(t, fwerrors.IsValidation(err))

	h.Name = "Home"
	cmd, err := h.InsertCommand()
	require.NoError(t, err)
	assert.Nil(t, cmd.Args[2], "missing description is stored as null")
}

func TestHousehold_LazyMembers(t *testing.T) {
	ctx := context.Background()
	householdID := uuid.New()
	fake := providertest.New().
		OnQueryRows("FROM households AS h WHERE", householdRow(householdID, "Home")).
		OnQueryRows("FROM household_members AS hm JOIN member_of_households",
			memberRow(uuid.New(), "ann@example.com"), memberRow(uuid.New(), "bob@example.com"))

	h, err := NewRepository(fake, testLogger()).HouseholdGet(ctx, householdID)
	require.NoError(t, err)

	members, err := h.Members(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = h.Members(ctx)
	require.NoError(t, err)
	assert.Len(t, fake.Queried("FROM household_members AS hm JOIN"), 1)
}

func TestHousehold_Add_InsertsMemberships(t *testing.T) {
	ctx := context.Background()
	fake := providertest.New()
	h := NewHousehold("Home", nil, testNow)
	m := NewHouseholdMember("ann@example.com", testNow)
	joined := time.Date(2024, 3, 2, 8, 30, 0, 0, time.FixedZone("CET", 60*60))
	require.NoError(t, h.AddMember(ctx, m, joined))

	_, err := dataprovider.Add(ctx, fake, h)
	require.NoError(t, err)

	links := fake.Executed("INSERT INTO member_of_households")
	require.Len(t, links, 1)
	assert.Equal(t, m.ID, argUUID(links[0].Args, 1))
	assert.Equal(t, h.ID, argUUID(links[0].Args, 2))
	assert.Equal(t, joined.UTC(), links[0].Args[3], "the link carries the join time")
	assert.Empty(t, fake.Queried("FROM member_of_households AS moh"))
}

func TestHousehold_Save_SynchronisesMemberships(t *testing.T) {
	ctx := context.Background()
	householdID, m1, m2, m3 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	keptLink, staleLink := uuid.New(), uuid.New()

	fake := providertest.New().
		OnQueryRows("FROM households AS h WHERE", householdRow(householdID, "Home")).
		OnQueryRows("FROM household_members AS hm JOIN member_of_households",
			memberRow(m1, "ann@example.com"), memberRow(m2, "bob@example.com")).
		OnQueryRows("FROM member_of_households AS moh WHERE moh.household_identifier",
			membershipRow(keptLink, m1, householdID), membershipRow(staleLink, m3, householdID))

	h, err := dataprovider.Get(ctx, fake, &Household{ID: householdID})
	require.NoError(t, err)

	_, err = dataprovider.Save(ctx, fake, h)
	require.NoError(t, err)

	deletes := fake.Executed("DELETE FROM member_of_households WHERE member_of_household_identifier")
	require.Len(t, deletes, 1)
	assert.Equal(t, staleLink, argUUID(deletes[0].Args, 0))

	inserts := fake.Executed("INSERT INTO member_of_households")
	require.Len(t, inserts, 1)
	assert.Equal(t, m2, argUUID(inserts[0].Args, 1))
	assert.Equal(t, testNow, inserts[0].Args[3], "links not added in memory fall back to the household creation time")
}

func TestHousehold_Delete_RemovesOrphanedMembers(t *testing.T) {
	ctx := context.Background()
	householdID, otherHouseholdID := uuid.New(), uuid.New()
	sharedMember, soleMember := uuid.New(), uuid.New()

	fake := providertest.New().
		OnQueryRows("WHERE moh.household_identifier",
			membershipRow(uuid.New(), sharedMember, householdID),
			membershipRow(uuid.New(), soleMember, householdID)).
		OnQuery("WHERE moh.household_member_identifier", func(args []any) ([]dataprovider.Record, error) {
			if argUUID(args, 0) == sharedMember {
				return []dataprovider.Record{membershipRow(uuid.New(), sharedMember, otherHouseholdID)}, nil
			}
			return nil, nil
		})

	require.NoError(t, NewRepository(fake, testLogger()).Delete(ctx, &Household{ID: householdID}))

	assert.Len(t, fake.Executed("DELETE FROM member_of_households WHERE household_identifier"), 1)

	memberDeletes := fake.Executed("DELETE FROM household_members")
	require.Len(t, memberDeletes, 1)
	assert.Equal(t, soleMember, argUUID(memberDeletes[0].Args, 0))

	payments := fake.Executed("DELETE FROM payments")
	require.Len(t, payments, 1)
	assert.Equal(t, soleMember, argUUID(payments[0].Args, 0))

	households := fake.Executed("DELETE FROM households")
	require.Len(t, households, 1)
	assert.Equal(t, householdID, argUUID(households[0].Args, 0))
}
