package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/householddata"
)

func TestReceiptMapper_Map(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	m := NewReceiptMapper(func() time.Time { return now })

	household := householddata.NewHousehold("Home", nil, now)
	receipt, err := m.Map(household)
	require.NoError(t, err)
	assert.Equal(t, household.ID, receipt.Identifier)
	assert.Equal(t, now.UTC(), receipt.EventDate)
	assert.Equal(t, time.UTC, receipt.EventDate.Location())
}

func TestReceiptMapper_Rejects(t *testing.T) {
	m := NewReceiptMapper(nil)

	_, err := m.Map(nil)
	assert.True(t, fwerrors.IsValidation(err))

	var household *householddata.Household
	_, err = m.Map(household)
	assert.True(t, fwerrors.IsValidation(err), "typed nil")

	_, err = m.Map(&householddata.Household{})
	assert.ErrorIs(t, err, fwerrors.ErrNoIdentifier)
}

func TestClaims_MailAddress(t *testing.T) {
	_, ok := MailAddressFrom(context.Background())
	assert.False(t, ok)

	_, ok = MailAddressFrom(WithMailAddress(context.Background(), "   "))
	assert.False(t, ok)

	mail, ok := MailAddressFrom(WithMailAddress(context.Background(), " ann@example.com "))
	require.True(t, ok)
	assert.Equal(t, "ann@example.com", mail)
}
