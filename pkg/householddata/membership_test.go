package householddata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

func TestParseMembership(t *testing.T) {
	tests := []struct {
		in      string
		want    Membership
		wantErr bool
	}{
		{"basic", MembershipBasic, false},
		{"Deluxe", MembershipDeluxe, false},
		{" PREMIUM ", MembershipPremium, false},
		{"gold", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMembership(tt.in)
			if tt.wantErr {
				assert.True(t, fwerrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
	assert.False(t, Membership(4).IsValid())
}

func mustParse(t *testing.T, s string) Membership {
	t.Helper()
	m, err := ParseMembership(s)
	require.NoError(t, err)
	return m
}

func TestHouseholdMember_HasRequiredMembership(t *testing.T) {
	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name       string
		membership Membership
		expire     *time.Time
		required   Membership
		want       bool
	}{
		{"basic never expires", MembershipBasic, nil, MembershipBasic, true},
		{"basic is not deluxe", MembershipBasic, nil, MembershipDeluxe, false},
		{"unexpired deluxe", MembershipDeluxe, &future, MembershipDeluxe, true},
		{"deluxe is not premium", MembershipDeluxe, &future, MembershipPremium, false},
		{"expired premium falls back to basic", MembershipPremium, &past, MembershipDeluxe, false},
		{"expired premium still basic", MembershipPremium, &past, MembershipBasic, true},
		{"premium without expire time", MembershipPremium, nil, MembershipDeluxe, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &HouseholdMember{Membership: tt.membership, MembershipExpireTime: tt.expire}
			assert.Equal(t, tt.want, m.HasRequiredMembership(tt.required, testNow))
		})
	}
}

func TestHouseholdMember_ApplyMembership(t *testing.T) {
	m := NewHouseholdMember("ann@example.com", testNow)

	require.NoError(t, m.ApplyMembership(MembershipDeluxe, testNow))
	require.NotNil(t, m.MembershipExpireTime)
	assert.Equal(t, testNow.Add(MembershipPeriod), *m.MembershipExpireTime)

	later := testNow.Add(24 * time.Hour)
	require.NoError(t, m.ApplyMembership(MembershipDeluxe, later))
	assert.Equal(t, testNow.Add(2*MembershipPeriod), *m.MembershipExpireTime, "renewal extends the running period")

	require.NoError(t, m.ApplyMembership(MembershipPremium, later))
	assert.Equal(t, later.Add(MembershipPeriod), *m.MembershipExpireTime, "upgrade starts a new period")

	require.NoError(t, m.ApplyMembership(MembershipBasic, later))
	assert.Nil(t, m.MembershipExpireTime)

	assert.True(t, fwerrors.IsValidation(m.ApplyMembership(Membership(9), later)))
}

func TestHouseholdMember_Activate(t *testing.T) {
	m := NewHouseholdMember("ann@example.com", testNow)
	assert.False(t, m.IsActivated())

	assert.True(t, fwerrors.IsValidation(m.Activate("wrong", testNow)))
	require.NoError(t, m.Activate(m.ActivationCode, testNow))
	assert.True(t, m.IsActivated())
	assert.True(t, fwerrors.IsInvalidState(m.Activate(m.ActivationCode, testNow)))
}

func TestHouseholdMember_AcceptPrivacyPolicy(t *testing.T) {
	m := NewHouseholdMember("ann@example.com", testNow)
	m.AcceptPrivacyPolicy(testNow)
	m.AcceptPrivacyPolicy(testNow.Add(time.Hour))

	require.True(t, m.IsPrivacyPolicyAccepted())
	assert.Equal(t, testNow, *m.PrivacyPolicyAcceptedTime)
}

func TestHouseholdMember_Validate(t *testing.T) {
	m := NewHouseholdMember("not a mail address", testNow)
	_, err := m.InsertCommand()
	assert.True(t, fwerrors.IsValidation(err))

	m.MailAddress = "ann@example.com"
	cmd, err := m.InsertCommand()
	require.NoError(t, err)
	assert.Equal(t, int16(MembershipBasic), cmd.Args[2])
}
