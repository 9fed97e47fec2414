package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider/providertest"
)

func TestAuthCommand_Subcommands(t *testing.T) {
	cmd := NewAuthCommand()

	for _, name := range []string{"login", "logout", "status"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Use)
	}
	login, _, err := cmd.Find([]string{"login"})
	require.NoError(t, err)
	assert.NotNil(t, login.Flags().Lookup("password-stdin"))
	assert.NotNil(t, login.Flags().Lookup("no-verify"))
}

func TestAuth_LoginStatusLogout(t *testing.T) {
	deps := newTestDeps(t, providertest.New())

	out, err := run(t, newAuthCommand(deps), "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored Credentials: None")

	out, err = run(t, newAuthCommand(deps), "s3cret-password\n", "login", "--password-stdin", "--no-verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful!")
	assert.NotContains(t, out, "s3cret-password")

	out, err = run(t, newAuthCommand(deps), "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored Credentials:")
	assert.NotContains(t, out, "None")
	assert.NotContains(t, out, "s3cret-password")
	assert.NotContains(t, out, "different database")

	out, err = run(t, newAuthCommand(deps), "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out successfully.")

	out, err = run(t, newAuthCommand(deps), "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored credentials found.")
}

func TestAuth_StatusShowsEnvironmentPassword(t *testing.T) {
	deps := newTestDeps(t, providertest.New())
	t.Setenv("DB_PASSWORD", "from-environment")

	out, err := run(t, newAuthCommand(deps), "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "DB_PASSWORD:")
	assert.Contains(t, out, "(active)")
	assert.NotContains(t, out, "from-environment")
}

func TestAuth_LoginVerifyFailureStoresNothing(t *testing.T) {
	deps := newTestDeps(t, providertest.New())

	_, err := run(t, newAuthCommand(deps), "wrong\n", "login", "--password-stdin")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoDatabase)

	store, err := deps.OpenStore()
	require.NoError(t, err)
	assert.False(t, store.Exists())
}

func TestAuth_LoginEmptyPassword(t *testing.T) {
	deps := newTestDeps(t, providertest.New())

	_, err := run(t, newAuthCommand(deps), "\n", "login", "--password-stdin", "--no-verify")
	assert.ErrorContains(t, err, "no password provided")
}
