package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/foodwaste-data/config"
	"github.com/otherjamesbrown/foodwaste-data/credentials"
	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider/providertest"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

var (
	testNow         = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	errNoDatabase   = errors.New("no database in tests")
	testMailAddress = "jane@example.com"
)

// newTestDeps returns dependencies that serve sessions over fake and keep
// credentials in a temporary directory.
func newTestDeps(t *testing.T, fake *providertest.Fake) *Deps {
	t.Helper()
	resetFlags(t)

	dir := t.TempDir()
	t.Setenv("FWDATA_CONFIG_DIR", dir)
	t.Setenv(credentials.EnvEncryptionKey, testEncryptionKey)
	t.Setenv(EnvMailAddress, "")
	t.Setenv("DB_PASSWORD", "")

	return &Deps{
		LoadConfig: func() (*config.CLIConfig, error) {
			return config.DefaultConfig(), nil
		},
		OpenSession: func(ctx context.Context, cfg *config.CLIConfig) (*Session, error) {
			return NewSession(cfg, logging.NewNopLogger(), fake, nil), nil
		},
		ConnectToDB: func(context.Context, *config.CLIConfig) (*pgxpool.Pool, error) {
			return nil, errNoDatabase
		},
		OpenStore: func() (*credentials.Store, error) {
			return credentials.NewStoreWithKeyProvider(credentials.NewEnvKeyProvider(credentials.EnvEncryptionKey))
		},
		Now: func() time.Time { return testNow },
	}
}

// resetFlags clears the package level flag variables shared by commands.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		Global = GlobalFlags{}
		dbDryRun, dbYes, dbTarget, dbOutput, dbMigrationDir = false, false, "", "", ""
		householdAs, householdName, householdDescription, householdYes = "", "", "", false
		memberAs, memberYes, memberProvider, memberReference, memberReceiptFile, memberPaidAt = "", false, "", "", "", ""
		foodCulture, foodProvider, foodName, foodParentKey, foodPrimaryKey = "", "", "", "", ""
		foodGroupKeys, foodInactive, foodShowItems, foodGroupFilter = nil, false, false, ""
		authPasswordStdin, authNoVerify = false, false
		serveListen = ":9187"
	}
	reset()
	t.Cleanup(reset)
}

// run executes c with args and returns what it wrote.
func run(t *testing.T, c *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetIn(strings.NewReader(stdin))
	c.SetArgs(args)
	err := c.ExecuteContext(context.Background())
	return out.String(), err
}

func argUUID(args []any, i int) uuid.UUID {
	if i >= len(args) {
		return uuid.Nil
	}
	id, _ := args[i].(uuid.UUID)
	return id
}

func householdRow(id uuid.UUID, name string) dataprovider.Record {
	return dataprovider.Record{
		"household_identifier": id,
		"name":                 name,
		"description":          nil,
		"creation_time":        testNow,
	}
}

func memberRow(id uuid.UUID, mailAddress string) dataprovider.Record {
	return dataprovider.Record{
		"household_member_identifier":  id,
		"mail_address":                 mailAddress,
		"membership":                   int16(1),
		"membership_expire_time":       nil,
		"activation_code":              "CODE",
		"activation_time":              testNow,
		"privacy_policy_accepted_time": testNow,
		"creation_time":                testNow,
	}
}

func foodGroupRow(id uuid.UUID, parent *uuid.UUID) dataprovider.Record {
	var parentValue any
	if parent != nil {
		parentValue = *parent
	}
	return dataprovider.Record{
		"food_group_identifier": id,
		"parent_identifier":     parentValue,
		"is_active":             true,
	}
}

func foodItemRow(id, primary uuid.UUID) dataprovider.Record {
	return dataprovider.Record{
		"food_item_identifier":          id,
		"is_active":                     true,
		"primary_food_group_identifier": primary,
	}
}

func translationRow(of uuid.UUID, culture, value string) dataprovider.Record {
	return dataprovider.Record{
		"translation_identifier":      uuid.New(),
		"of_identifier":               of,
		"value":                       value,
		"translation_info_identifier": uuid.New(),
		"culture_name":                culture,
	}
}

// onTranslations answers translation lookups from names keyed by owner.
func onTranslations(fake *providertest.Fake, names map[uuid.UUID][]dataprovider.Record) {
	fake.OnQuery("WHERE t.of_identifier", func(args []any) ([]dataprovider.Record, error) {
		return names[argUUID(args, 0)], nil
	})
}

func requireExecuted(t *testing.T, fake *providertest.Fake, fragment string) {
	t.Helper()
	require.NotEmpty(t, fake.Executed(fragment), "expected a command containing %q", fragment)
}
