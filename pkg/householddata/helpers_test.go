package householddata

import (
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() logging.Logger { return logging.NewNopLogger() }

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
		"membership":                   int16(MembershipBasic),
		"membership_expire_time":       nil,
		"activation_code":              "CODE",
		"activation_time":              testNow,
		"privacy_policy_accepted_time": testNow,
		"creation_time":                testNow,
	}
}

func membershipRow(id, memberID, householdID uuid.UUID) dataprovider.Record {
	return dataprovider.Record{
		"member_of_household_identifier": id,
		"household_member_identifier":    memberID,
		"household_identifier":           householdID,
		"creation_time":                  testNow,
	}
}

func argUUID(args []any, i int) uuid.UUID {
	if i >= len(args) {
		return uuid.Nil
	}
	id, _ := args[i].(uuid.UUID)
	return id
}
