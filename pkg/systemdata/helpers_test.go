package systemdata

import (
	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

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

func foodItemGroupRow(id, foodItemID, foodGroupID uuid.UUID, isPrimary bool) dataprovider.Record {
	return dataprovider.Record{
		"food_item_group_identifier": id,
		"food_item_identifier":       foodItemID,
		"food_group_identifier":      foodGroupID,
		"is_primary":                 isPrimary,
	}
}

func translationRow(id, of uuid.UUID, culture, value string) dataprovider.Record {
	return dataprovider.Record{
		"translation_identifier":      id,
		"of_identifier":               of,
		"value":                       value,
		"translation_info_identifier": uuid.New(),
		"culture_name":                culture,
	}
}

func dataProviderRow(id uuid.UUID, name string, handlesPayments bool) dataprovider.Record {
	return dataprovider.Record{
		"data_provider_identifier":         id,
		"name":                             name,
		"handles_payments":                 handlesPayments,
		"data_source_statement_identifier": uuid.New(),
	}
}

func argUUID(args []any, i int) uuid.UUID {
	if i >= len(args) {
		return uuid.Nil
	}
	id, _ := args[i].(uuid.UUID)
	return id
}

func testLogger() logging.Logger { return logging.NewNopLogger() }
