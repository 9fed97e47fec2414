package systemdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

// Repository provides access to food-waste system data.
type Repository struct {
	provider dataprovider.Provider
	logger   logging.Logger
}

// NewRepository creates a new system data repository.
func NewRepository(provider dataprovider.Provider, logger logging.Logger) *Repository {
	return &Repository{
		provider: provider,
		logger:   logger.With(logging.F("component", "system_data_repository")),
	}
}

// Provider returns the underlying data provider.
func (r *Repository) Provider() dataprovider.Provider {
	return r.provider
}

// ==================== Translation infos ====================

// TranslationInfoGetAll returns every translation info ordered by culture name.
func (r *Repository) TranslationInfoGetAll(ctx context.Context) ([]*TranslationInfo, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT " + translationInfoColumns + " FROM translation_infos AS ti ORDER BY ti.culture_name").
		Build()
	if err != nil {
		return nil, err
	}
	infos, err := dataprovider.GetCollection(ctx, r.provider, cmd, func() *TranslationInfo { return &TranslationInfo{} })
	if err != nil {
		return nil, fmt.Errorf("failed to get translation infos: %w", err)
	}
	return infos, nil
}

// TranslationInfoGet returns a translation info by identifier.
func (r *Repository) TranslationInfoGet(ctx context.Context, id uuid.UUID) (*TranslationInfo, error) {
	return dataprovider.Get(ctx, r.provider, &TranslationInfo{ID: id})
}

// TranslationInfoGetByCulture returns the translation info for a culture name.
func (r *Repository) TranslationInfoGetByCulture(ctx context.Context, cultureName string) (*TranslationInfo, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+translationInfoColumns+" FROM translation_infos AS ti WHERE LOWER(ti.culture_name) = @cultureName").
		AddVarCharParameter("@cultureName", strings.ToLower(cultureName), cultureNameSize, false).
		Build()
	if err != nil {
		return nil, err
	}
	return first(ctx, r.provider, cmd, func() *TranslationInfo { return &TranslationInfo{} }, "translation info "+cultureName)
}

// ==================== Data providers ====================

// DataProviderGet returns a data provider by identifier.
func (r *Repository) DataProviderGet(ctx context.Context, id uuid.UUID) (*DataProvider, error) {
	return dataprovider.Get(ctx, r.provider, &DataProvider{ID: id})
}

// DataProviderGetAll returns every data provider ordered by name.
func (r *Repository) DataProviderGetAll(ctx context.Context) ([]*DataProvider, error) {
	return r.dataProvidersWhere(ctx, "", false)
}

// DataProviderForPaymentsGetAll returns the data providers which handle payments.
func (r *Repository) DataProviderForPaymentsGetAll(ctx context.Context) ([]*DataProvider, error) {
	return r.dataProvidersWhere(ctx, "WHERE dp.handles_payments = @handlesPayments ", true)
}

func (r *Repository) dataProvidersWhere(ctx context.Context, where string, handlesPayments bool) ([]*DataProvider, error) {
	b := dataprovider.NewSystemCommandBuilder(
		"SELECT " + dataProviderColumns + " FROM data_providers AS dp " + where + "ORDER BY dp.name")
	if where != "" {
		b.AddBitParameter("@handlesPayments", handlesPayments)
	}
	cmd, err := b.Build()
	if err != nil {
		return nil, err
	}
	providers, err := dataprovider.GetCollection(ctx, r.provider, cmd, func() *DataProvider { return &DataProvider{} })
	if err != nil {
		return nil, fmt.Errorf("failed to get data providers: %w", err)
	}
	return providers, nil
}

// DataProviderGetByName returns the data provider with the given name.
func (r *Repository) DataProviderGetByName(ctx context.Context, name string) (*DataProvider, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+dataProviderColumns+" FROM data_providers AS dp WHERE dp.name = @name").
		AddVarCharParameter("@name", name, dataProviderNameSize, false).
		Build()
	if err != nil {
		return nil, err
	}
	return first(ctx, r.provider, cmd, func() *DataProvider { return &DataProvider{} }, "data provider "+name)
}

// ==================== Food groups ====================

// FoodGroupGet returns a food group by identifier.
func (r *Repository) FoodGroupGet(ctx context.Context, id uuid.UUID) (*FoodGroup, error) {
	return dataprovider.Get(ctx, r.provider, &FoodGroup{ID: id})
}

// FoodGroupGetAll returns every food group.
func (r *Repository) FoodGroupGetAll(ctx context.Context) ([]*FoodGroup, error) {
	return r.foodGroups(ctx, "SELECT "+foodGroupColumns+" FROM food_groups AS fg ORDER BY fg.food_group_identifier")
}

// FoodGroupGetAllOnRoot returns the food groups without a parent.
func (r *Repository) FoodGroupGetAllOnRoot(ctx context.Context) ([]*FoodGroup, error) {
	return r.foodGroups(ctx, "SELECT "+foodGroupColumns+" FROM food_groups AS fg WHERE fg.parent_identifier IS NULL ORDER BY fg.food_group_identifier")
}

func (r *Repository) foodGroups(ctx context.Context, sql string) ([]*FoodGroup, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(sql).Build()
	if err != nil {
		return nil, err
	}
	groups, err := dataprovider.GetCollection(ctx, r.provider, cmd, newFoodGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to get food groups: %w", err)
	}
	return groups, nil
}

// FoodGroupGetByForeignKey returns the food group a data provider knows by key.
func (r *Repository) FoodGroupGetByForeignKey(ctx context.Context, dp *DataProvider, key string) (*FoodGroup, error) {
	cmd, err := byForeignKey(
		"SELECT "+foodGroupColumns+" FROM food_groups AS fg JOIN foreign_keys AS fk ON fk.foreign_key_for_identifier = fg.food_group_identifier",
		dp, ForeignKeyForFoodGroup, key)
	if err != nil {
		return nil, err
	}
	return first(ctx, r.provider, cmd, newFoodGroup, "food group with foreign key "+key)
}

// ==================== Food items ====================

// FoodItemGet returns a food item by identifier.
func (r *Repository) FoodItemGet(ctx context.Context, id uuid.UUID) (*FoodItem, error) {
	return dataprovider.Get(ctx, r.provider, &FoodItem{ID: id})
}

// FoodItemGetAll returns every food item.
func (r *Repository) FoodItemGetAll(ctx context.Context) ([]*FoodItem, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT " + foodItemColumns + " " + foodItemFrom + " ORDER BY fi.food_item_identifier").
		Build()
	if err != nil {
		return nil, err
	}
	return r.foodItems(ctx, cmd)
}

// FoodItemGetAllForFoodGroup returns the food items belonging to a food group.
func (r *Repository) FoodItemGetAllForFoodGroup(ctx context.Context, foodGroupID uuid.UUID) ([]*FoodItem, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+foodItemColumns+" "+foodItemFrom+" WHERE EXISTS (SELECT 1 FROM food_item_groups AS fig WHERE fig.food_item_identifier = fi.food_item_identifier AND fig.food_group_identifier = @foodGroupIdentifier) ORDER BY fi.food_item_identifier").
		AddIdentifierParameter("@foodGroupIdentifier", foodGroupID).
		Build()
	if err != nil {
		return nil, err
	}
	return r.foodItems(ctx, cmd)
}

func (r *Repository) foodItems(ctx context.Context, cmd dataprovider.Command) ([]*FoodItem, error) {
	items, err := dataprovider.GetCollection(ctx, r.provider, cmd, newFoodItem)
	if err != nil {
		return nil, fmt.Errorf("failed to get food items: %w", err)
	}
	return items, nil
}

// FoodItemGetByForeignKey returns the food item a data provider knows by key.
func (r *Repository) FoodItemGetByForeignKey(ctx context.Context, dp *DataProvider, key string) (*FoodItem, error) {
	cmd, err := byForeignKey(
		"SELECT "+foodItemColumns+" "+foodItemFrom+" JOIN foreign_keys AS fk ON fk.foreign_key_for_identifier = fi.food_item_identifier",
		dp, ForeignKeyForFoodItem, key)
	if err != nil {
		return nil, err
	}
	return first(ctx, r.provider, cmd, newFoodItem, "food item with foreign key "+key)
}

// ==================== Translations and foreign keys ====================

// TranslationsForIdentifier returns the translations attached to an identifier.
func (r *Repository) TranslationsForIdentifier(ctx context.Context, id uuid.UUID) ([]*Translation, error) {
	return TranslationsFor(ctx, r.provider, id)
}

// ForeignKeysForIdentifier returns the foreign keys attached to an identifier.
func (r *Repository) ForeignKeysForIdentifier(ctx context.Context, id uuid.UUID) ([]*ForeignKey, error) {
	return ForeignKeysFor(ctx, r.provider, id)
}

// ==================== Writes ====================

// Insert adds proxy and its relations.
func (r *Repository) Insert(ctx context.Context, proxy dataprovider.DataProxy) error {
	if _, err := dataprovider.Add(ctx, r.provider, proxy); err != nil {
		return err
	}
	r.logger.Debug("System data inserted", logging.F("proxy", proxy.UniqueID()))
	return nil
}

// Update saves proxy and its relations.
func (r *Repository) Update(ctx context.Context, proxy dataprovider.DataProxy) error {
	if _, err := dataprovider.Save(ctx, r.provider, proxy); err != nil {
		return err
	}
	r.logger.Debug("System data updated", logging.F("proxy", proxy.UniqueID()))
	return nil
}

// Delete removes proxy and everything depending on it.
func (r *Repository) Delete(ctx context.Context, proxy dataprovider.DataProxy) error {
	if err := dataprovider.Delete(ctx, r.provider, proxy); err != nil {
		return err
	}
	r.logger.Info("System data deleted", logging.F("proxy", proxy.UniqueID()))
	return nil
}

func byForeignKey(selectFrom string, dp *DataProvider, forType, key string) (dataprovider.Command, error) {
	if dp == nil {
		return dataprovider.Command{}, fmt.Errorf("foreign key lookup needs a data provider: %w", fwerrors.ErrValidation)
	}
	return dataprovider.NewSystemCommandBuilder(
		selectFrom+" WHERE fk.data_provider_identifier = @dataProviderIdentifier AND fk.foreign_key_for_type = @foreignKeyForType AND fk.foreign_key_value = @foreignKeyValue").
		AddIdentifierParameter("@dataProviderIdentifier", dp.ID).
		AddVarCharParameter("@foreignKeyForType", forType, foreignKeyTypeSize, false).
		AddVarCharParameter("@foreignKeyValue", key, foreignKeyValueSize, false).
		Build()
}

// first returns the first proxy mapped from cmd, or ErrNotFound.
func first[T dataprovider.DataProxy](ctx context.Context, p dataprovider.Provider, cmd dataprovider.Command, create func() T, what string) (T, error) {
	var zero T
	found, err := dataprovider.GetCollection(ctx, p, cmd, create)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s: %w", what, err)
	}
	if len(found) == 0 {
		return zero, fmt.Errorf("%s: %w", what, fwerrors.ErrNotFound)
	}
	return found[0], nil
}
