package systemdata

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

const (
	foodItemColumns = "fi.food_item_identifier, fi.is_active, pfig.food_group_identifier AS primary_food_group_identifier"
	foodItemFrom    = "FROM food_items AS fi LEFT JOIN food_item_groups AS pfig ON pfig.food_item_identifier = fi.food_item_identifier AND pfig.is_primary = TRUE"

	foodItemGroupColumns = "fig.food_item_group_identifier, fig.food_item_identifier, fig.food_group_identifier, fig.is_primary"
)

// FoodItem is a food item belonging to one or more food groups, one of
// which is primary.
type FoodItem struct {
	ID                 uuid.UUID
	IsActive           bool
	PrimaryFoodGroupID uuid.UUID

	translatable
	foreignKeyed
	dataProvider dataprovider.Provider

	primaryFoodGroup       *FoodGroup
	primaryFoodGroupLoaded bool
	foodGroups             []*FoodGroup
	foodGroupsLoaded       bool
}

// NewFoodItem creates an active in-memory food item with primary as its
// primary food group.
func NewFoodItem(id uuid.UUID, primary *FoodGroup) *FoodItem {
	fi := &FoodItem{ID: id, IsActive: true}
	if primary != nil {
		fi.PrimaryFoodGroupID = primary.ID
		fi.primaryFoodGroup = primary
		fi.primaryFoodGroupLoaded = true
		fi.foodGroups = []*FoodGroup{primary}
	}
	return fi
}

func newFoodItem() *FoodItem { return &FoodItem{} }

// PrimaryFoodGroup returns the primary food group, loading it on first access.
func (fi *FoodItem) PrimaryFoodGroup(ctx context.Context) (*FoodGroup, error) {
	if fi.primaryFoodGroupLoaded || fi.PrimaryFoodGroupID == uuid.Nil || fi.dataProvider == nil {
		return fi.primaryFoodGroup, nil
	}
	primary, err := dataprovider.Get(ctx, fi.dataProvider, &FoodGroup{ID: fi.PrimaryFoodGroupID})
	if err != nil {
		return nil, fmt.Errorf("failed to load primary food group: %w", err)
	}
	fi.primaryFoodGroup = primary
	fi.primaryFoodGroupLoaded = true
	return primary, nil
}

// SetPrimaryFoodGroup makes fg the primary food group, adding it to the
// food groups when missing.
func (fi *FoodItem) SetPrimaryFoodGroup(ctx context.Context, fg *FoodGroup) error {
	if fg == nil {
		return fmt.Errorf("food item %s needs a primary food group: %w", fi.ID, fwerrors.ErrValidation)
	}
	if _, err := fi.FoodGroups(ctx); err != nil {
		return err
	}
	fi.appendFoodGroup(fg)
	fi.PrimaryFoodGroupID = fg.ID
	fi.primaryFoodGroup = fg
	fi.primaryFoodGroupLoaded = true
	return nil
}

// FoodGroups returns every food group of the food item, loading them on
// first access.
func (fi *FoodItem) FoodGroups(ctx context.Context) ([]*FoodGroup, error) {
	if fi.foodGroupsLoaded || fi.dataProvider == nil || fi.ID == uuid.Nil {
		return fi.foodGroups, nil
	}
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+foodGroupColumns+" FROM food_groups AS fg JOIN food_item_groups AS fig ON fig.food_group_identifier = fg.food_group_identifier WHERE fig.food_item_identifier = @foodItemIdentifier ORDER BY fig.is_primary DESC, fg.food_group_identifier").
		AddIdentifierParameter("@foodItemIdentifier", fi.ID).
		Build()
	if err != nil {
		return nil, err
	}
	groups, err := dataprovider.GetCollection(ctx, fi.dataProvider, cmd, newFoodGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to get food groups: %w", err)
	}
	fi.foodGroups = groups
	fi.foodGroupsLoaded = true
	return groups, nil
}

// FoodGroupAdd adds fg to the food groups. The first food group added to a
// food item without a primary becomes its primary.
func (fi *FoodItem) FoodGroupAdd(ctx context.Context, fg *FoodGroup) error {
	if _, err := fi.FoodGroups(ctx); err != nil {
		return err
	}
	fi.appendFoodGroup(fg)
	if fi.PrimaryFoodGroupID == uuid.Nil {
		fi.PrimaryFoodGroupID = fg.ID
		fi.primaryFoodGroup = fg
		fi.primaryFoodGroupLoaded = true
	}
	return nil
}

// FoodGroupRemove removes fg from the food groups. Removing the primary
// food group makes the next remaining one primary.
func (fi *FoodItem) FoodGroupRemove(ctx context.Context, fg *FoodGroup) error {
	groups, err := fi.FoodGroups(ctx)
	if err != nil {
		return err
	}
	remaining := make([]*FoodGroup, 0, len(groups))
	for _, existing := range groups {
		if existing.ID != fg.ID {
			remaining = append(remaining, existing)
		}
	}
	fi.foodGroups = remaining

	if fi.PrimaryFoodGroupID != fg.ID {
		return nil
	}
	fi.PrimaryFoodGroupID = uuid.Nil
	fi.primaryFoodGroup = nil
	if len(remaining) > 0 {
		fi.PrimaryFoodGroupID = remaining[0].ID
		fi.primaryFoodGroup = remaining[0]
	}
	fi.primaryFoodGroupLoaded = true
	return nil
}

func (fi *FoodItem) appendFoodGroup(fg *FoodGroup) {
	for _, existing := range fi.foodGroups {
		if existing.ID == fg.ID {
			return
		}
	}
	fi.foodGroups = append(fi.foodGroups, fg)
}

// Translations returns the translated names of the food item.
func (fi *FoodItem) Translations(ctx context.Context) ([]*Translation, error) {
	return fi.loadTranslations(ctx, fi.dataProvider, fi.ID)
}

// TranslationAdd attaches a translated name, inserted when the food item is saved.
func (fi *FoodItem) TranslationAdd(translation *Translation) {
	translation.OfIdentifier = fi.ID
	fi.addTranslation(translation)
}

// TranslationSet names the food item in the culture of info. The name is
// written when the food item is saved.
func (fi *FoodItem) TranslationSet(ctx context.Context, info *TranslationInfo, name string) error {
	return fi.setTranslation(ctx, fi.dataProvider, fi.ID, info, name)
}

// Translate returns the name of the food item in the given culture.
func (fi *FoodItem) Translate(ctx context.Context, culture language.Tag) (*Translation, error) {
	return fi.translate(ctx, fi.dataProvider, fi.ID, culture)
}

// ForeignKeys returns the keys of the food item at external data providers.
func (fi *FoodItem) ForeignKeys(ctx context.Context) ([]*ForeignKey, error) {
	return fi.loadForeignKeys(ctx, fi.dataProvider, fi.ID)
}

// ForeignKeyAdd attaches a foreign key, inserted when the food item is saved.
func (fi *FoodItem) ForeignKeyAdd(key *ForeignKey) {
	key.ForeignKeyForID = fi.ID
	key.ForeignKeyForType = ForeignKeyForFoodItem
	fi.addForeignKey(key)
}

func (fi *FoodItem) UniqueID() string { return uniqueID("food_item", fi.ID) }

// Identifier returns the food item identifier.
func (fi *FoodItem) Identifier() uuid.UUID { return fi.ID }

func (fi *FoodItem) QueryForID() (dataprovider.Command, error) {
	if err := requireID("food item", fi.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"SELECT "+foodItemColumns+" "+foodItemFrom+" WHERE fi.food_item_identifier = @foodItemIdentifier").
		AddIdentifierParameter("@foodItemIdentifier", fi.ID).
		Build()
}

func (fi *FoodItem) InsertCommand() (dataprovider.Command, error) {
	if err := fi.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"INSERT INTO food_items (food_item_identifier, is_active) VALUES (@foodItemIdentifier, @isActive)").
		AddIdentifierParameter("@foodItemIdentifier", fi.ID).
		AddBitParameter("@isActive", fi.IsActive).
		Build()
}

func (fi *FoodItem) UpdateCommand() (dataprovider.Command, error) {
	if err := fi.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"UPDATE food_items SET is_active = @isActive WHERE food_item_identifier = @foodItemIdentifier").
		AddIdentifierParameter("@foodItemIdentifier", fi.ID).
		AddBitParameter("@isActive", fi.IsActive).
		Build()
}

func (fi *FoodItem) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("food item", fi.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"DELETE FROM food_items WHERE food_item_identifier = @foodItemIdentifier").
		AddIdentifierParameter("@foodItemIdentifier", fi.ID).
		Build()
}

func (fi *FoodItem) validate() error {
	if err := requireID("food item", fi.ID); err != nil {
		return err
	}
	if fi.PrimaryFoodGroupID == uuid.Nil {
		return fmt.Errorf("food item %s has no primary food group: %w", fi.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (fi *FoodItem) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if fi.ID, err = r.UUID("food_item_identifier"); err != nil {
		return err
	}
	if fi.IsActive, err = r.Bool("is_active"); err != nil {
		return err
	}
	primary, err := r.NullableUUID("primary_food_group_identifier")
	if err != nil {
		return err
	}
	fi.PrimaryFoodGroupID = uuid.Nil
	if primary != nil {
		fi.PrimaryFoodGroupID = *primary
	}

	fi.primaryFoodGroup, fi.primaryFoodGroupLoaded = nil, false
	fi.foodGroups, fi.foodGroupsLoaded = nil, false
	fi.resetTranslations()
	fi.resetForeignKeys()
	fi.dataProvider = handle(p)
	return nil
}

func (fi *FoodItem) MapRelations(context.Context, dataprovider.Provider) error { return nil }

// SaveRelations synchronises food_item_groups with the food groups and the
// primary food group, then inserts translations and foreign keys added in
// memory.
func (fi *FoodItem) SaveRelations(ctx context.Context, p dataprovider.Provider, inserting bool) error {
	groups, err := fi.FoodGroups(ctx)
	if err != nil {
		return err
	}
	target := make([]uuid.UUID, 0, len(groups)+1)
	target = append(target, fi.PrimaryFoodGroupID)
	for _, fg := range groups {
		target = append(target, fg.ID)
	}

	var existing []*FoodItemGroup
	if !inserting {
		if existing, err = FoodItemGroupsForFoodItem(ctx, p, fi.ID); err != nil {
			return err
		}
	}

	plan := planFoodItemGroups(fi.ID, existing, target, fi.PrimaryFoodGroupID)
	for _, link := range plan.remove {
		if err := dataprovider.Delete(ctx, p, link); err != nil {
			return fmt.Errorf("failed to delete food item link %s: %w", link.ID, err)
		}
	}
	for _, link := range append(plan.demote, plan.promote...) {
		if _, err := dataprovider.Save(ctx, p, link); err != nil {
			return fmt.Errorf("failed to update food item link %s: %w", link.ID, err)
		}
	}
	for _, link := range plan.insert {
		if _, err := dataprovider.Add(ctx, p, link); err != nil {
			return fmt.Errorf("failed to add food item link %s: %w", link.ID, err)
		}
	}

	if err := fi.savePendingTranslations(ctx, p, fi.ID); err != nil {
		return err
	}
	return fi.savePendingForeignKeys(ctx, p, fi.ID, ForeignKeyForFoodItem)
}

// DeleteRelations removes the food group links, translations and foreign keys.
func (fi *FoodItem) DeleteRelations(ctx context.Context, p dataprovider.Provider) error {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"DELETE FROM food_item_groups WHERE food_item_identifier = @foodItemIdentifier").
		AddIdentifierParameter("@foodItemIdentifier", fi.ID).
		Build()
	if err != nil {
		return err
	}
	if _, err := p.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("failed to delete food item links: %w", err)
	}
	if err := DeleteTranslationsFor(ctx, p, fi.ID); err != nil {
		return err
	}
	return DeleteForeignKeysFor(ctx, p, fi.ID)
}

// foodItemGroupPlan lists the link changes that bring food_item_groups in
// line with a food item. Demotions run before promotions so that at most
// one link is primary at any time.
type foodItemGroupPlan struct {
	remove  []*FoodItemGroup
	demote  []*FoodItemGroup
	promote []*FoodItemGroup
	insert  []*FoodItemGroup
}

func planFoodItemGroups(foodItemID uuid.UUID, existing []*FoodItemGroup, target []uuid.UUID, primary uuid.UUID) foodItemGroupPlan {
	missing, stale := dataprovider.DiffLinks(existing, func(link *FoodItemGroup) uuid.UUID {
		return link.FoodGroupID
	}, target)

	plan := foodItemGroupPlan{remove: stale}
	removed := make(map[*FoodItemGroup]bool, len(stale))
	for _, link := range stale {
		removed[link] = true
	}

	for _, link := range existing {
		if removed[link] {
			continue
		}
		isPrimary := link.FoodGroupID == primary
		switch {
		case link.IsPrimary && !isPrimary:
			link.IsPrimary = false
			plan.demote = append(plan.demote, link)
		case !link.IsPrimary && isPrimary:
			link.IsPrimary = true
			plan.promote = append(plan.promote, link)
		}
	}

	for _, foodGroupID := range missing {
		plan.insert = append(plan.insert, NewFoodItemGroup(foodItemID, foodGroupID, foodGroupID == primary))
	}
	return plan
}

// ==================== FoodItemGroup ====================

// FoodItemGroup links a food item to one of its food groups.
type FoodItemGroup struct {
	ID          uuid.UUID
	FoodItemID  uuid.UUID
	FoodGroupID uuid.UUID
	IsPrimary   bool

	dataProvider dataprovider.Provider

	foodGroup       *FoodGroup
	foodGroupLoaded bool
	foodItem        *FoodItem
	foodItemLoaded  bool
}

// NewFoodItemGroup creates an in-memory link with a fresh identifier.
func NewFoodItemGroup(foodItemID, foodGroupID uuid.UUID, isPrimary bool) *FoodItemGroup {
	return &FoodItemGroup{
		ID:          uuid.New(),
		FoodItemID:  foodItemID,
		FoodGroupID: foodGroupID,
		IsPrimary:   isPrimary,
	}
}

func newFoodItemGroup() *FoodItemGroup { return &FoodItemGroup{} }

// FoodGroup returns the linked food group, loading it on first access.
func (fig *FoodItemGroup) FoodGroup(ctx context.Context) (*FoodGroup, error) {
	if fig.foodGroupLoaded || fig.dataProvider == nil || fig.FoodGroupID == uuid.Nil {
		return fig.foodGroup, nil
	}
	fg, err := dataprovider.Get(ctx, fig.dataProvider, &FoodGroup{ID: fig.FoodGroupID})
	if err != nil {
		return nil, fmt.Errorf("failed to load food group: %w", err)
	}
	fig.foodGroup = fg
	fig.foodGroupLoaded = true
	return fg, nil
}

// FoodItem returns the linked food item, loading it on first access.
func (fig *FoodItemGroup) FoodItem(ctx context.Context) (*FoodItem, error) {
	if fig.foodItemLoaded || fig.dataProvider == nil || fig.FoodItemID == uuid.Nil {
		return fig.foodItem, nil
	}
	fi, err := dataprovider.Get(ctx, fig.dataProvider, &FoodItem{ID: fig.FoodItemID})
	if err != nil {
		return nil, fmt.Errorf("failed to load food item: %w", err)
	}
	fig.foodItem = fi
	fig.foodItemLoaded = true
	return fi, nil
}

func (fig *FoodItemGroup) UniqueID() string { return uniqueID("food_item_group", fig.ID) }

func (fig *FoodItemGroup) QueryForID() (dataprovider.Command, error) {
	if err := requireID("food item group", fig.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"SELECT "+foodItemGroupColumns+" FROM food_item_groups AS fig WHERE fig.food_item_group_identifier = @foodItemGroupIdentifier").
		AddIdentifierParameter("@foodItemGroupIdentifier", fig.ID).
		Build()
}

func (fig *FoodItemGroup) InsertCommand() (dataprovider.Command, error) {
	if err := fig.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return fig.writeCommand(
		"INSERT INTO food_item_groups (food_item_group_identifier, food_item_identifier, food_group_identifier, is_primary) VALUES (@foodItemGroupIdentifier, @foodItemIdentifier, @foodGroupIdentifier, @isPrimary)")
}

func (fig *FoodItemGroup) UpdateCommand() (dataprovider.Command, error) {
	if err := fig.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return fig.writeCommand(
		"UPDATE food_item_groups SET food_item_identifier = @foodItemIdentifier, food_group_identifier = @foodGroupIdentifier, is_primary = @isPrimary WHERE food_item_group_identifier = @foodItemGroupIdentifier")
}

func (fig *FoodItemGroup) writeCommand(sql string) (dataprovider.Command, error) {
	return dataprovider.NewSystemCommandBuilder(sql).
		AddIdentifierParameter("@foodItemGroupIdentifier", fig.ID).
		AddIdentifierParameter("@foodItemIdentifier", fig.FoodItemID).
		AddIdentifierParameter("@foodGroupIdentifier", fig.FoodGroupID).
		AddBitParameter("@isPrimary", fig.IsPrimary).
		Build()
}

func (fig *FoodItemGroup) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("food item group", fig.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"DELETE FROM food_item_groups WHERE food_item_group_identifier = @foodItemGroupIdentifier").
		AddIdentifierParameter("@foodItemGroupIdentifier", fig.ID).
		Build()
}

func (fig *FoodItemGroup) validate() error {
	if err := requireID("food item group", fig.ID); err != nil {
		return err
	}
	if fig.FoodItemID == uuid.Nil || fig.FoodGroupID == uuid.Nil {
		return fmt.Errorf("food item group %s must link a food item and a food group: %w", fig.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (fig *FoodItemGroup) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if fig.ID, err = r.UUID("food_item_group_identifier"); err != nil {
		return err
	}
	if fig.FoodItemID, err = r.UUID("food_item_identifier"); err != nil {
		return err
	}
	if fig.FoodGroupID, err = r.UUID("food_group_identifier"); err != nil {
		return err
	}
	if fig.IsPrimary, err = r.Bool("is_primary"); err != nil {
		return err
	}
	fig.foodGroup, fig.foodGroupLoaded = nil, false
	fig.foodItem, fig.foodItemLoaded = nil, false
	fig.dataProvider = handle(p)
	return nil
}

func (fig *FoodItemGroup) MapRelations(context.Context, dataprovider.Provider) error { return nil }

func (fig *FoodItemGroup) SaveRelations(context.Context, dataprovider.Provider, bool) error {
	return nil
}

func (fig *FoodItemGroup) DeleteRelations(context.Context, dataprovider.Provider) error { return nil }

// FoodItemGroupsForFoodItem returns the food group links of a food item.
func FoodItemGroupsForFoodItem(ctx context.Context, p dataprovider.Provider, foodItemID uuid.UUID) ([]*FoodItemGroup, error) {
	return foodItemGroupsWhere(ctx, p, "fig.food_item_identifier = @identifier", foodItemID)
}

// FoodItemGroupsForFoodGroup returns the food item links of a food group.
func FoodItemGroupsForFoodGroup(ctx context.Context, p dataprovider.Provider, foodGroupID uuid.UUID) ([]*FoodItemGroup, error) {
	return foodItemGroupsWhere(ctx, p, "fig.food_group_identifier = @identifier", foodGroupID)
}

func foodItemGroupsWhere(ctx context.Context, p dataprovider.Provider, where string, id uuid.UUID) ([]*FoodItemGroup, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+foodItemGroupColumns+" FROM food_item_groups AS fig WHERE "+where+" ORDER BY fig.is_primary DESC, fig.food_item_group_identifier").
		AddIdentifierParameter("@identifier", id).
		Build()
	if err != nil {
		return nil, err
	}
	links, err := dataprovider.GetCollection(ctx, p, cmd, newFoodItemGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to get food item links: %w", err)
	}
	return links, nil
}

// promotePrimaryFoodItemGroup makes the first remaining link of a food item
// primary when none of its links is.
func promotePrimaryFoodItemGroup(ctx context.Context, p dataprovider.Provider, foodItemID uuid.UUID) error {
	links, err := FoodItemGroupsForFoodItem(ctx, p, foodItemID)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	for _, link := range links {
		if link.IsPrimary {
			return nil
		}
	}
	links[0].IsPrimary = true
	if _, err := dataprovider.Save(ctx, p, links[0]); err != nil {
		return fmt.Errorf("failed to promote food item link %s: %w", links[0].ID, err)
	}
	return nil
}
