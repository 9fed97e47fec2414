package systemdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

const foodGroupColumns = "fg.food_group_identifier, fg.parent_identifier, fg.is_active"

var errFoodGroupCycle = fmt.Errorf("food group tree loops: %w", fwerrors.ErrInvalidState)

// FoodGroup is a node in the food group tree.
type FoodGroup struct {
	ID       uuid.UUID
	ParentID *uuid.UUID
	IsActive bool

	translatable
	foreignKeyed
	dataProvider dataprovider.Provider

	parent         *FoodGroup
	parentLoaded   bool
	children       []*FoodGroup
	childrenLoaded bool
}

// NewFoodGroup creates an active in-memory food group.
func NewFoodGroup(id uuid.UUID) *FoodGroup {
	return &FoodGroup{ID: id, IsActive: true}
}

func newFoodGroup() *FoodGroup { return &FoodGroup{} }

// IsRoot reports whether the food group has no parent.
func (fg *FoodGroup) IsRoot() bool { return fg.ParentID == nil }

// Parent returns the parent food group, loading it on first access.
func (fg *FoodGroup) Parent(ctx context.Context) (*FoodGroup, error) {
	if fg.parentLoaded || fg.ParentID == nil || fg.dataProvider == nil {
		return fg.parent, nil
	}
	parent, err := dataprovider.Get(ctx, fg.dataProvider, &FoodGroup{ID: *fg.ParentID})
	if err != nil {
		return nil, fmt.Errorf("failed to load parent food group: %w", err)
	}
	fg.parent = parent
	fg.parentLoaded = true
	return parent, nil
}

// SetParent moves the food group below parent. A nil parent makes it a root.
func (fg *FoodGroup) SetParent(parent *FoodGroup) {
	fg.parent = parent
	fg.parentLoaded = true
	if parent == nil {
		fg.ParentID = nil
		return
	}
	id := parent.ID
	fg.ParentID = &id
}

// HasAncestor reports whether id is the parent of the food group or one of
// the parent's ancestors. A parent chain that loops fails with ErrInvalidState.
func (fg *FoodGroup) HasAncestor(ctx context.Context, id uuid.UUID) (bool, error) {
	seen := map[uuid.UUID]bool{fg.ID: true}
	current := fg
	for {
		parent, err := current.Parent(ctx)
		if err != nil {
			return false, err
		}
		if parent == nil {
			return false, nil
		}
		if parent.ID == id {
			return true, nil
		}
		if seen[parent.ID] {
			return false, fmt.Errorf("food group %s is its own ancestor: %w", parent.ID, fwerrors.ErrInvalidState)
		}
		seen[parent.ID] = true
		current = parent
	}
}

// Children returns the direct children, loading them on first access.
func (fg *FoodGroup) Children(ctx context.Context) ([]*FoodGroup, error) {
	if fg.childrenLoaded || fg.dataProvider == nil || fg.ID == uuid.Nil {
		return fg.children, nil
	}
	children, err := foodGroupsByParent(ctx, fg.dataProvider, fg.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		child.parent = fg
		child.parentLoaded = true
	}
	fg.children = children
	fg.childrenLoaded = true
	return fg.children, nil
}

// ChildAdd places child below the food group.
func (fg *FoodGroup) ChildAdd(ctx context.Context, child *FoodGroup) error {
	children, err := fg.Children(ctx)
	if err != nil {
		return err
	}
	child.SetParent(fg)
	for _, existing := range children {
		if existing.ID == child.ID {
			return nil
		}
	}
	fg.children = append(fg.children, child)
	return nil
}

// Translations returns the translated names of the food group.
func (fg *FoodGroup) Translations(ctx context.Context) ([]*Translation, error) {
	return fg.loadTranslations(ctx, fg.dataProvider, fg.ID)
}

// TranslationAdd attaches a translated name, inserted when the food group is saved.
func (fg *FoodGroup) TranslationAdd(translation *Translation) {
	translation.OfIdentifier = fg.ID
	fg.addTranslation(translation)
}

// TranslationSet names the food group in the culture of info. The name is
// written when the food group is saved.
func (fg *FoodGroup) TranslationSet(ctx context.Context, info *TranslationInfo, name string) error {
	return fg.setTranslation(ctx, fg.dataProvider, fg.ID, info, name)
}

// Translate returns the name of the food group in the given culture.
func (fg *FoodGroup) Translate(ctx context.Context, culture language.Tag) (*Translation, error) {
	return fg.translate(ctx, fg.dataProvider, fg.ID, culture)
}

// ForeignKeys returns the keys of the food group at external data providers.
func (fg *FoodGroup) ForeignKeys(ctx context.Context) ([]*ForeignKey, error) {
	return fg.loadForeignKeys(ctx, fg.dataProvider, fg.ID)
}

// ForeignKeyAdd attaches a foreign key, inserted when the food group is saved.
func (fg *FoodGroup) ForeignKeyAdd(key *ForeignKey) {
	key.ForeignKeyForID = fg.ID
	key.ForeignKeyForType = ForeignKeyForFoodGroup
	fg.addForeignKey(key)
}

func (fg *FoodGroup) UniqueID() string { return uniqueID("food_group", fg.ID) }

// Identifier returns the food group identifier.
func (fg *FoodGroup) Identifier() uuid.UUID { return fg.ID }

func (fg *FoodGroup) QueryForID() (dataprovider.Command, error) {
	if err := requireID("food group", fg.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"SELECT "+foodGroupColumns+" FROM food_groups AS fg WHERE fg.food_group_identifier = @foodGroupIdentifier").
		AddIdentifierParameter("@foodGroupIdentifier", fg.ID).
		Build()
}

func (fg *FoodGroup) InsertCommand() (dataprovider.Command, error) {
	if err := fg.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return fg.writeCommand(
		"INSERT INTO food_groups (food_group_identifier, parent_identifier, is_active) VALUES (@foodGroupIdentifier, @parentIdentifier, @isActive)")
}

func (fg *FoodGroup) UpdateCommand() (dataprovider.Command, error) {
	if err := fg.validate(); err != nil {
		return dataprovider.Command{}, err
	}
	return fg.writeCommand(
		"UPDATE food_groups SET parent_identifier = @parentIdentifier, is_active = @isActive WHERE food_group_identifier = @foodGroupIdentifier")
}

func (fg *FoodGroup) writeCommand(sql string) (dataprovider.Command, error) {
	return dataprovider.NewSystemCommandBuilder(sql).
		AddIdentifierParameter("@foodGroupIdentifier", fg.ID).
		AddNullableIdentifierParameter("@parentIdentifier", fg.ParentID).
		AddBitParameter("@isActive", fg.IsActive).
		Build()
}

func (fg *FoodGroup) DeleteCommand() (dataprovider.Command, error) {
	if err := requireID("food group", fg.ID); err != nil {
		return dataprovider.Command{}, err
	}
	return dataprovider.NewSystemCommandBuilder(
		"DELETE FROM food_groups WHERE food_group_identifier = @foodGroupIdentifier").
		AddIdentifierParameter("@foodGroupIdentifier", fg.ID).
		Build()
}

func (fg *FoodGroup) validate() error {
	if err := requireID("food group", fg.ID); err != nil {
		return err
	}
	if fg.ParentID != nil && *fg.ParentID == fg.ID {
		return fmt.Errorf("food group %s cannot be its own parent: %w", fg.ID, fwerrors.ErrValidation)
	}
	return nil
}

func (fg *FoodGroup) MapData(r dataprovider.Reader, p dataprovider.Provider) error {
	var err error
	if fg.ID, err = r.UUID("food_group_identifier"); err != nil {
		return err
	}
	if fg.ParentID, err = r.NullableUUID("parent_identifier"); err != nil {
		return err
	}
	if fg.IsActive, err = r.Bool("is_active"); err != nil {
		return err
	}

	fg.parent, fg.parentLoaded = nil, false
	fg.children, fg.childrenLoaded = nil, false
	fg.resetTranslations()
	fg.resetForeignKeys()
	fg.dataProvider = handle(p)
	return nil
}

func (fg *FoodGroup) MapRelations(context.Context, dataprovider.Provider) error { return nil }

// SaveRelations inserts translations and foreign keys added in memory.
// Children own their parent reference and are saved on their own.
func (fg *FoodGroup) SaveRelations(ctx context.Context, p dataprovider.Provider, _ bool) error {
	if err := fg.savePendingTranslations(ctx, p, fg.ID); err != nil {
		return err
	}
	return fg.savePendingForeignKeys(ctx, p, fg.ID, ForeignKeyForFoodGroup)
}

// deletingKey marks the food groups of one delete cascade in the context.
type deletingKey struct{}

// DeleteRelations deletes the children recursively, then the food item links,
// promoting another link to primary for food items that lost their primary
// group, then the translations and foreign keys. A child already being
// deleted higher up the cascade means the tree loops and fails with
// ErrInvalidState.
func (fg *FoodGroup) DeleteRelations(ctx context.Context, p dataprovider.Provider) error {
	deleting, _ := ctx.Value(deletingKey{}).(map[uuid.UUID]bool)
	if deleting == nil {
		deleting = make(map[uuid.UUID]bool)
		ctx = context.WithValue(ctx, deletingKey{}, deleting)
	}
	deleting[fg.ID] = true

	children, err := foodGroupsByParent(ctx, p, fg.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if deleting[child.ID] {
			return fmt.Errorf("food group %s is its own ancestor: %w", child.ID, errFoodGroupCycle)
		}
		if err := dataprovider.Delete(ctx, p, child); err != nil {
			if errors.Is(err, errFoodGroupCycle) {
				return err
			}
			return fmt.Errorf("failed to delete child food group %s: %w", child.ID, err)
		}
	}

	links, err := FoodItemGroupsForFoodGroup(ctx, p, fg.ID)
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := dataprovider.Delete(ctx, p, link); err != nil {
			return fmt.Errorf("failed to delete food item link %s: %w", link.ID, err)
		}
		if !link.IsPrimary {
			continue
		}
		if err := promotePrimaryFoodItemGroup(ctx, p, link.FoodItemID); err != nil {
			return err
		}
	}

	if err := DeleteTranslationsFor(ctx, p, fg.ID); err != nil {
		return err
	}
	return DeleteForeignKeysFor(ctx, p, fg.ID)
}

func foodGroupsByParent(ctx context.Context, p dataprovider.Provider, parentID uuid.UUID) ([]*FoodGroup, error) {
	cmd, err := dataprovider.NewSystemCommandBuilder(
		"SELECT "+foodGroupColumns+" FROM food_groups AS fg WHERE fg.parent_identifier = @parentIdentifier ORDER BY fg.food_group_identifier").
		AddIdentifierParameter("@parentIdentifier", parentID).
		Build()
	if err != nil {
		return nil, err
	}
	children, err := dataprovider.GetCollection(ctx, p, cmd, newFoodGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to get child food groups: %w", err)
	}
	return children, nil
}
