package systemdata

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider/providertest"
	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

func TestFoodGroup_Commands(t *testing.T) {
	t.Run("query without identifier", func(t *testing.T) {
		_, err := (&FoodGroup{}).QueryForID()
		assert.ErrorIs(t, err, fwerrors.ErrNoIdentifier)
	})

	t.Run("insert binds parent as null on root", func(t *testing.T) {
		id := uuid.New()
		cmd, err := NewFoodGroup(id).InsertCommand()
		require.NoError(t, err)
		assert.Equal(t, []any{id, nil, true}, cmd.Args)
		assert.Contains(t, cmd.SQL, "VALUES ($1, $2, $3)")
	})

	t.Run("own parent is rejected", func(t *testing.T) {
		fg := NewFoodGroup(uuid.New())
		fg.SetParent(fg)
		_, err := fg.UpdateCommand()
		assert.True(t, fwerrors.IsValidation(err))
	})
}

func TestFoodGroup_LazyRelations(t *testing.T) {
	ctx := context.Background()
	rootID, childID := uuid.New(), uuid.New()

	fake := providertest.New().
		OnQuery("FROM food_groups AS fg WHERE fg.food_group_identifier", func(args []any) ([]dataprovider.Record, error) {
			if argUUID(args, 0) == rootID {
				return []dataprovider.Record{foodGroupRow(rootID, nil)}, nil
			}
			return []dataprovider.Record{foodGroupRow(childID, &rootID)}, nil
		}).
		OnQuery("WHERE fg.parent_identifier = ", func(args []any) ([]dataprovider.Record, error) {
			if argUUID(args, 0) == rootID {
				return []dataprovider.Record{foodGroupRow(childID, &rootID)}, nil
			}
			return nil, nil
		})

	root, err := dataprovider.Get(ctx, fake, &FoodGroup{ID: rootID})
	require.NoError(t, err)
	assert.True(t, root.IsRoot())

	children, err := root.Children(ctx)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, childID, children[0].ID)

	_, err = root.Children(ctx)
	require.NoError(t, err)
	assert.Len(t, fake.Queried("WHERE fg.parent_identifier = "), 1)

	parent, err := children[0].Parent(ctx)
	require.NoError(t, err)
	assert.Same(t, root, parent)

	child, err := dataprovider.Get(ctx, fake, &FoodGroup{ID: childID})
	require.NoError(t, err)
	parent, err = child.Parent(ctx)
	require.NoError(t, err)
	assert.Equal(t, rootID, parent.ID)
}

func TestFoodGroup_ChildAdd(t *testing.T) {
	ctx := context.Background()
	root := NewFoodGroup(uuid.New())
	child := NewFoodGroup(uuid.New())

	require.NoError(t, root.ChildAdd(ctx, child))
	require.NoError(t, root.ChildAdd(ctx, child))

	children, err := root.Children(ctx)
	require.NoError(t, err)
	assert.Len(t, children, 1)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)
}

func TestFoodGroup_Add_SavesPendingRelations(t *testing.T) {
	ctx := context.Background()
	fake := providertest.New()

	fg := NewFoodGroup(uuid.New())
	fg.TranslationAdd(NewTranslation(uuid.Nil, NewTranslationInfo(uuid.New(), "en-US"), "Dairy"))
	fg.ForeignKeyAdd(NewForeignKey(NewDataProvider(uuid.New(), "Retailer", false), uuid.Nil, "", "D-1"))

	_, err := dataprovider.Add(ctx, fake, fg)
	require.NoError(t, err)

	inserts := fake.Executed("INSERT INTO translations")
	require.Len(t, inserts, 1)
	assert.Equal(t, fg.ID, argUUID(inserts[0].Args, 1))

	keys := fake.Executed("INSERT INTO foreign_keys")
	require.Len(t, keys, 1)
	assert.Equal(t, fg.ID, argUUID(keys[0].Args, 2))
	assert.Equal(t, ForeignKeyForFoodGroup, keys[0].Args[3])

	_, err = dataprovider.Save(ctx, fake, fg)
	require.NoError(t, err)
	assert.Len(t, fake.Executed("INSERT INTO translations"), 1, "pending translations are saved once")
}

func TestFoodGroup_Delete_Cascades(t *testing.T) {
	ctx := context.Background()
	rootID, childID, otherGroupID, foodItemID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	primaryLinkID, otherLinkID := uuid.New(), uuid.New()

	fake := providertest.New().
		OnQuery("WHERE fg.parent_identifier = ", func(args []any) ([]dataprovider.Record, error) {
			if argUUID(args, 0) == rootID {
				return []dataprovider.Record{foodGroupRow(childID, &rootID)}, nil
			}
			return nil, nil
		}).
		OnQuery("AS fig WHERE fig.food_group_identifier", func(args []any) ([]dataprovider.Record, error) {
			if argUUID(args, 0) == childID {
				return []dataprovider.Record{foodItemGroupRow(primaryLinkID, foodItemID, childID, true)}, nil
			}
			return nil, nil
		}).
		OnQueryRows("AS fig WHERE fig.food_item_identifier",
			foodItemGroupRow(otherLinkID, foodItemID, otherGroupID, false))

	err := dataprovider.Delete(ctx, fake, NewFoodGroup(rootID))
	require.NoError(t, err)

	groupDeletes := fake.Executed("DELETE FROM food_groups")
	require.Len(t, groupDeletes, 2)
	assert.Equal(t, childID, argUUID(groupDeletes[0].Args, 0), "children are deleted first")
	assert.Equal(t, rootID, argUUID(groupDeletes[1].Args, 0))

	linkDeletes := fake.Executed("DELETE FROM food_item_groups")
	require.Len(t, linkDeletes, 1)
	assert.Equal(t, primaryLinkID, argUUID(linkDeletes[0].Args, 0))

	promotions := fake.Executed("UPDATE food_item_groups")
	require.Len(t, promotions, 1)
	assert.Equal(t, true, promotions[0].Args[2])
	assert.Equal(t, otherLinkID, argUUID(promotions[0].Args, 3))

	assert.Len(t, fake.Executed("DELETE FROM translations"), 2)
	assert.Len(t, fake.Executed("DELETE FROM foreign_keys"), 2)
	assert.Zero(t, fake.RolledBack())
}

func TestFoodGroup_Delete_RollsBackOnChildFailure(t *testing.T) {
	ctx := context.Background()
	rootID, childID := uuid.New(), uuid.New()

	fake := providertest.New().
		OnQuery("WHERE fg.parent_identifier = ", func(args []any) ([]dataprovider.Record, error) {
			if argUUID(args, 0) == rootID {
				return []dataprovider.Record{foodGroupRow(childID, &rootID)}, nil
			}
			return nil, nil
		}).
		OnExec("DELETE FROM food_groups", func([]any) (int64, error) { return 0, nil })

	err := dataprovider.Delete(ctx, fake, NewFoodGroup(rootID))
	assert.True(t, fwerrors.IsNotFound(err))
	assert.NotZero(t, fake.RolledBack())
}

func TestFoodGroup_Delete_StopsOnLoopingTree(t *testing.T) {
	ctx := context.Background()
	aID, bID := uuid.New(), uuid.New()

	fake := providertest.New().
		OnQuery("WHERE fg.parent_identifier = ", func(args []any) ([]dataprovider.Record, error) {
			if argUUID(args, 0) == aID {
				return []dataprovider.Record{foodGroupRow(bID, &aID)}, nil
			}
			return []dataprovider.Record{foodGroupRow(aID, &bID)}, nil
		})

	err := dataprovider.Delete(ctx, fake, NewFoodGroup(aID))
	require.Error(t, err)
	assert.True(t, fwerrors.IsInvalidState(err))
	assert.Len(t, fake.Queried("WHERE fg.parent_identifier = "), 2)
	assert.Less(t, len(err.Error()), 512)
	assert.Empty(t, fake.Executed("DELETE FROM food_groups"))
	assert.NotZero(t, fake.RolledBack())
}

func TestFoodGroup_HasAncestor(t *testing.T) {
	ctx := context.Background()
	rootID, midID, leafID := uuid.New(), uuid.New(), uuid.New()

	parents := map[uuid.UUID]*uuid.UUID{rootID: nil, midID: &rootID, leafID: &midID}
	fake := providertest.New().
		OnQuery("FROM food_groups AS fg WHERE fg.food_group_identifier", func(args []any) ([]dataprovider.Record, error) {
			id := argUUID(args, 0)
			return []dataprovider.Record{foodGroupRow(id, parents[id])}, nil
		})

	leaf, err := dataprovider.Get(ctx, fake, &FoodGroup{ID: leafID})
	require.NoError(t, err)

	found, err := leaf.HasAncestor(ctx, rootID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = leaf.HasAncestor(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)

	t.Run("looping parents", func(t *testing.T) {
		parents[rootID] = &leafID
		looping, err := dataprovider.Get(ctx, fake, &FoodGroup{ID: leafID})
		require.NoError(t, err)

		_, err = looping.HasAncestor(ctx, uuid.New())
		assert.True(t, fwerrors.IsInvalidState(err))
	})
}

func TestFoodGroup_TranslationSet(t *testing.T) {
	ctx := context.Background()
	groupID, translationID := uuid.New(), uuid.New()

	fake := providertest.New().
		OnQueryRows("FROM food_groups AS fg WHERE fg.food_group_identifier", foodGroupRow(groupID, nil)).
		OnQueryRows("WHERE t.of_identifier", translationRow(translationID, groupID, "da-DK", "Oste"))

	fg, err := dataprovider.Get(ctx, fake, &FoodGroup{ID: groupID})
	require.NoError(t, err)

	translations, err := fg.Translations(ctx)
	require.NoError(t, err)
	danish := translations[0].Info
	english := NewTranslationInfo(uuid.New(), "en-GB")

	require.NoError(t, fg.TranslationSet(ctx, danish, "Ost"))
	require.NoError(t, fg.TranslationSet(ctx, danish, "Ost"))
	require.NoError(t, fg.TranslationSet(ctx, english, "Cheese"))
	assert.Empty(t, fake.Executed(""), "nothing is written before the group is saved")

	_, err = dataprovider.Save(ctx, fake, fg)
	require.NoError(t, err)

	renamed := fake.Executed("UPDATE translations")
	require.Len(t, renamed, 1)
	assert.Equal(t, "Ost", renamed[0].Args[2])
	assert.Equal(t, translationID, argUUID(renamed[0].Args, 3))

	inserted := fake.Executed("INSERT INTO translations")
	require.Len(t, inserted, 1)
	assert.Equal(t, "Cheese", inserted[0].Args[3])

	all := fake.Executed("")
	require.Len(t, all, 3)
	assert.Contains(t, all[0].SQL, "UPDATE food_groups", "the group row is written first")
	assert.Equal(t, 1, fake.OutermostTransactions())

	_, err = dataprovider.Save(ctx, fake, fg)
	require.NoError(t, err)
	assert.Len(t, fake.Executed("UPDATE translations"), 1, "changes are written once")
}
