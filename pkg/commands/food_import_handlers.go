package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
	"github.com/otherjamesbrown/foodwaste-data/pkg/systemdata"
)

const (
	foreignKeyMax = 128
	foodNameMax   = 256
)

// importSource is what every import command names: the data provider, the
// provider's key of the imported row and its translated name.
type importSource struct {
	DataProviderID    uuid.UUID
	ForeignKey        string
	TranslationInfoID uuid.UUID
	Name              string
}

func (s importSource) addRules(spec *Specification, v Validations) {
	spec.IsSatisfiedBy(func() bool { return v.IsIdentifier(s.DataProviderID) },
		validationError("data provider identifier is required")).
		IsSatisfiedBy(func() bool { return v.HasValue(s.ForeignKey) && v.IsLengthValid(s.ForeignKey, 1, foreignKeyMax) },
			validationError("foreign key must have 1 to %d characters", foreignKeyMax)).
		IsSatisfiedBy(func() bool { return v.IsIdentifier(s.TranslationInfoID) },
			validationError("translation info identifier is required")).
		IsSatisfiedBy(func() bool { return v.HasValue(s.Name) && v.IsLengthValid(s.Name, 1, foodNameMax) },
			validationError("name must have 1 to %d characters", foodNameMax)).
		IsSatisfiedBy(func() bool { return !v.ContainsIllegalChar(s.Name) },
			validationError("name contains illegal characters"))
}

func (s importSource) resolve(ctx context.Context, repo SystemDataRepository) (*systemdata.DataProvider, *systemdata.TranslationInfo, error) {
	dp, err := repo.DataProviderGet(ctx, s.DataProviderID)
	if err != nil {
		return nil, nil, err
	}
	info, err := repo.TranslationInfoGet(ctx, s.TranslationInfoID)
	if err != nil {
		return nil, nil, err
	}
	return dp, info, nil
}

// foodGroupByKey resolves a food group referenced by foreign key. A missing
// group is reported as invalid state since it has to be imported first.
func foodGroupByKey(ctx context.Context, repo SystemDataRepository, dp *systemdata.DataProvider, key string) (*systemdata.FoodGroup, error) {
	fg, err := repo.FoodGroupGetByForeignKey(ctx, dp, key)
	if fwerrors.IsNotFound(err) {
		return nil, fwerrors.NewCodedError(fwerrors.CodeInvalidState,
			fmt.Sprintf("food group %q has not been imported from %s", key, dp.Name), err)
	}
	return fg, err
}

// ==================== Food group import ====================

// FoodGroupImportCommand creates or updates a food group known to a data
// provider by ForeignKey.
type FoodGroupImportCommand struct {
	importSource
	ParentForeignKey string
	IsActive         bool
}

// NewFoodGroupImportCommand builds a food group import command.
func NewFoodGroupImportCommand(dataProviderID uuid.UUID, foreignKey string, translationInfoID uuid.UUID, name string) FoodGroupImportCommand {
	return FoodGroupImportCommand{
		importSource: importSource{
			DataProviderID:    dataProviderID,
			ForeignKey:        foreignKey,
			TranslationInfoID: translationInfoID,
			Name:              name,
		},
		IsActive: true,
	}
}

type foodGroupImport struct{}

func (foodGroupImport) CommandName() string { return "food_group_import" }

func (foodGroupImport) AddValidationRules(cmd FoodGroupImportCommand, spec *Specification, v Validations, _ time.Time) {
	cmd.addRules(spec, v)
	spec.IsSatisfiedBy(func() bool { return cmd.ParentForeignKey != cmd.ForeignKey },
		validationError("food group %q cannot be its own parent", cmd.ForeignKey)).
		IsSatisfiedBy(func() bool { return v.IsLengthValid(cmd.ParentForeignKey, 0, foreignKeyMax) },
			validationError("parent foreign key must be at most %d characters", foreignKeyMax))
}

func (foodGroupImport) ModifyData(ctx context.Context, cmd FoodGroupImportCommand, repo SystemDataRepository, _ time.Time) (Identifiable, error) {
	dp, info, err := cmd.resolve(ctx, repo)
	if err != nil {
		return nil, err
	}

	fg, err := repo.FoodGroupGetByForeignKey(ctx, dp, cmd.ForeignKey)
	inserting := fwerrors.IsNotFound(err)
	switch {
	case inserting:
		fg = systemdata.NewFoodGroup(uuid.New())
		fg.ForeignKeyAdd(systemdata.NewForeignKey(dp, fg.ID, systemdata.ForeignKeyForFoodGroup, cmd.ForeignKey))
	case err != nil:
		return nil, err
	}

	var parent *systemdata.FoodGroup
	if cmd.ParentForeignKey != "" {
		if parent, err = foodGroupByKey(ctx, repo, dp, cmd.ParentForeignKey); err != nil {
			return nil, err
		}
		if err := requireNotBelow(ctx, parent, fg, cmd); err != nil {
			return nil, err
		}
	}
	fg.SetParent(parent)
	fg.IsActive = cmd.IsActive

	if err := fg.TranslationSet(ctx, info, cmd.Name); err != nil {
		return nil, err
	}

	if inserting {
		err = repo.Insert(ctx, fg)
	} else {
		err = repo.Update(ctx, fg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to import food group %q: %w", cmd.ForeignKey, err)
	}
	return fg, nil
}

// requireNotBelow rejects moving fg below parent when parent already sits
// in the subtree of fg.
func requireNotBelow(ctx context.Context, parent, fg *systemdata.FoodGroup, cmd FoodGroupImportCommand) error {
	below := parent.ID == fg.ID
	if !below {
		var err error
		if below, err = parent.HasAncestor(ctx, fg.ID); err != nil {
			return err
		}
	}
	if below {
		return fwerrors.NewCodedError(fwerrors.CodeInvalidState,
			fmt.Sprintf("food group %q cannot be moved below its descendant %q", cmd.ForeignKey, cmd.ParentForeignKey),
			fwerrors.ErrValidation)
	}
	return nil
}

// NewFoodGroupImportHandler creates the food group import handler.
func NewFoodGroupImportHandler(repo SystemDataRepository, deps Dependencies, opts ...HandlerOption) (*SystemDataHandler[FoodGroupImportCommand], error) {
	return NewSystemDataHandler[FoodGroupImportCommand](repo, deps, foodGroupImport{}, opts...)
}

// ==================== Food item import ====================

// FoodItemImportCommand creates or updates a food item known to a data
// provider by ForeignKey. Its food groups are referenced by their foreign
// keys at the same data provider.
type FoodItemImportCommand struct {
	importSource
	PrimaryFoodGroupForeignKey string
	FoodGroupForeignKeys       []string
	IsActive                   bool
}

// NewFoodItemImportCommand builds a food item import command.
func NewFoodItemImportCommand(dataProviderID uuid.UUID, foreignKey string, translationInfoID uuid.UUID, name, primaryFoodGroupKey string) FoodItemImportCommand {
	return FoodItemImportCommand{
		importSource: importSource{
			DataProviderID:    dataProviderID,
			ForeignKey:        foreignKey,
			TranslationInfoID: translationInfoID,
			Name:              name,
		},
		PrimaryFoodGroupForeignKey: primaryFoodGroupKey,
		IsActive:                   true,
	}
}

type foodItemImport struct{}

func (foodItemImport) CommandName() string { return "food_item_import" }

func (foodItemImport) AddValidationRules(cmd FoodItemImportCommand, spec *Specification, v Validations, _ time.Time) {
	cmd.addRules(spec, v)
	spec.IsSatisfiedBy(func() bool { return v.HasValue(cmd.PrimaryFoodGroupForeignKey) },
		validationError("primary food group foreign key is required"))
	for _, key := range cmd.FoodGroupForeignKeys {
		spec.IsSatisfiedBy(func() bool { return v.HasValue(key) && v.IsLengthValid(key, 1, foreignKeyMax) },
			validationError("food group foreign key must have 1 to %d characters", foreignKeyMax))
	}
}

func (foodItemImport) ModifyData(ctx context.Context, cmd FoodItemImportCommand, repo SystemDataRepository, _ time.Time) (Identifiable, error) {
	dp, info, err := cmd.resolve(ctx, repo)
	if err != nil {
		return nil, err
	}

	primary, err := foodGroupByKey(ctx, repo, dp, cmd.PrimaryFoodGroupForeignKey)
	if err != nil {
		return nil, err
	}

	fi, err := repo.FoodItemGetByForeignKey(ctx, dp, cmd.ForeignKey)
	inserting := fwerrors.IsNotFound(err)
	switch {
	case inserting:
		fi = systemdata.NewFoodItem(uuid.New(), primary)
		fi.ForeignKeyAdd(systemdata.NewForeignKey(dp, fi.ID, systemdata.ForeignKeyForFoodItem, cmd.ForeignKey))
	case err != nil:
		return nil, err
	default:
		if err := fi.SetPrimaryFoodGroup(ctx, primary); err != nil {
			return nil, err
		}
	}

	for _, key := range cmd.FoodGroupForeignKeys {
		if key == cmd.PrimaryFoodGroupForeignKey {
			continue
		}
		fg, err := foodGroupByKey(ctx, repo, dp, key)
		if err != nil {
			return nil, err
		}
		if err := fi.FoodGroupAdd(ctx, fg); err != nil {
			return nil, err
		}
	}
	fi.IsActive = cmd.IsActive

	if err := fi.TranslationSet(ctx, info, cmd.Name); err != nil {
		return nil, err
	}

	if inserting {
		err = repo.Insert(ctx, fi)
	} else {
		err = repo.Update(ctx, fi)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to import food item %q: %w", cmd.ForeignKey, err)
	}
	return fi, nil
}

// NewFoodItemImportHandler creates the food item import handler.
func NewFoodItemImportHandler(repo SystemDataRepository, deps Dependencies, opts ...HandlerOption) (*SystemDataHandler[FoodItemImportCommand], error) {
	return NewSystemDataHandler[FoodItemImportCommand](repo, deps, foodItemImport{}, opts...)
}
