package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/otherjamesbrown/foodwaste-data/config"
	"github.com/otherjamesbrown/foodwaste-data/pkg/commands"
	"github.com/otherjamesbrown/foodwaste-data/pkg/systemdata"
)

const defaultCulture = "en"

// Food command flags
var (
	foodCulture     string
	foodProvider    string
	foodName        string
	foodParentKey   string
	foodPrimaryKey  string
	foodGroupKeys   []string
	foodInactive    bool
	foodShowItems   bool
	foodGroupFilter string
)

type foodGroupNode struct {
	ID       uuid.UUID       `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	IsActive bool            `json:"is_active" yaml:"is_active"`
	Items    []string        `json:"items,omitempty" yaml:"items,omitempty"`
	Children []foodGroupNode `json:"children,omitempty" yaml:"children,omitempty"`
}

type foreignKeyView struct {
	DataProvider string `json:"data_provider" yaml:"data_provider"`
	Value        string `json:"value" yaml:"value"`
}

type foodItemView struct {
	ID               uuid.UUID         `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	IsActive         bool              `json:"is_active" yaml:"is_active"`
	PrimaryFoodGroup string            `json:"primary_food_group" yaml:"primary_food_group"`
	FoodGroups       []string          `json:"food_groups" yaml:"food_groups"`
	Translations     map[string]string `json:"translations" yaml:"translations"`
	ForeignKeys      []foreignKeyView  `json:"foreign_keys" yaml:"foreign_keys"`
}

// NewFoodGroupCommand creates the foodgroup command with all subcommands.
func NewFoodGroupCommand() *cobra.Command {
	return newFoodGroupCommand(DefaultDeps())
}

func newFoodGroupCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foodgroup",
		Short: "Browse and import food groups",
		Long: `Browse and import food groups.

Names are shown in the culture given with --culture, the configured culture or
English. A group without a translation in that culture falls back to the base
language and then to its first translation.`,
		Aliases: []string{"foodgroups", "fg"},
	}
	cmd.PersistentFlags().StringVar(&foodCulture, "culture", "", "Culture of displayed or imported names (e.g., en-US, da)")

	tree := &cobra.Command{
		Use:   "tree",
		Short: "Show the food group hierarchy",
		Args:  cobra.NoArgs,
		Example: `  fwdata foodgroup tree
  fwdata foodgroup tree --culture da --items`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				return runFoodGroupTree(ctx, s, cmd.OutOrStdout())
			})
		},
	}
	tree.Flags().BoolVar(&foodShowItems, "items", false, "List the food items of every group")

	importCmd := &cobra.Command{
		Use:   "import <foreign-key>",
		Short: "Create or update a food group known to a data provider",
		Args:  cobra.ExactArgs(1),
		Example: `  fwdata foodgroup import 1200 --provider "Food data" --name "Dairy"
  fwdata foodgroup import 1210 --provider "Food data" --name "Cheese" --parent 1200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				dp, info, err := importContext(ctx, s)
				if err != nil {
					return err
				}
				c := commands.NewFoodGroupImportCommand(dp.ID, args[0], info.ID, foodName)
				c.ParentForeignKey = foodParentKey
				c.IsActive = !foodInactive
				h, err := commands.NewFoodGroupImportHandler(s.System, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return execute(ctx, s, h, c, "Food group imported", cmd.OutOrStdout())
			})
		},
	}
	addImportFlags(importCmd)
	importCmd.Flags().StringVar(&foodParentKey, "parent", "", "Foreign key of the parent food group")

	cmd.AddCommand(tree, importCmd)
	return cmd
}

// NewFoodItemCommand creates the fooditem command with all subcommands.
func NewFoodItemCommand() *cobra.Command {
	return newFoodItemCommand(DefaultDeps())
}

func newFoodItemCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fooditem",
		Short:   "Browse and import food items",
		Aliases: []string{"fooditems", "fi"},
	}
	cmd.PersistentFlags().StringVar(&foodCulture, "culture", "", "Culture of displayed or imported names (e.g., en-US, da)")

	show := &cobra.Command{
		Use:     "show <food-item-id>",
		Short:   "Show a food item with its groups, translations and foreign keys",
		Args:    cobra.ExactArgs(1),
		Example: `  fwdata fooditem show 6a1d3c2b-9e8f-4b7a-8c5d-1e2f3a4b5c6d --culture da`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				return runFoodItemShow(ctx, s, id, cmd.OutOrStdout())
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List food items",
		Args:  cobra.NoArgs,
		Example: `  fwdata fooditem list
  fwdata fooditem list --group 2b4c6d8e-0f1a-4c3e-9d5b-7a8c9e0f1a2b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				return runFoodItemList(ctx, s, cmd.OutOrStdout())
			})
		},
	}
	list.Flags().StringVar(&foodGroupFilter, "group", "", "Only items belonging to this food group")

	importCmd := &cobra.Command{
		Use:   "import <foreign-key>",
		Short: "Create or update a food item known to a data provider",
		Long: `Create or update a food item known to a data provider. The primary food group
and any further groups are named by their foreign keys at the same provider and
must have been imported first.`,
		Args:    cobra.ExactArgs(1),
		Example: `  fwdata fooditem import 90017 --provider "Food data" --name "Cheddar" --primary 1210 --group 1200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				dp, info, err := importContext(ctx, s)
				if err != nil {
					return err
				}
				c := commands.NewFoodItemImportCommand(dp.ID, args[0], info.ID, foodName, foodPrimaryKey)
				c.FoodGroupForeignKeys = foodGroupKeys
				c.IsActive = !foodInactive
				h, err := commands.NewFoodItemImportHandler(s.System, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return execute(ctx, s, h, c, "Food item imported", cmd.OutOrStdout())
			})
		},
	}
	addImportFlags(importCmd)
	importCmd.Flags().StringVar(&foodPrimaryKey, "primary", "", "Foreign key of the primary food group")
	importCmd.Flags().StringSliceVar(&foodGroupKeys, "group", nil, "Foreign keys of further food groups (repeatable)")
	_ = importCmd.MarkFlagRequired("primary")

	cmd.AddCommand(show, list, importCmd)
	return cmd
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&foodProvider, "provider", "", "Name of the data provider")
	cmd.Flags().StringVar(&foodName, "name", "", "Name in the selected culture")
	cmd.Flags().BoolVar(&foodInactive, "inactive", false, "Import as inactive")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("name")
}

// cultureName returns --culture, the configured culture or English.
func cultureName(cfg *config.CLIConfig) string {
	switch {
	case foodCulture != "":
		return foodCulture
	case cfg != nil && cfg.Culture != "":
		return cfg.Culture
	default:
		return defaultCulture
	}
}

func cultureTag(cfg *config.CLIConfig) (language.Tag, error) {
	name := cultureName(cfg)
	tag, err := language.Parse(name)
	if err != nil {
		return language.Und, fmt.Errorf("invalid culture %q: %w", name, err)
	}
	return tag, nil
}

func importContext(ctx context.Context, s *Session) (*systemdata.DataProvider, *systemdata.TranslationInfo, error) {
	dp, err := s.System.DataProviderGetByName(ctx, foodProvider)
	if err != nil {
		return nil, nil, fmt.Errorf("getting data provider: %w", err)
	}
	info, err := s.System.TranslationInfoGetByCulture(ctx, cultureName(s.Config))
	if err != nil {
		return nil, nil, fmt.Errorf("getting translation info: %w", err)
	}
	return dp, info, nil
}

type translator interface {
	Translate(ctx context.Context, culture language.Tag) (*systemdata.Translation, error)
}

// displayName returns the translated name, or the identifier when nothing
// is translated.
func displayName(ctx context.Context, t translator, culture language.Tag, id uuid.UUID) (string, error) {
	translation, err := t.Translate(ctx, culture)
	if err != nil {
		return "", err
	}
	if translation == nil {
		return id.String(), nil
	}
	return translation.Value, nil
}

func runFoodGroupTree(ctx context.Context, s *Session, out io.Writer) error {
	culture, err := cultureTag(s.Config)
	if err != nil {
		return err
	}
	roots, err := s.System.FoodGroupGetAllOnRoot(ctx)
	if err != nil {
		return fmt.Errorf("getting food groups: %w", err)
	}

	nodes := make([]foodGroupNode, 0, len(roots))
	for _, fg := range roots {
		node, err := buildFoodGroupNode(ctx, s, fg, culture, map[uuid.UUID]bool{})
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
	}

	return writeOutput(out, s.Config.OutputFormat, nodes, func(w io.Writer) error {
		if len(nodes) == 0 {
			fmt.Fprintln(w, "No food groups found.")
			return nil
		}
		for _, n := range nodes {
			printFoodGroupNode(w, n, 0)
		}
		return nil
	})
}

func buildFoodGroupNode(ctx context.Context, s *Session, fg *systemdata.FoodGroup, culture language.Tag, seen map[uuid.UUID]bool) (foodGroupNode, error) {
	// A corrupt parent chain must not loop forever.
	if seen[fg.ID] {
		return foodGroupNode{}, fmt.Errorf("food group %s is its own ancestor", fg.ID)
	}
	seen[fg.ID] = true

	name, err := displayName(ctx, fg, culture, fg.ID)
	if err != nil {
		return foodGroupNode{}, err
	}
	node := foodGroupNode{ID: fg.ID, Name: name, IsActive: fg.IsActive}

	if foodShowItems {
		items, err := s.System.FoodItemGetAllForFoodGroup(ctx, fg.ID)
		if err != nil {
			return foodGroupNode{}, err
		}
		for _, fi := range items {
			itemName, err := displayName(ctx, fi, culture, fi.ID)
			if err != nil {
				return foodGroupNode{}, err
			}
			node.Items = append(node.Items, itemName)
		}
	}

	children, err := fg.Children(ctx)
	if err != nil {
		return foodGroupNode{}, err
	}
	for _, child := range children {
		childNode, err := buildFoodGroupNode(ctx, s, child, culture, seen)
		if err != nil {
			return foodGroupNode{}, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}

func printFoodGroupNode(w io.Writer, n foodGroupNode, depth int) {
	indent := strings.Repeat("  ", depth)
	status := ""
	if !n.IsActive {
		status = " (inactive)"
	}
	fmt.Fprintf(w, "%s%s%s\n", indent, n.Name, status)
	for _, item := range n.Items {
		fmt.Fprintf(w, "%s  - %s\n", indent, item)
	}
	for _, c := range n.Children {
		printFoodGroupNode(w, c, depth+1)
	}
}

func runFoodItemShow(ctx context.Context, s *Session, id uuid.UUID, out io.Writer) error {
	culture, err := cultureTag(s.Config)
	if err != nil {
		return err
	}
	fi, err := s.System.FoodItemGet(ctx, id)
	if err != nil {
		return fmt.Errorf("getting food item: %w", err)
	}

	name, err := displayName(ctx, fi, culture, fi.ID)
	if err != nil {
		return err
	}
	view := foodItemView{
		ID:           fi.ID,
		Name:         name,
		IsActive:     fi.IsActive,
		FoodGroups:   []string{},
		Translations: map[string]string{},
		ForeignKeys:  []foreignKeyView{},
	}

	primary, err := fi.PrimaryFoodGroup(ctx)
	if err != nil {
		return err
	}
	if primary != nil {
		if view.PrimaryFoodGroup, err = displayName(ctx, primary, culture, primary.ID); err != nil {
			return err
		}
	}

	groups, err := fi.FoodGroups(ctx)
	if err != nil {
		return err
	}
	for _, fg := range groups {
		groupName, err := displayName(ctx, fg, culture, fg.ID)
		if err != nil {
			return err
		}
		view.FoodGroups = append(view.FoodGroups, groupName)
	}

	translations, err := fi.Translations(ctx)
	if err != nil {
		return err
	}
	for _, t := range translations {
		if t.Info != nil {
			view.Translations[t.Info.CultureName] = t.Value
		}
	}

	keys, err := fi.ForeignKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		kv := foreignKeyView{Value: k.Value}
		if k.DataProvider != nil {
			kv.DataProvider = k.DataProvider.Name
		}
		view.ForeignKeys = append(view.ForeignKeys, kv)
	}

	return writeOutput(out, s.Config.OutputFormat, view, func(w io.Writer) error {
		fmt.Fprintf(w, "Food item:   %s\n", view.Name)
		fmt.Fprintf(w, "ID:          %s\n", view.ID)
		fmt.Fprintf(w, "Active:      %t\n", view.IsActive)
		fmt.Fprintf(w, "Primary:     %s\n", view.PrimaryFoodGroup)
		fmt.Fprintf(w, "Food groups: %s\n", strings.Join(view.FoodGroups, ", "))
		if len(view.Translations) > 0 {
			fmt.Fprintln(w, "\nTranslations:")
			for _, t := range translations {
				if t.Info != nil {
					fmt.Fprintf(w, "  %-8s %s\n", t.Info.CultureName, t.Value)
				}
			}
		}
		if len(view.ForeignKeys) > 0 {
			fmt.Fprintln(w, "\nForeign keys:")
			for _, k := range view.ForeignKeys {
				fmt.Fprintf(w, "  %-24s %s\n", truncate(k.DataProvider, 24), k.Value)
			}
		}
		return nil
	})
}

type foodItemSummary struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	IsActive bool      `json:"is_active" yaml:"is_active"`
}

func runFoodItemList(ctx context.Context, s *Session, out io.Writer) error {
	culture, err := cultureTag(s.Config)
	if err != nil {
		return err
	}

	var items []*systemdata.FoodItem
	if foodGroupFilter != "" {
		groupID, err := parseID(foodGroupFilter)
		if err != nil {
			return err
		}
		items, err = s.System.FoodItemGetAllForFoodGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("getting food items: %w", err)
		}
	} else {
		if items, err = s.System.FoodItemGetAll(ctx); err != nil {
			return fmt.Errorf("getting food items: %w", err)
		}
	}

	summaries := make([]foodItemSummary, 0, len(items))
	for _, fi := range items {
		name, err := displayName(ctx, fi, culture, fi.ID)
		if err != nil {
			return err
		}
		summaries = append(summaries, foodItemSummary{ID: fi.ID, Name: name, IsActive: fi.IsActive})
	}

	return writeOutput(out, s.Config.OutputFormat, summaries, func(w io.Writer) error {
		if len(summaries) == 0 {
			fmt.Fprintln(w, "No food items found.")
			return nil
		}
		fmt.Fprintln(w, "ID                                    NAME")
		for _, fi := range summaries {
			name := fi.Name
			if !fi.IsActive {
				name += " (inactive)"
			}
			fmt.Fprintf(w, "%-36s  %s\n", fi.ID, name)
		}
		return nil
	})
}
