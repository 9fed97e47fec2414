package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/foodwaste-data/pkg/commands"
)

// EnvMailAddress names the caller when --as is not given.
const EnvMailAddress = "FWDATA_MAIL_ADDRESS"

// Household command flags
var (
	householdAs          string
	householdName        string
	householdDescription string
	householdYes         bool
)

type memberSummary struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	MailAddress string    `json:"mail_address" yaml:"mail_address"`
	Membership  string    `json:"membership" yaml:"membership"`
}

type householdView struct {
	ID           uuid.UUID       `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Description  *string         `json:"description,omitempty" yaml:"description,omitempty"`
	CreationTime time.Time       `json:"creation_time" yaml:"creation_time"`
	Members      []memberSummary `json:"members" yaml:"members"`
}

// NewHouseholdCommand creates the household command with all subcommands.
func NewHouseholdCommand() *cobra.Command {
	return newHouseholdCommand(DefaultDeps())
}

func newHouseholdCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "household",
		Short: "Manage households",
		Long: `Manage households and their members.

Commands that change a household act on behalf of a household member, named
with --as or the FWDATA_MAIL_ADDRESS environment variable. That member must be
activated and must have accepted the privacy policy.

Deleting a household removes its memberships and every member left without a
household.`,
		Aliases: []string{"households", "hh"},
	}

	cmd.PersistentFlags().StringVar(&householdAs, "as", "", "Mail address of the acting household member")

	cmd.AddCommand(newHouseholdShowCommand(deps))
	cmd.AddCommand(newHouseholdAddCommand(deps))
	cmd.AddCommand(newHouseholdUpdateCommand(deps))
	cmd.AddCommand(newHouseholdAddMemberCommand(deps))
	cmd.AddCommand(newHouseholdRemoveMemberCommand(deps))
	cmd.AddCommand(newHouseholdDeleteCommand(deps))

	return cmd
}

func newHouseholdShowCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "show <household-id>",
		Short:   "Show a household and its members",
		Args:    cobra.ExactArgs(1),
		Example: `  fwdata household show 3f1c9a52-8a0e-4c55-9d1b-0b9e2f0c7a11 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				return runHouseholdShow(ctx, s, id, cmd.OutOrStdout())
			})
		},
	}
}

func newHouseholdAddCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Create a household with the acting member as its first member",
		Args:    cobra.NoArgs,
		Example: `  fwdata household add --as jane@example.com --name "Home"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := commands.HouseholdAddCommand{Name: householdName, Description: optionalString(cmd, "description", householdDescription)}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				h, err := commands.NewHouseholdAddHandler(s.Household, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return executeAs(ctx, s, h, c, "Household added", cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&householdName, "name", "", "Household name")
	cmd.Flags().StringVar(&householdDescription, "description", "", "Household description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newHouseholdUpdateCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "update <household-id>",
		Short:   "Rename a household or change its description",
		Args:    cobra.ExactArgs(1),
		Example: `  fwdata household update 3f1c9a52-8a0e-4c55-9d1b-0b9e2f0c7a11 --as jane@example.com --name "Cabin"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c := commands.HouseholdUpdateCommand{HouseholdID: id, Name: householdName, Description: optionalString(cmd, "description", householdDescription)}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				h, err := commands.NewHouseholdUpdateHandler(s.Household, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return executeAs(ctx, s, h, c, "Household updated", cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&householdName, "name", "", "Household name")
	cmd.Flags().StringVar(&householdDescription, "description", "", "Household description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newHouseholdAddMemberCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "add-member <household-id> <mail-address>",
		Short: "Add a member to a household",
		Long: `Add a member to a household. A mail address that is not registered yet is
registered as a new basic member.`,
		Args:    cobra.ExactArgs(2),
		Example: `  fwdata household add-member 3f1c9a52-8a0e-4c55-9d1b-0b9e2f0c7a11 john@example.com --as jane@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c := commands.HouseholdAddMemberCommand{HouseholdID: id, MailAddress: args[1]}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				h, err := commands.NewHouseholdAddMemberHandler(s.Household, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return executeAs(ctx, s, h, c, "Member added", cmd.OutOrStdout())
			})
		},
	}
}

func newHouseholdRemoveMemberCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "remove-member <household-id> <member-id>",
		Short:   "Remove a member from a household",
		Args:    cobra.ExactArgs(2),
		Example: `  fwdata household remove-member 3f1c9a52-8a0e-4c55-9d1b-0b9e2f0c7a11 8d2f4e61-1c7b-4a9e-b0d3-5e6f7a8b9c0d --as jane@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			householdID, err := parseID(args[0])
			if err != nil {
				return err
			}
			memberID, err := parseID(args[1])
			if err != nil {
				return err
			}
			c := commands.HouseholdRemoveMemberCommand{HouseholdID: householdID, HouseholdMemberID: memberID}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				h, err := commands.NewHouseholdRemoveMemberHandler(s.Household, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return executeAs(ctx, s, h, c, "Member removed", cmd.OutOrStdout())
			})
		},
	}
}

func newHouseholdDeleteCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <household-id>",
		Short: "Delete a household",
		Long: `Delete a household together with its memberships. Members that belonged to
no other household are deleted as well.`,
		Args:    cobra.ExactArgs(1),
		Example: `  fwdata household delete 3f1c9a52-8a0e-4c55-9d1b-0b9e2f0c7a11 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				return runHouseholdDelete(ctx, s, id, householdYes, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&householdYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runHouseholdShow(ctx context.Context, s *Session, id uuid.UUID, out io.Writer) error {
	household, err := s.Household.HouseholdGet(ctx, id)
	if err != nil {
		return fmt.Errorf("getting household: %w", err)
	}
	members, err := household.Members(ctx)
	if err != nil {
		return err
	}

	view := householdView{
		ID:           household.ID,
		Name:         household.Name,
		Description:  household.Description,
		CreationTime: household.CreationTime,
		Members:      make([]memberSummary, 0, len(members)),
	}
	for _, m := range members {
		view.Members = append(view.Members, memberSummary{ID: m.ID, MailAddress: m.MailAddress, Membership: m.Membership.String()})
	}

	return writeOutput(out, s.Config.OutputFormat, view, func(w io.Writer) error {
		fmt.Fprintf(w, "Household:   %s\n", view.Name)
		fmt.Fprintf(w, "ID:          %s\n", view.ID)
		if view.Description != nil && *view.Description != "" {
			fmt.Fprintf(w, "Description: %s\n", *view.Description)
		}
		fmt.Fprintf(w, "Created:     %s\n", formatTime(&view.CreationTime))
		fmt.Fprintf(w, "\nMembers (%d):\n", len(view.Members))
		for _, m := range view.Members {
			fmt.Fprintf(w, "  %-36s  %-40s %s\n", m.ID, truncate(m.MailAddress, 40), m.Membership)
		}
		return nil
	})
}

func runHouseholdDelete(ctx context.Context, s *Session, id uuid.UUID, yes bool, in io.Reader, out io.Writer) error {
	household, err := s.Household.HouseholdGet(ctx, id)
	if err != nil {
		return fmt.Errorf("getting household: %w", err)
	}
	if !yes && !confirm(in, out, fmt.Sprintf("Delete household %q?", household.Name)) {
		fmt.Fprintln(out, "Delete cancelled.")
		return nil
	}
	if err := s.Household.Delete(ctx, household); err != nil {
		return fmt.Errorf("deleting household: %w", err)
	}
	s.PublishDeleted(ctx, "household", household.ID)
	fmt.Fprintf(out, "Household %s deleted.\n", household.ID)
	return nil
}

// executor is satisfied by every command handler.
type executor[C any] interface {
	Execute(ctx context.Context, cmd C) (*commands.Receipt, error)
}

// executeAs runs a household data handler on behalf of the --as member and
// prints its receipt.
func executeAs[C any](ctx context.Context, s *Session, h executor[C], c C, title string, out io.Writer) error {
	mailAddress, err := callerMailAddress()
	if err != nil {
		return err
	}
	return execute(commands.WithMailAddress(ctx, mailAddress), s, h, c, title, out)
}

func execute[C any](ctx context.Context, s *Session, h executor[C], c C, title string, out io.Writer) error {
	receipt, err := h.Execute(ctx, c)
	if err != nil {
		return err
	}
	return writeOutput(out, s.Config.OutputFormat, receipt, func(w io.Writer) error {
		fmt.Fprintf(w, "%s: %s (%s)\n", title, receipt.Identifier, receipt.EventDate.Local().Format(time.RFC3339))
		return nil
	})
}

func callerMailAddress() (string, error) {
	mailAddress := strings.TrimSpace(householdAs)
	if mailAddress == "" {
		mailAddress = strings.TrimSpace(memberAs)
	}
	if mailAddress == "" {
		mailAddress = strings.TrimSpace(os.Getenv(EnvMailAddress))
	}
	if mailAddress == "" {
		return "", fmt.Errorf("acting member required: use --as or set %s", EnvMailAddress)
	}
	return mailAddress, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return id, nil
}

// optionalString returns nil unless the named flag was set.
func optionalString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
