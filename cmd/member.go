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
	"github.com/otherjamesbrown/foodwaste-data/pkg/householddata"
)

// Member command flags
var (
	memberAs          string
	memberYes         bool
	memberProvider    string
	memberReference   string
	memberReceiptFile string
	memberPaidAt      string
)

type householdSummary struct {
	ID   uuid.UUID `json:"id" yaml:"id"`
	Name string    `json:"name" yaml:"name"`
}

type paymentSummary struct {
	ID           uuid.UUID `json:"id" yaml:"id"`
	DataProvider string    `json:"data_provider" yaml:"data_provider"`
	PaymentTime  time.Time `json:"payment_time" yaml:"payment_time"`
	Reference    string    `json:"reference" yaml:"reference"`
}

type memberView struct {
	ID                   uuid.UUID          `json:"id" yaml:"id"`
	MailAddress          string             `json:"mail_address" yaml:"mail_address"`
	Membership           string             `json:"membership" yaml:"membership"`
	EffectiveMembership  string             `json:"effective_membership" yaml:"effective_membership"`
	MembershipExpireTime *time.Time         `json:"membership_expire_time,omitempty" yaml:"membership_expire_time,omitempty"`
	Activated            bool               `json:"activated" yaml:"activated"`
	PrivacyPolicy        bool               `json:"privacy_policy_accepted" yaml:"privacy_policy_accepted"`
	CreationTime         time.Time          `json:"creation_time" yaml:"creation_time"`
	Households           []householdSummary `json:"households" yaml:"households"`
	Payments             []paymentSummary   `json:"payments" yaml:"payments"`
}

// NewMemberCommand creates the member command with all subcommands.
func NewMemberCommand() *cobra.Command {
	return newMemberCommand(DefaultDeps())
}

func newMemberCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage household members",
		Long: `Inspect household members and act on their own account.

Commands other than 'show' act on behalf of the member named with --as or the
FWDATA_MAIL_ADDRESS environment variable.

Deleting a member removes the member's payments and memberships, and every
household left without members.`,
		Aliases: []string{"members"},
	}

	cmd.PersistentFlags().StringVar(&memberAs, "as", "", "Mail address of the acting household member")

	cmd.AddCommand(newMemberShowCommand(deps))
	cmd.AddCommand(newMemberActivateCommand(deps))
	cmd.AddCommand(newMemberAcceptPrivacyPolicyCommand(deps))
	cmd.AddCommand(newMemberUpgradeCommand(deps))
	cmd.AddCommand(newMemberDeleteCommand(deps))

	return cmd
}

func newMemberShowCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <mail-address|member-id>",
		Short: "Show a household member with households and payments",
		Args:  cobra.ExactArgs(1),
		Example: `  fwdata member show jane@example.com
  fwdata member show 8d2f4e61-1c7b-4a9e-b0d3-5e6f7a8b9c0d -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				return runMemberShow(ctx, s, args[0], deps.Now(), cmd.OutOrStdout())
			})
		},
	}
}

func newMemberActivateCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "activate <activation-code>",
		Short:   "Activate the acting member",
		Args:    cobra.ExactArgs(1),
		Example: `  fwdata member activate 0F3A9C5D2B7E4A1F8C6D0E9B3A2F1C4D --as jane@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := commands.MemberActivateCommand{ActivationCode: args[0]}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				h, err := commands.NewMemberActivateHandler(s.Household, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return executeAs(ctx, s, h, c, "Member activated", cmd.OutOrStdout())
			})
		},
	}
}

func newMemberAcceptPrivacyPolicyCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "accept-privacy-policy",
		Short:   "Accept the privacy policy for the acting member",
		Args:    cobra.NoArgs,
		Example: `  fwdata member accept-privacy-policy --as jane@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				h, err := commands.NewAcceptPrivacyPolicyHandler(s.Household, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return executeAs(ctx, s, h, commands.AcceptPrivacyPolicyCommand{}, "Privacy policy accepted", cmd.OutOrStdout())
			})
		},
	}
}

func newMemberUpgradeCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade <membership>",
		Short: "Record a payment and upgrade the acting member's membership",
		Long: `Record a payment made through a payment data provider and upgrade the acting
member to the paid membership (deluxe or premium). A renewal extends the
current expiry time.`,
		Args: cobra.ExactArgs(1),
		Example: `  fwdata member upgrade premium --as jane@example.com \
    --provider "Card payments" --reference INV-2024-0042 --receipt receipt.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			membership, err := householddata.ParseMembership(args[0])
			if err != nil {
				return err
			}
			paidAt, err := parsePaymentTime(memberPaidAt, deps.Now())
			if err != nil {
				return err
			}
			var receipt []byte
			if memberReceiptFile != "" {
				if receipt, err = os.ReadFile(memberReceiptFile); err != nil {
					return fmt.Errorf("reading receipt: %w", err)
				}
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				dp, err := s.System.DataProviderGetByName(ctx, memberProvider)
				if err != nil {
					return fmt.Errorf("getting data provider: %w", err)
				}
				c := commands.UpgradeMembershipCommand{
					Membership:       membership,
					DataProviderID:   dp.ID,
					PaymentTime:      paidAt,
					PaymentReference: memberReference,
					PaymentReceipt:   receipt,
				}
				h, err := commands.NewUpgradeMembershipHandler(s.Household, s.System, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return executeAs(ctx, s, h, c, "Membership upgraded", cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&memberProvider, "provider", "", "Name of the payment data provider")
	cmd.Flags().StringVar(&memberReference, "reference", "", "Payment reference")
	cmd.Flags().StringVar(&memberReceiptFile, "receipt", "", "File holding the payment receipt")
	cmd.Flags().StringVar(&memberPaidAt, "paid-at", "", "Payment time (RFC 3339, default: now)")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func newMemberDeleteCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete",
		Short:   "Delete the acting member's account",
		Args:    cobra.NoArgs,
		Example: `  fwdata member delete --as jane@example.com --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mailAddress, err := callerMailAddress()
			if err != nil {
				return err
			}
			if !memberYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete household member %s?", mailAddress)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Delete cancelled.")
				return nil
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *Session) error {
				h, err := commands.NewDeleteOwnMemberHandler(s.Household, commands.DefaultDependencies(), s.HandlerOptions(deps.Now)...)
				if err != nil {
					return err
				}
				return execute(commands.WithMailAddress(ctx, mailAddress), s, h, commands.DeleteOwnMemberCommand{}, "Member deleted", cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVarP(&memberYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// lookupMember accepts either a member identifier or a mail address.
func lookupMember(ctx context.Context, s *Session, ref string) (*householddata.HouseholdMember, error) {
	if id, err := uuid.Parse(strings.TrimSpace(ref)); err == nil {
		return s.Household.HouseholdMemberGet(ctx, id)
	}
	return s.Household.HouseholdMemberGetByMailAddress(ctx, ref)
}

func runMemberShow(ctx context.Context, s *Session, ref string, now time.Time, out io.Writer) error {
	member, err := lookupMember(ctx, s, ref)
	if err != nil {
		return fmt.Errorf("getting household member: %w", err)
	}
	households, err := member.Households(ctx)
	if err != nil {
		return err
	}
	payments, err := member.Payments(ctx)
	if err != nil {
		return err
	}

	view := memberView{
		ID:                   member.ID,
		MailAddress:          member.MailAddress,
		Membership:           member.Membership.String(),
		EffectiveMembership:  member.EffectiveMembership(now).String(),
		MembershipExpireTime: member.MembershipExpireTime,
		Activated:            member.IsActivated(),
		PrivacyPolicy:        member.IsPrivacyPolicyAccepted(),
		CreationTime:         member.CreationTime,
		Households:           make([]householdSummary, 0, len(households)),
		Payments:             make([]paymentSummary, 0, len(payments)),
	}
	for _, h := range households {
		view.Households = append(view.Households, householdSummary{ID: h.ID, Name: h.Name})
	}
	for _, p := range payments {
		ps := paymentSummary{ID: p.ID, PaymentTime: p.PaymentTime, Reference: p.PaymentReference}
		if p.DataProvider != nil {
			ps.DataProvider = p.DataProvider.Name
		}
		view.Payments = append(view.Payments, ps)
	}

	return writeOutput(out, s.Config.OutputFormat, view, func(w io.Writer) error {
		fmt.Fprintf(w, "Member:      %s\n", view.MailAddress)
		fmt.Fprintf(w, "ID:          %s\n", view.ID)
		fmt.Fprintf(w, "Membership:  %s (effective: %s, expires: %s)\n", view.Membership, view.EffectiveMembership, formatTime(view.MembershipExpireTime))
		fmt.Fprintf(w, "Activated:   %t\n", view.Activated)
		fmt.Fprintf(w, "Privacy:     %t\n", view.PrivacyPolicy)
		fmt.Fprintf(w, "Created:     %s\n", formatTime(&view.CreationTime))
		fmt.Fprintf(w, "\nHouseholds (%d):\n", len(view.Households))
		for _, h := range view.Households {
			fmt.Fprintf(w, "  %-36s  %s\n", h.ID, h.Name)
		}
		if len(view.Payments) > 0 {
			fmt.Fprintf(w, "\nPayments (%d):\n", len(view.Payments))
			for _, p := range view.Payments {
				fmt.Fprintf(w, "  %s  %-24s %s\n", formatTime(&p.PaymentTime), truncate(p.DataProvider, 24), p.Reference)
			}
		}
		return nil
	})
}

func parsePaymentTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --paid-at %q: %w", s, err)
	}
	return t, nil
}
