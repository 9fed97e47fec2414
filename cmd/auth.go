package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/foodwaste-data/config"
	"github.com/otherjamesbrown/foodwaste-data/credentials"
	"github.com/otherjamesbrown/foodwaste-data/pkg/db"
)

// Auth command flags.
var (
	authPasswordStdin bool
	authNoVerify      bool
)

// NewAuthCommand creates the auth command group.
func NewAuthCommand() *cobra.Command {
	return newAuthCommand(DefaultDeps())
}

func newAuthCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored database password",
		Long: `Manage the database password used by fwdata.

The password is stored in ~/.fwdata/credentials.yaml, encrypted with a key held
in the OS keyring. Set FWDATA_PASSPHRASE to derive the key from a passphrase on
machines without a keyring, or FWDATA_ENCRYPTION_KEY to supply it directly.

The stored password only applies to the host, port, database and user it was
saved for. DB_PASSWORD takes precedence over the stored password.`,
	}

	login := &cobra.Command{
		Use:   "login",
		Short: "Store the database password",
		Long: `Prompt for the database password, check it by connecting, and store it
encrypted for the configured database.`,
		Example: `  fwdata auth login
  echo "$PGPASSWORD" | fwdata auth login --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), deps, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	login.Flags().BoolVar(&authPasswordStdin, "password-stdin", false, "Read the password from stdin")
	login.Flags().BoolVar(&authNoVerify, "no-verify", false, "Store the password without connecting first")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored database password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(deps, cmd.OutOrStdout())
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show where the database password comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(deps, cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(login, logout, status)
	return cmd
}

func runLogin(ctx context.Context, deps *Deps, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}
	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	password, err := readPassword(in, out, cfg)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return errors.New("no password provided")
	}

	if !authNoVerify {
		verify := *cfg
		verify.Database.Password = password
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		pool, err := deps.ConnectToDB(ctx, &verify)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", cfg.Database.Redacted(), err)
		}
		db.Close(pool)
	}

	if err := store.Save(credentials.For(&cfg.Database, password)); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Fprintln(out, "Login successful!")
	fmt.Fprintf(out, "  Database: %s\n", cfg.Database.Redacted())
	fmt.Fprintf(out, "  Password: %s\n", credentials.MaskCredential(password))
	fmt.Fprintf(out, "  Key:      %s\n", store.KeyDescription())
	if credPath, err := credentials.CredentialsPath(); err == nil {
		fmt.Fprintf(out, "\nCredentials stored in: %s\n", credPath)
	}
	return nil
}

// readPassword reads the password from stdin with --password-stdin, and
// otherwise prompts with echo disabled when stdin is a terminal.
func readPassword(in io.Reader, out io.Writer, cfg *config.CLIConfig) (string, error) {
	if !authPasswordStdin {
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprintf(out, "Password for %s@%s: ", cfg.Database.User, cfg.Database.Host)
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(deps *Deps, out io.Writer) error {
	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	if !store.Exists() {
		fmt.Fprintln(out, "No stored credentials found.")
		return nil
	}
	if err := store.Delete(); err != nil {
		return fmt.Errorf("removing credentials: %w", err)
	}

	fmt.Fprintln(out, "Logged out successfully.")
	fmt.Fprintln(out, "Stored credentials have been removed.")
	if os.Getenv("DB_PASSWORD") != "" {
		fmt.Fprintln(out, "\nNote: DB_PASSWORD environment variable is still set.")
	}
	return nil
}

func runAuthStatus(deps *Deps, out io.Writer) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}
	store, err := deps.OpenStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	fmt.Fprintln(out, "Authentication Status")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintf(out, "Database: %s\n\n", cfg.Database.Redacted())

	if env := os.Getenv("DB_PASSWORD"); env != "" {
		fmt.Fprintf(out, "DB_PASSWORD: %s (active)\n\n", credentials.MaskCredential(env))
	}

	creds, err := store.Load()
	if errors.Is(err, credentials.ErrNoCredentials) {
		fmt.Fprintln(out, "Stored Credentials: None")
		fmt.Fprintln(out, "\nRun 'fwdata auth login' to store the database password.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	fmt.Fprintln(out, "Stored Credentials:")
	fmt.Fprintf(out, "  Server:   %s:%d\n", creds.Host, creds.Port)
	fmt.Fprintf(out, "  Database: %s\n", creds.Database)
	fmt.Fprintf(out, "  User:     %s\n", creds.User)
	fmt.Fprintf(out, "  Password: %s\n", credentials.MaskCredential(creds.Password))
	fmt.Fprintf(out, "  Updated:  %s\n", credentials.FormatAge(creds.LastUpdated, deps.Now()))
	fmt.Fprintf(out, "  Key:      %s\n", store.KeyDescription())
	if !creds.Matches(&cfg.Database) {
		fmt.Fprintln(out, "\n\033[33mWarning:\033[0m stored credentials are for a different database and will not be used.")
	}
	return nil
}
