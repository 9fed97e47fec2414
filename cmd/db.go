package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/foodwaste-data/config"
	"github.com/otherjamesbrown/foodwaste-data/migrations"
	"github.com/otherjamesbrown/foodwaste-data/pkg/db"
)

// Database command flags
var (
	dbDryRun       bool
	dbYes          bool
	dbTarget       string
	dbOutput       string
	dbMigrationDir string
)

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand() *cobra.Command {
	return newDbCommand(DefaultDeps())
}

func newDbCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the foodwaste data store.

Manage the schema of the system data and household data tables and check
that the database is reachable.

The db command connects directly to PostgreSQL. Connection settings come from
the config file, DATABASE_URL or the DB_* environment variables. The password
is taken from DB_PASSWORD or from the credential store (see 'fwdata auth login').

Migrations are compiled into the binary. Use --migrations to run SQL files from
a directory instead; they are applied in lexical order (001_..., 002_...) and
tracked in the schema_migrations table.

Examples:
  # Show migration status
  fwdata db status

  # Apply all pending migrations
  fwdata db migrate

  # Preview migrations without applying
  fwdata db migrate --dry-run

  # Check connectivity and pending migrations
  fwdata db health`,
		Aliases: []string{"database", "migrations"},
	}

	cmd.PersistentFlags().StringVarP(&dbMigrationDir, "migrations", "m", "", "Path to a migrations directory (default: embedded migrations)")

	cmd.AddCommand(newDbMigrateCommand(deps))
	cmd.AddCommand(newDbStatusCommand(deps))
	cmd.AddCommand(newDbHealthCommand(deps))

	return cmd
}

// newDbMigrateCommand creates the 'db migrate' subcommand.
func newDbMigrateCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending database migrations.

Shows pending migrations before applying them. Each migration runs in its own
transaction and is recorded in the schema_migrations table. If a migration
fails, its transaction is rolled back and no further migrations are attempted.

Flags:
  --dry-run      Show what would be applied without executing migrations
  --target       Apply migrations up to and including this version (e.g., 002)
  --yes          Apply without asking for confirmation
  --migrations   Path to a migrations directory`,
		Example: `  fwdata db migrate
  fwdata db migrate --dry-run
  fwdata db migrate --target 001 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd.Context(), deps, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&dbDryRun, "dry-run", false, "Show what would be applied without executing")
	cmd.Flags().BoolVarP(&dbYes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().StringVarP(&dbTarget, "target", "t", "", "Target version to migrate to (e.g., 002)")

	return cmd
}

// newDbStatusCommand creates the 'db status' subcommand.
func newDbStatusCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database migration status",
		Long: `Show the current state of database migrations.

Displays three categories of migrations:
  - Applied: migrations that have been applied and have corresponding files
  - Pending: migrations with files that have not been applied yet
  - Drift: migrations that were applied but no longer have corresponding files

Flags:
  --output       Output format: text, json, yaml (default: text)
  --format       Alias for --output`,
		Example: `  fwdata db status
  fwdata db status --output json
  fwdata db status --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbStatus(cmd.Context(), deps, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&dbOutput, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().StringVarP(&dbOutput, "format", "f", "", "Output format: text, json, yaml (alias for --output)")

	return cmd
}

// newDbHealthCommand creates the 'db health' subcommand.
func newDbHealthCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity",
		Long: `Ping the database and report connection pool statistics and the number of
pending migrations. Exits with an error when the database is unhealthy.`,
		Example: `  fwdata db health`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbHealth(cmd.Context(), deps, cmd.OutOrStdout())
		},
	}
}

// migrationSource returns the embedded migrations unless --migrations names
// a directory.
func migrationSource() (fs.FS, error) {
	if dbMigrationDir == "" {
		return migrations.Files, nil
	}
	dir, err := config.ExpandPath(dbMigrationDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path %s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// confirm asks a yes/no question on in, defaulting to no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/N): ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// runDbMigrate executes the db migrate command.
func runDbMigrate(ctx context.Context, deps *Deps, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}
	source, err := migrationSource()
	if err != nil {
		return err
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	pending, err := db.GetPendingMigrations(ctx, pool, source)
	if err != nil {
		return fmt.Errorf("getting pending migrations: %w", err)
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(out, "Pending migrations (%d):\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "  %s - %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(out)

	if dbDryRun {
		fmt.Fprintln(out, "Dry run mode: no migrations applied.")
		return nil
	}

	if !dbYes && !confirm(in, out, "Apply these migrations?") {
		fmt.Fprintln(out, "Migration cancelled.")
		return nil
	}

	var result *db.MigrationResult
	if dbTarget != "" {
		fmt.Fprintf(out, "Applying migrations up to version %s...\n", dbTarget)
		result, err = db.RunMigrationsToTarget(ctx, pool, source, dbTarget)
	} else {
		fmt.Fprintln(out, "Applying all pending migrations...")
		result, err = db.RunMigrations(ctx, pool, source)
	}

	if err != nil {
		fmt.Fprintf(out, "\n\033[31mMigration failed:\033[0m %v\n", err)
		if result != nil && len(result.Applied) > 0 {
			fmt.Fprintf(out, "\nSuccessfully applied before failure:\n")
			for _, v := range result.Applied {
				fmt.Fprintf(out, "  \033[32m✓\033[0m %s\n", v)
			}
		}
		return err
	}

	printMigrationResult(out, result)
	return nil
}

func printMigrationResult(out io.Writer, result *db.MigrationResult) {
	fmt.Fprintln(out)
	if len(result.Applied) > 0 {
		fmt.Fprintf(out, "\033[32mSuccessfully applied %d migration(s):\033[0m\n", len(result.Applied))
		for _, v := range result.Applied {
			fmt.Fprintf(out, "  \033[32m✓\033[0m %s\n", v)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d migration(s) (already applied):\n", len(result.Skipped))
		for _, v := range result.Skipped {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "\033[32mMigrations completed successfully.\033[0m")
}

// runDbStatus executes the db status command.
func runDbStatus(ctx context.Context, deps *Deps, out io.Writer) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}
	format, err := resolveFormat(cfg, dbOutput)
	if err != nil {
		return err
	}
	source, err := migrationSource()
	if err != nil {
		return err
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	status, err := db.GetMigrationStatus(ctx, pool, source)
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	return outputMigrationStatus(out, format, status)
}

// runDbHealth executes the db health command.
func runDbHealth(ctx context.Context, deps *Deps, out io.Writer) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	return outputHealth(out, cfg.Database.Redacted(), db.Check(ctx, pool))
}

func outputHealth(out io.Writer, target string, status *db.HealthStatus) error {
	fmt.Fprintf(out, "Database:    %s\n", target)
	if !status.Healthy {
		fmt.Fprintf(out, "Status:      \033[31munhealthy\033[0m\n")
		return fmt.Errorf("database unhealthy: %w", status.Error)
	}
	fmt.Fprintf(out, "Status:      \033[32mhealthy\033[0m\n")
	fmt.Fprintf(out, "Latency:     %s\n", status.Latency.Round(100*time.Microsecond))
	fmt.Fprintf(out, "Connections: %d total, %d idle, %d acquired\n", status.TotalConns, status.IdleConns, status.AcquiredConns)
	if status.PendingMigrations > 0 {
		fmt.Fprintf(out, "Migrations:  \033[33m%d pending\033[0m (run 'fwdata db migrate')\n", status.PendingMigrations)
	} else {
		fmt.Fprintln(out, "Migrations:  up to date")
	}
	return nil
}

// outputMigrationStatus formats and outputs migration status.
func outputMigrationStatus(out io.Writer, format config.OutputFormat, status *db.MigrationStatus) error {
	return writeOutput(out, format, status, func(w io.Writer) error {
		return outputMigrationStatusText(w, status)
	})
}

func printStatusEntries(out io.Writer, entries []db.MigrationStatusEntry, withApplied bool) {
	if withApplied {
		fmt.Fprintln(out, "  VERSION                    NAME                              APPLIED")
		fmt.Fprintln(out, "  -------                    ----                              -------")
	} else {
		fmt.Fprintln(out, "  VERSION                    NAME")
		fmt.Fprintln(out, "  -------                    ----")
	}
	for _, m := range entries {
		if withApplied {
			fmt.Fprintf(out, "  %-26s %-33s %s\n", truncate(m.Version, 26), truncate(m.Name, 33), formatTime(m.AppliedAt))
		} else {
			fmt.Fprintf(out, "  %-26s %s\n", truncate(m.Version, 26), m.Name)
		}
	}
	fmt.Fprintln(out)
}

// outputMigrationStatusText formats migration status for terminal display.
func outputMigrationStatusText(out io.Writer, status *db.MigrationStatus) error {
	if len(status.Applied) == 0 && len(status.Pending) == 0 && len(status.Drift) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return nil
	}

	if len(status.Applied) > 0 {
		fmt.Fprintf(out, "\033[32mApplied Migrations (%d):\033[0m\n", len(status.Applied))
		printStatusEntries(out, status.Applied, true)
	}
	if len(status.Pending) > 0 {
		fmt.Fprintf(out, "\033[33mPending Migrations (%d):\033[0m\n", len(status.Pending))
		printStatusEntries(out, status.Pending, false)
	}
	// Applied but the file is gone.
	if len(status.Drift) > 0 {
		fmt.Fprintf(out, "\033[31mDrift (%d) - applied but file missing:\033[0m\n", len(status.Drift))
		printStatusEntries(out, status.Drift, true)
	}

	fmt.Fprintf(out, "Summary: %d applied, %d pending", len(status.Applied), len(status.Pending))
	if len(status.Drift) > 0 {
		fmt.Fprintf(out, ", \033[31m%d drift\033[0m", len(status.Drift))
	}
	fmt.Fprintln(out)

	return nil
}
