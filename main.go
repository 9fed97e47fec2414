// Package main provides the fwdata CLI entry point.
// fwdata manages the household and food-waste system data store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/foodwaste-data/cmd"
	"github.com/otherjamesbrown/foodwaste-data/config"
	"github.com/otherjamesbrown/foodwaste-data/pkg/buildinfo"
)

// Global flags.
var (
	cfgFile      string
	timeout      time.Duration
	outputFormat string
	driver       string
	debug        bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fwdata",
	Short: "fwdata - household and food-waste data store",
	Long: `fwdata manages the PostgreSQL store behind the food-waste household service.

It keeps the schema up to date, inspects and maintains households and their
members, and browses and imports the food groups and food items supplied by
data providers.

COMMON WORKFLOWS:
  Set up:           fwdata config init  →  fwdata auth login  →  fwdata db migrate
  Check database:   fwdata db status  |  fwdata db health
  Households:       fwdata household show <id>  |  fwdata member show <mail>
  Food data:        fwdata foodgroup tree --culture da  |  fwdata fooditem show <id>

Commands support --output json and --output yaml for structured output.`,
	SilenceUsage: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if outputFormat != "" && !config.OutputFormat(outputFormat).IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", outputFormat)
		}
		if driver != "" && driver != config.DriverPgx && driver != config.DriverPQ {
			return fmt.Errorf("invalid driver: %s (must be pgx or pq)", driver)
		}
		cmd.Global = cmd.GlobalFlags{
			ConfigPath: cfgFile,
			Timeout:    timeout,
			Output:     outputFormat,
			Driver:     driver,
			Debug:      debug,
		}
		return nil
	},
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the fwdata CLI.

Examples:
  fwdata version
  fwdata version --output-json`,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get(cmd.ServiceName)
		out := c.OutOrStdout()

		if versionOutputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Fprintf(out, "fwdata version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.fwdata/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Command timeout (e.g., 30s, 2m)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Database driver: pgx, pq")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output version information as JSON")

	rootCmd.AddCommand(cmd.NewDbCommand())
	rootCmd.AddCommand(cmd.NewHouseholdCommand())
	rootCmd.AddCommand(cmd.NewMemberCommand())
	rootCmd.AddCommand(cmd.NewFoodGroupCommand())
	rootCmd.AddCommand(cmd.NewFoodItemCommand())
	rootCmd.AddCommand(cmd.NewAuthCommand())
	rootCmd.AddCommand(cmd.NewConfigCommand())
	rootCmd.AddCommand(cmd.NewServeCommand())
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Cancelling the context lets running commands and 'serve' shut down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
