package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/foodwaste-data/config"
)

// NewConfigCommand creates the config command with all subcommands.
func NewConfigCommand() *cobra.Command {
	return newConfigCommand(DefaultDeps())
}

func newConfigCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `View and modify the fwdata configuration settings in ~/.fwdata/config.yaml.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long: `Display the effective configuration: the config file with environment
variables and global flags applied. The database password is never shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(deps)
			if err != nil {
				return err
			}
			return outputConfig(cmd.OutOrStdout(), cfg)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  `Create a new configuration file with default values if one doesn't exist.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout())
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file.

Available keys:
  database.host      - PostgreSQL host
  database.port      - PostgreSQL port
  database.name      - Database name
  database.user      - Database user
  database.sslmode   - SSL mode (disable, require, verify-full, ...)
  driver             - Data provider driver (pgx, pq)
  timeout            - Command timeout (e.g., 30s, 1m)
  output_format      - Default output format (text, json, yaml)
  culture            - Culture of food names (e.g., en-US, da)
  logging.level      - Log level (debug, info, warn, error)
  logging.json       - Log as JSON (true/false)
  events.enabled     - Publish events to Redis (true/false)
  events.host        - Redis host
  events.port        - Redis port
  metrics_namespace  - Prometheus metric namespace
  debug              - Enable debug mode (true/false)`,
		Example: `  fwdata config set database.host db.internal
  fwdata config set timeout 1m
  fwdata config set events.enabled true`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := config.LoadConfig()
			if err != nil {
				current = config.DefaultConfig()
			}
			if err := setConfigValue(current, args[0], args[1]); err != nil {
				return err
			}
			if err := current.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfig(current); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(show, initCmd, set)
	return cmd
}

func outputConfig(out io.Writer, cfg *config.CLIConfig) error {
	configPath, _ := config.ConfigPath()
	if Global.ConfigPath != "" {
		configPath = Global.ConfigPath
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Config file:    %s\n", configPath)
	fmt.Fprintf(out, "  Database:       %s\n", cfg.Database.Redacted())
	fmt.Fprintf(out, "  Driver:         %s\n", cfg.Driver)
	fmt.Fprintf(out, "  Timeout:        %s\n", cfg.Timeout)
	fmt.Fprintf(out, "  Output format:  %s\n", cfg.OutputFormat)
	fmt.Fprintf(out, "  Culture:        %s\n", cultureName(cfg))
	fmt.Fprintf(out, "  Log level:      %s (json: %t)\n", cfg.LoggerConfig().Level, cfg.Logging.JSON)
	if cfg.Events.Enabled {
		fmt.Fprintf(out, "  Events:         redis %s:%d/%d\n", cfg.Events.Host, cfg.Events.Port, cfg.Events.DB)
	} else {
		fmt.Fprintln(out, "  Events:         disabled")
	}
	fmt.Fprintf(out, "  Metrics:        %s_*\n", cfg.MetricsNamespace)
	fmt.Fprintf(out, "  Debug:          %t\n", cfg.Debug)
	return nil
}

func runConfigInit(out io.Writer) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
		fmt.Fprintln(out, "Use 'fwdata config show' to view current settings.")
		return nil
	}

	defaults := config.DefaultConfig()
	if err := config.SaveConfig(defaults); err != nil {
		return fmt.Errorf("saving configuration: %w", err)
	}

	fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
	fmt.Fprintln(out, "\nDefault settings:")
	fmt.Fprintf(out, "  Database:       %s\n", defaults.Database.Redacted())
	fmt.Fprintf(out, "  Timeout:        %s\n", defaults.Timeout)
	fmt.Fprintf(out, "  Output format:  %s\n", defaults.OutputFormat)
	fmt.Fprintln(out, "\nRun 'fwdata auth login' to store the database password.")
	return nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %s (must be true or false)", key, value)
	}
	return b, nil
}

func parsePort(key, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid %s value: %s", key, value)
	}
	return port, nil
}

// setConfigValue applies one key of 'config set' to cfg.
func setConfigValue(cfg *config.CLIConfig, key, value string) error {
	var err error
	switch key {
	case "database.host":
		cfg.Database.Host = value
	case "database.port":
		cfg.Database.Port, err = parsePort(key, value)
	case "database.name":
		cfg.Database.Database = value
	case "database.user":
		cfg.Database.User = value
	case "database.sslmode":
		cfg.Database.SSLMode = value
	case "driver":
		if value != config.DriverPgx && value != config.DriverPQ {
			return fmt.Errorf("invalid driver: %s (must be pgx or pq)", value)
		}
		cfg.Driver = value
	case "timeout":
		var d time.Duration
		if d, err = time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		cfg.Timeout = d
	case "output_format":
		format := config.OutputFormat(value)
		if !format.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
		}
		cfg.OutputFormat = format
	case "culture":
		cfg.Culture = value
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.json":
		cfg.Logging.JSON, err = parseBool(key, value)
	case "events.enabled":
		cfg.Events.Enabled, err = parseBool(key, value)
	case "events.host":
		cfg.Events.Host = value
	case "events.port":
		cfg.Events.Port, err = parsePort(key, value)
	case "metrics_namespace":
		cfg.MetricsNamespace = value
	case "debug":
		cfg.Debug, err = parseBool(key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}
