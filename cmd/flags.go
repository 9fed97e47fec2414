package cmd

import (
	"time"

	"github.com/otherjamesbrown/foodwaste-data/config"
)

// GlobalFlags holds the root command's persistent flags. Zero values leave
// the loaded configuration untouched.
type GlobalFlags struct {
	ConfigPath string
	Timeout    time.Duration
	Output     string
	Driver     string
	Debug      bool
}

// Global is populated by the root command before any subcommand runs.
var Global GlobalFlags

// LoadConfig loads the configuration file named by --config, or the default
// one.
func LoadConfig() (*config.CLIConfig, error) {
	if Global.ConfigPath != "" {
		return config.LoadConfigFrom(Global.ConfigPath)
	}
	return config.LoadConfig()
}

// applyOverrides applies the global flags on top of file and environment
// settings.
func applyOverrides(cfg *config.CLIConfig) {
	if Global.Timeout > 0 {
		cfg.Timeout = Global.Timeout
	}
	if Global.Output != "" {
		cfg.OutputFormat = config.OutputFormat(Global.Output)
	}
	if Global.Driver != "" {
		cfg.Driver = Global.Driver
	}
	if Global.Debug {
		cfg.Debug = true
	}
}
