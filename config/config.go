// Package config provides configuration management for the fwdata command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/foodwaste-data/pkg/db"
	"github.com/otherjamesbrown/foodwaste-data/pkg/events"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultTimeout          = 2 * time.Minute
	DefaultOutputFormat     = OutputFormatText
	DefaultConfigDir        = ".fwdata"
	DefaultConfigFile       = "config.yaml"
	DefaultLogLevel         = "warn"
	DefaultRedisPort        = 6379
	DefaultMetricsNamespace = "fwdata"
)

// Database drivers.
const (
	// DriverPgx talks to PostgreSQL through a pgx connection pool.
	DriverPgx = "pgx"
	// DriverPQ uses database/sql with lib/pq.
	DriverPQ = "pq"
)

// EventsConfig holds the Redis settings of the event publisher.
type EventsConfig struct {
	// Enabled turns publishing of command events on.
	Enabled bool `yaml:"enabled"`

	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
	DB   int    `yaml:"db,omitempty"`

	// Password is only read from FWDATA_REDIS_PASSWORD.
	Password string `yaml:"-"`
}

// PublisherConfig converts the settings for events.NewPublisherFromConfig.
func (e EventsConfig) PublisherConfig() events.PublisherConfig {
	port := e.Port
	if port == 0 {
		port = DefaultRedisPort
	}
	host := e.Host
	if host == "" {
		host = "localhost"
	}
	return events.PublisherConfig{Host: host, Port: port, Password: e.Password, DB: e.DB}
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// Database holds the PostgreSQL connection settings. The password is
	// kept in the credential store, never in the file.
	Database db.Config `yaml:"database"`

	// Driver selects the data provider implementation (pgx or pq).
	Driver string `yaml:"driver"`

	// Events configures the Redis event publisher.
	Events EventsConfig `yaml:"events"`

	Logging LoggingConfig `yaml:"logging"`

	// MetricsNamespace prefixes every exported Prometheus metric.
	MetricsNamespace string `yaml:"metrics_namespace,omitempty"`

	// Timeout bounds a single CLI command.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Culture selects translations shown by the food group and food item commands.
	Culture string `yaml:"culture,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		Database:         *db.DefaultConfig(),
		Driver:           DriverPgx,
		Logging:          LoggingConfig{Level: DefaultLogLevel},
		MetricsNamespace: DefaultMetricsNamespace,
		Timeout:          DefaultTimeout,
		OutputFormat:     DefaultOutputFormat,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $FWDATA_CONFIG_DIR if set, otherwise ~/.fwdata
func ConfigDir() (string, error) {
	if dir := os.Getenv("FWDATA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.fwdata/config.yaml or $FWDATA_CONFIG_DIR/config.yaml)
// 3. Environment variables (FWDATA_* and the DB_* database variables)
func LoadConfig() (*CLIConfig, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom is LoadConfig with an explicit file path. A missing file
// leaves the defaults in place.
func LoadConfigFrom(configPath string) (*CLIConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// configFile is the on-disk shape; the timeout travels as a duration string.
type configFile struct {
	Database         *db.Config     `yaml:"database,omitempty"`
	Driver           string         `yaml:"driver,omitempty"`
	Events           *EventsConfig  `yaml:"events,omitempty"`
	Logging          *LoggingConfig `yaml:"logging,omitempty"`
	MetricsNamespace string         `yaml:"metrics_namespace,omitempty"`
	Timeout          string         `yaml:"timeout,omitempty"`
	OutputFormat     OutputFormat   `yaml:"output_format,omitempty"`
	Culture          string         `yaml:"culture,omitempty"`
	Debug            bool           `yaml:"debug,omitempty"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Sections decode on top of the defaults so partial sections keep them.
	fileCfg := configFile{
		Database: &cfg.Database,
		Events:   &cfg.Events,
		Logging:  &cfg.Logging,
	}
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.Driver != "" {
		cfg.Driver = fileCfg.Driver
	}
	if fileCfg.MetricsNamespace != "" {
		cfg.MetricsNamespace = fileCfg.MetricsNamespace
	}
	if fileCfg.Culture != "" {
		cfg.Culture = fileCfg.Culture
	}
	cfg.Debug = fileCfg.Debug

	return nil
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1"
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	cfg.Database.ApplyEnv()

	if v := os.Getenv("FWDATA_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("FWDATA_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("FWDATA_DB_DRIVER"); v != "" {
		cfg.Driver = v
	}

	if v := os.Getenv("FWDATA_CULTURE"); v != "" {
		cfg.Culture = v
	}

	if envBool("FWDATA_DEBUG") {
		cfg.Debug = true
	}

	if v := os.Getenv("FWDATA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if envBool("FWDATA_LOG_JSON") {
		cfg.Logging.JSON = true
	}

	if v := os.Getenv("FWDATA_METRICS_NAMESPACE"); v != "" {
		cfg.MetricsNamespace = v
	}

	loadEventsFromEnv(cfg)
}

// loadEventsFromEnv overlays the Redis settings of the event publisher.
func loadEventsFromEnv(cfg *CLIConfig) {
	if envBool("FWDATA_EVENTS_ENABLED") {
		cfg.Events.Enabled = true
	}
	if v := os.Getenv("FWDATA_REDIS_HOST"); v != "" {
		cfg.Events.Host = v
	}
	if v := os.Getenv("FWDATA_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Events.Port = port
		}
	}
	if v := os.Getenv("FWDATA_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Events.DB = n
		}
	}
	if v := os.Getenv("FWDATA_REDIS_PASSWORD"); v != "" {
		cfg.Events.Password = v
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	switch logging.Level(c.Logging.Level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("invalid logging.level: %q (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.Driver != DriverPgx && c.Driver != DriverPQ {
		return fmt.Errorf("invalid driver: %q (must be pgx or pq)", c.Driver)
	}

	if c.Events.Port < 0 || c.Events.Port > 65535 {
		return fmt.Errorf("invalid events.port: %d", c.Events.Port)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}

// LoggerConfig builds the logger settings. Debug wins over the configured level.
func (c *CLIConfig) LoggerConfig() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.Level(c.Logging.Level)
	if c.Debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSONFormat = c.Logging.JSON
	return lc
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	fileCfg := configFile{
		Database:         &cfg.Database,
		Events:           &cfg.Events,
		Logging:          &cfg.Logging,
		Driver:           cfg.Driver,
		MetricsNamespace: cfg.MetricsNamespace,
		Timeout:          cfg.Timeout.String(),
		OutputFormat:     cfg.OutputFormat,
		Culture:          cfg.Culture,
		Debug:            cfg.Debug,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
