// Package cmd provides CLI commands for the fwdata tool.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/otherjamesbrown/foodwaste-data/config"
	"github.com/otherjamesbrown/foodwaste-data/credentials"
	"github.com/otherjamesbrown/foodwaste-data/pkg/commands"
	"github.com/otherjamesbrown/foodwaste-data/pkg/dataprovider"
	"github.com/otherjamesbrown/foodwaste-data/pkg/db"
	"github.com/otherjamesbrown/foodwaste-data/pkg/events"
	"github.com/otherjamesbrown/foodwaste-data/pkg/householddata"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
	"github.com/otherjamesbrown/foodwaste-data/pkg/systemdata"
)

// Deps holds the collaborators of the data commands. Tests swap the openers.
type Deps struct {
	LoadConfig  func() (*config.CLIConfig, error)
	OpenSession func(context.Context, *config.CLIConfig) (*Session, error)
	ConnectToDB func(context.Context, *config.CLIConfig) (*pgxpool.Pool, error)
	OpenStore   func() (*credentials.Store, error)
	Now         func() time.Time
}

// DefaultDeps returns the dependencies for production use.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig:  LoadConfig,
		OpenSession: openSession,
		ConnectToDB: connectToDatabase,
		OpenStore:   credentials.NewStore,
		Now:         time.Now,
	}
}

// Session bundles the repositories, publisher and metrics of one CLI run.
type Session struct {
	Config    *config.CLIConfig
	Logger    logging.Logger
	Provider  dataprovider.Provider
	System    *systemdata.Repository
	Household *householddata.Repository

	publisher *events.Publisher
	metrics   *commands.Metrics
	closers   []func()
}

// NewSession wires the repositories over provider. publisher may be nil.
func NewSession(cfg *config.CLIConfig, logger logging.Logger, provider dataprovider.Provider, publisher *events.Publisher) *Session {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Session{
		Config:    cfg,
		Logger:    logger,
		Provider:  provider,
		System:    systemdata.NewRepository(provider, logger),
		Household: householddata.NewRepository(provider, logger),
		publisher: publisher,
		metrics:   commands.NewMetrics(cfg.MetricsNamespace),
	}
}

// HandlerOptions configures command handlers with the session's logger,
// metrics and publisher.
func (s *Session) HandlerOptions(now func() time.Time) []commands.HandlerOption {
	opts := []commands.HandlerOption{
		commands.WithLogger(s.Logger),
		commands.WithMetrics(s.metrics),
	}
	if now != nil {
		opts = append(opts, commands.WithClock(now))
	}
	if s.publisher != nil {
		opts = append(opts, commands.WithPublisher(s.publisher))
	}
	return opts
}

// PublishDeleted announces a deleted object. Failures are logged only.
func (s *Session) PublishDeleted(ctx context.Context, kind string, id uuid.UUID) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDataDeleted(ctx, kind, id); err != nil {
		s.Logger.Warn("Failed to publish deletion", logging.F("kind", kind), logging.Err(err))
	}
}

// Close releases the provider, pool and publisher.
func (s *Session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// resolvePassword fills the database password from the credential store
// when DB_PASSWORD did not provide one. A missing store is not an error.
func resolvePassword(cfg *config.CLIConfig, logger logging.Logger) {
	if cfg.Database.Password != "" {
		return
	}
	store, err := credentials.NewStore()
	if err != nil {
		logger.Debug("Credential store unavailable", logging.Err(err))
		return
	}
	if err := store.ResolvePassword(&cfg.Database); err != nil && !errors.Is(err, credentials.ErrNoCredentials) {
		logger.Warn("Stored credentials not used", logging.Err(err))
	}
}

// openSession connects with the configured driver and wires metrics and the
// optional event publisher.
func openSession(ctx context.Context, cfg *config.CLIConfig) (*Session, error) {
	logger := logging.NewLogger(cfg.LoggerConfig())
	resolvePassword(cfg, logger)

	metrics := dataprovider.NewMetrics(cfg.MetricsNamespace)
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	var (
		provider dataprovider.Provider
		closers  []func()
	)
	switch cfg.Driver {
	case config.DriverPQ:
		p, err := dataprovider.OpenSQLProvider(ctx, cfg.Database.ConnectionString(), logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", cfg.Database.Redacted(), err)
		}
		provider = p
		closers = append(closers, p.Close)
	default:
		p, pool, err := db.OpenProvider(ctx, &cfg.Database, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", cfg.Database.Redacted(), err)
		}
		if _, err := db.RegisterPoolStatsCollector(prometheus.DefaultRegisterer, pool, cfg.MetricsNamespace, "fwdata"); err != nil {
			logger.Warn("Pool metrics not registered", logging.Err(err))
		}
		provider = p
		closers = append(closers, p.Close)
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		pub, err := events.NewPublisherFromConfig(cfg.Events.PublisherConfig(), logger)
		if err != nil {
			logger.Warn("Event publishing disabled", logging.Err(err))
		} else {
			publisher = pub
			closers = append(closers, func() { _ = pub.Close() })
		}
	}

	s := NewSession(cfg, logger, provider, publisher)
	if err := s.metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("Command metrics not registered", logging.Err(err))
	}
	s.closers = closers
	return s, nil
}

// connectToDatabase opens a pgx pool for the db commands.
func connectToDatabase(ctx context.Context, cfg *config.CLIConfig) (*pgxpool.Pool, error) {
	logger := logging.NewLogger(cfg.LoggerConfig())
	resolvePassword(cfg, logger)
	return db.ConnectWithRetry(ctx, &cfg.Database, 3, 2*time.Second, logger)
}

// withSession loads the configuration, opens a session and runs fn with a
// context bounded by the configured timeout.
func withSession(ctx context.Context, deps *Deps, fn func(context.Context, *Session) error) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	s, err := deps.OpenSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}

func loadConfig(deps *Deps) (*config.CLIConfig, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	applyOverrides(cfg)
	return cfg, nil
}
