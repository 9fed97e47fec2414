package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/foodwaste-data/pkg/buildinfo"
	"github.com/otherjamesbrown/foodwaste-data/pkg/db"
	"github.com/otherjamesbrown/foodwaste-data/pkg/logging"
)

// ServiceName identifies this binary in build info and metrics.
const ServiceName = "fwdata"

var serveListen string

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return newServeCommand(DefaultDeps())
}

func newServeCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose database metrics and health over HTTP",
		Long: `Keep a connection pool open and serve:

  /metrics   Prometheus metrics, including connection pool statistics
  /healthz   Database health as JSON (503 when unhealthy)
  /version   Build information

Runs until interrupted.`,
		Example: `  fwdata serve --listen :9187`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), deps)
		},
	}
	cmd.Flags().StringVar(&serveListen, "listen", ":9187", "Address to listen on")
	return cmd
}

type healthResponse struct {
	Healthy           bool   `json:"healthy"`
	LatencyMs         int64  `json:"latency_ms"`
	TotalConns        int32  `json:"total_conns"`
	IdleConns         int32  `json:"idle_conns"`
	AcquiredConns     int32  `json:"acquired_conns"`
	PendingMigrations int    `json:"pending_migrations"`
	Error             string `json:"error,omitempty"`
}

// newServeMux builds the handlers served by 'fwdata serve'.
func newServeMux(pool *pgxpool.Pool, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/version", buildinfo.Handler(ServiceName))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := db.Check(r.Context(), pool)
		resp := healthResponse{
			Healthy:           status.Healthy,
			LatencyMs:         status.Latency.Milliseconds(),
			TotalConns:        status.TotalConns,
			IdleConns:         status.IdleConns,
			AcquiredConns:     status.AcquiredConns,
			PendingMigrations: status.PendingMigrations,
		}
		if status.Error != nil {
			resp.Error = status.Error.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func runServe(ctx context.Context, deps *Deps) error {
	cfg, err := loadConfig(deps)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LoggerConfig()).With(logging.F("component", "serve"))

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close(pool)

	if _, err := db.RegisterPoolStatsCollector(prometheus.DefaultRegisterer, pool, cfg.MetricsNamespace, ServiceName); err != nil {
		return fmt.Errorf("registering pool metrics: %w", err)
	}

	srv := &http.Server{
		Addr:              serveListen,
		Handler:           newServeMux(pool, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", logging.F("addr", serveListen), logging.F("version", buildinfo.String()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("Shutting down metrics server")
	return srv.Shutdown(shutdownCtx)
}
