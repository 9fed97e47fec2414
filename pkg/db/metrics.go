package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsCollector exports pgxpool statistics as Prometheus metrics. Values
// are read from the pool on every scrape.
type PoolStatsCollector struct {
	pool *pgxpool.Pool

	totalConns      *prometheus.Desc
	idleConns       *prometheus.Desc
	acquiredConns   *prometheus.Desc
	maxConns        *prometheus.Desc
	acquires        *prometheus.Desc
	emptyAcquires   *prometheus.Desc
	canceledAcquire *prometheus.Desc
	acquireSeconds  *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for pool. The store label tells
// several pools of one process apart.
func NewPoolStatsCollector(pool *pgxpool.Pool, namespace, store string) *PoolStatsCollector {
	constLabels := prometheus.Labels{"store": store}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, constLabels)
	}

	return &PoolStatsCollector{
		pool:            pool,
		totalConns:      desc("total_conns", "Total number of connections currently open in the pool"),
		idleConns:       desc("idle_conns", "Number of idle connections in the pool"),
		acquiredConns:   desc("acquired_conns", "Number of connections currently acquired from the pool"),
		maxConns:        desc("max_conns", "Maximum number of connections allowed in the pool"),
		acquires:        desc("acquires_total", "Number of successful connection acquires"),
		emptyAcquires:   desc("empty_acquires_total", "Number of acquires that had to wait for a connection"),
		canceledAcquire: desc("canceled_acquires_total", "Number of acquires canceled by their context"),
		acquireSeconds:  desc("acquire_seconds_total", "Total time spent waiting for connections"),
	}
}

// Describe sends all metric descriptors to the channel.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.acquiredConns
	ch <- c.maxConns
	ch <- c.acquires
	ch <- c.emptyAcquires
	ch <- c.canceledAcquire
	ch <- c.acquireSeconds
}

// Collect gathers current pool statistics and sends them as metrics.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}

	stats := c.pool.Stat()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.totalConns, float64(stats.TotalConns()))
	gauge(c.idleConns, float64(stats.IdleConns()))
	gauge(c.acquiredConns, float64(stats.AcquiredConns()))
	gauge(c.maxConns, float64(stats.MaxConns()))
	counter(c.acquires, float64(stats.AcquireCount()))
	counter(c.emptyAcquires, float64(stats.EmptyAcquireCount()))
	counter(c.canceledAcquire, float64(stats.CanceledAcquireCount()))
	counter(c.acquireSeconds, stats.AcquireDuration().Seconds())
}

// RegisterPoolStatsCollector creates a collector for pool and registers it
// with reg. A collector that is already registered is not an error.
func RegisterPoolStatsCollector(reg prometheus.Registerer, pool *pgxpool.Pool, namespace, store string) (*PoolStatsCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collector := NewPoolStatsCollector(pool, namespace, store)
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
	}
	return collector, nil
}
