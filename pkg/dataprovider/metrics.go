package dataprovider

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times the commands executed by a provider.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates provider metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dataprovider",
				Name:      "commands_total",
				Help:      "Total number of SQL commands executed by data providers",
			},
			[]string{"scope", "kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dataprovider",
				Name:      "command_duration_seconds",
				Help:      "Duration of SQL commands executed by data providers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope", "kind"},
		),
	}
}

// Register registers the metrics with reg. Already registered collectors are
// accepted.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.commands, m.duration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// observe is safe on a nil receiver so providers can run without metrics.
func (m *Metrics) observe(scope Scope, kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commands.WithLabelValues(string(scope), kind, outcome).Inc()
	m.duration.WithLabelValues(string(scope), kind).Observe(time.Since(start).Seconds())
}
