package commands

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts executed commands by outcome.
type Metrics struct {
	executed *prometheus.CounterVec
}

// NewMetrics creates command metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		executed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commands",
				Name:      "executed_total",
				Help:      "Total number of executed commands by outcome",
			},
			[]string{"command", "outcome"},
		),
	}
}

// Register registers the metrics with reg. Already registered collectors are
// accepted.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.executed); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(command string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if fault, ok := AsFault(err); ok {
		outcome = fault.Kind.String()
	} else if err != nil {
		outcome = "error"
	}
	m.executed.WithLabelValues(command, outcome).Inc()
}
