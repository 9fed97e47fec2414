package dataprovider

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.observe(ScopeSystem, "query", time.Now(), nil)
	m.observe(ScopeSystem, "query", time.Now(), nil)
	m.observe(ScopeHousehold, "exec", time.Now(), errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.commands.WithLabelValues("system", "query", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("household", "exec", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestMetrics_RegisterTwice(t *testing.T) {
	m := NewMetrics("test")
	reg := prometheus.NewRegistry()

	require.NoError(t, m.Register(reg))
	assert.NoError(t, m.Register(reg))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observe(ScopeSystem, "query", time.Now(), nil)
	})
}
