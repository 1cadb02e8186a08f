package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cthyb"
)

var _ cthyb.MetricsCollector = (*PrometheusCollector)(nil)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	for i := range 10 {
		c.RecordMove("insert", i < 3)
	}
	c.RecordMove("shift", true)
	c.RecordCycle("warmup")
	c.RecordCycle("measure")
	c.RecordCycle("measure")
	c.RecordRegeneration(1e-10)
	c.RecordRegeneration(1e-9)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.moves.WithLabelValues("insert", "true")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.moves.WithLabelValues("insert", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.moves.WithLabelValues("shift", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cycles.WithLabelValues("measure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.regenerations))

	n, err := testutil.GatherAndCount(reg, "cthyb_determinant_drift")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Registering twice on the same registry panics.
	assert.Panics(t, func() { NewPrometheusCollector(reg) })
}
