package cthyb

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	var m BasicMetricsCollector
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				m.RecordMove("insert", i%4 == 0)
				m.RecordCycle("warmup")
				m.RecordCycle("measure")
				m.RecordRegeneration(float64(w*100+i) * 1e-12)
			}
		}()
	}
	wg.Wait()

	s := m.GetStats()
	assert.Equal(t, int64(400), s.MovesAttempted)
	assert.Equal(t, int64(100), s.MovesAccepted)
	assert.InDelta(t, 0.25, s.AcceptanceRate, 1e-12)
	assert.Equal(t, int64(400), s.WarmupCycles)
	assert.Equal(t, int64(400), s.MeasureCycles)
	assert.Equal(t, int64(400), s.Regenerations)
	assert.InDelta(t, 399e-12, s.MaxDrift, 1e-18)

	var noop NoopMetricsCollector
	noop.RecordMove("shift", true)
	assert.Zero(t, (&BasicMetricsCollector{}).GetStats().AcceptanceRate)
}
