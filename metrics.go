package cthyb

import (
	"math"
	"sync/atomic"
)

// MetricsCollector defines an interface for collecting sampling metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus; see package metrics for a ready-made adapter.
//
// Chains run concurrently, so implementations must be safe for concurrent
// use.
type MetricsCollector interface {
	// RecordMove is called after every Metropolis proposal.
	RecordMove(name string, accepted bool)

	// RecordCycle is called after every cycle. phase is "warmup" or
	// "measure".
	RecordCycle(phase string)

	// RecordRegeneration is called when determinants were rebuilt from
	// scratch, with the largest relative drift found.
	RecordRegeneration(drift float64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordMove(string, bool)    {}
func (NoopMetricsCollector) RecordCycle(string)         {}
func (NoopMetricsCollector) RecordRegeneration(float64) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	MovesAttempted atomic.Int64
	MovesAccepted  atomic.Int64
	WarmupCycles   atomic.Int64
	MeasureCycles  atomic.Int64
	Regenerations  atomic.Int64
	maxDriftBits   atomic.Uint64
}

// RecordMove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMove(_ string, accepted bool) {
	b.MovesAttempted.Add(1)
	if accepted {
		b.MovesAccepted.Add(1)
	}
}

// RecordCycle implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCycle(phase string) {
	if phase == "warmup" {
		b.WarmupCycles.Add(1)
		return
	}
	b.MeasureCycles.Add(1)
}

// RecordRegeneration implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegeneration(drift float64) {
	b.Regenerations.Add(1)
	for {
		old := b.maxDriftBits.Load()
		if drift <= math.Float64frombits(old) {
			return
		}
		if b.maxDriftBits.CompareAndSwap(old, math.Float64bits(drift)) {
			return
		}
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		MovesAttempted: b.MovesAttempted.Load(),
		MovesAccepted:  b.MovesAccepted.Load(),
		WarmupCycles:   b.WarmupCycles.Load(),
		MeasureCycles:  b.MeasureCycles.Load(),
		Regenerations:  b.Regenerations.Load(),
		MaxDrift:       math.Float64frombits(b.maxDriftBits.Load()),
	}
	if s.MovesAttempted > 0 {
		s.AcceptanceRate = float64(s.MovesAccepted) / float64(s.MovesAttempted)
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	MovesAttempted int64
	MovesAccepted  int64
	AcceptanceRate float64
	WarmupCycles   int64
	MeasureCycles  int64
	Regenerations  int64
	MaxDrift       float64
}
