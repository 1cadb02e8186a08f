package timept

import "math"

// Ticks is the exclusive upper bound of a Time (the tick that maps to β).
const Ticks uint64 = 1 << 62

// Time is a point on the imaginary-time circle, in ticks.
type Time uint64

// Zero is τ = 0.
const Zero Time = 0

// Source is the random source used to draw times.
type Source interface {
	Uint64() uint64
}

// Scale maps ticks to imaginary time for a given inverse temperature.
type Scale struct {
	beta float64
}

// NewScale returns a Scale for β = beta.
func NewScale(beta float64) Scale {
	return Scale{beta: beta}
}

// Beta returns β.
func (s Scale) Beta() float64 { return s.beta }

// Float returns t as imaginary time in [0, β).
func (s Scale) Float(t Time) float64 {
	return float64(t) / float64(Ticks) * s.beta
}

// Duration converts a tick count to an imaginary-time length.
func (s Scale) Duration(ticks uint64) float64 {
	return float64(ticks) / float64(Ticks) * s.beta
}

// FromFloat returns the tick closest to tau, clamped to [0, Ticks).
func (s Scale) FromFloat(tau float64) Time {
	if tau <= 0 || s.beta <= 0 {
		return Zero
	}
	x := math.Round(tau / s.beta * float64(Ticks))
	if x >= float64(Ticks) {
		return Time(Ticks - 1)
	}
	return Time(uint64(x))
}

// Random draws a uniformly distributed time.
func Random(r Source) Time {
	return Time(r.Uint64() & (Ticks - 1))
}

// Sub returns the cyclic distance a-b in ticks and whether it wrapped
// around β (a < b).
func Sub(a, b Time) (uint64, bool) {
	if a >= b {
		return uint64(a - b), false
	}
	return Ticks - uint64(b-a), true
}

// Between draws a time uniformly in the open cyclic interval (lo, hi) of
// length n ticks measured from lo. n must be at least 2.
func Between(r Source, lo Time, n uint64) Time {
	off := 1 + r.Uint64()%(n-1)
	return Time((uint64(lo) + off) & (Ticks - 1))
}
