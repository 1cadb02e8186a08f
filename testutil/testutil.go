package testutil

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// RNG encapsulates a seeded random number generator.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewPCG(seed, seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// Rand returns an independent generator seeded from r.
func (r *RNG) Rand() *rand.Rand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rand.New(rand.NewPCG(r.rand.Uint64(), r.rand.Uint64()))
}

// IntN returns a non-negative pseudo-random number in [0,n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Times returns n sorted imaginary times drawn uniformly from [0, beta).
func (r *RNG) Times(n int, beta float64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = r.rand.Float64() * beta
	}
	slices.Sort(out)
	return out
}

// Energies returns n values drawn uniformly from [lo, hi).
func (r *RNG) Energies(n int, lo, hi float64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*r.rand.Float64()
	}
	return out
}
