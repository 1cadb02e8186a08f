// Package testutil provides testing utilities for cthyb.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded random sources and small impurity problems with
// closed-form solutions.
//
// # Random Sources
//
//	rng := testutil.NewRNG(seed)
//	r := rng.Rand()          // math/rand/v2 generator
//	taus := rng.Times(8, 10) // sorted imaginary times in [0, 10)
//
// # Reference Problems
//
//	p := testutil.ResonantLevel(beta, eps, v, epsBath, nTau)
//	n := p.ExactOccupation()
//	g := p.ExactG(tau)
package testutil
