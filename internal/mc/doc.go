// Package mc runs one Markov chain: it schedules moves in cycles, anneals
// the hybridization during warmup and drives the measurements.
//
// A run goes through the states Init, Warmup, Measure and Done. Stop
// conditions (context cancellation and the wall-clock budget) are checked
// between cycles only. Engines of independent chains are combined with
// Merge, which sums all accumulators elementwise.
package mc
