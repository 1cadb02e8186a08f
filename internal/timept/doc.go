// Package timept provides discrete imaginary-time points.
//
// Times are unsigned integer ticks in [0, Ticks) that map linearly onto
// [0, β). Comparisons and differences are exact, which keeps configuration
// rollbacks bit-for-bit reproducible.
package timept
