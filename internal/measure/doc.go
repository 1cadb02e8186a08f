// Package measure implements the accumulators sampled once per measurement
// cycle. Every accumulator keeps its raw sums in a flat buffer so that
// independent chains can be reduced by elementwise addition before the
// result is normalised by the summed sign.
//
// Estimators built from the hybridization matrix (G(τ), Legendre
// coefficients, G2) weight each sample with the measurement sign. Estimators
// built from the local trace (static observables, correlators, moments,
// the density matrix) slide extra local operators analytically through the
// gaps of the configuration and weight the result with sign/atomic weight.
package measure
