// Package qmc holds the state of one Markov chain: the configuration, the
// determinant trackers of all blocks, the trace evaluator, the random source
// and the current weight and sign. Moves and measures receive the Data
// explicitly.
package qmc
