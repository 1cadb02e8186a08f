// Package moves implements the Metropolis proposals of the hybridization
// expansion.
//
// Every move follows the same contract: Attempt modifies the configuration
// and prepares the determinant update, returning the signed acceptance
// ratio (0 for an impossible proposal); the driver then calls exactly one of
// Accept or Reject. Reject restores the configuration, the determinants and
// the weight exactly.
package moves
