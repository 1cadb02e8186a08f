// Package hilbert partitions the local Fock space into invariant subspaces
// and diagonalises the local Hamiltonian in each of them.
//
// A Structure is the read-only result: subspaces with their (ground-state
// shifted) eigenvalues, and for every fundamental operator a connection
// table subspace -> subspace plus the matrix block in the eigenbasis.
//
// Three partitioners are provided:
//
//   - Autopartition: finest partition that is invariant under H and maps
//     every subspace into at most one subspace under each c and c†
//   - QuantumNumbers: sectors of user supplied conserved operators
//   - Single: one subspace holding the whole Fock space
package hilbert
