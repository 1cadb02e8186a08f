// Package configuration implements the time-ordered operator store of a
// Monte Carlo configuration.
//
// Operators live in an index arena and are organised as a treap keyed by
// (time, sequence number). Node priorities are a hash of the sequence number,
// so the tree shape is a pure function of its contents and an insert followed
// by the matching remove restores the store bit-for-bit.
//
// Every node caches the subspace map of its subtree: for each starting
// subspace, the subspace reached after applying the subtree's operators in
// ascending time order (-1 once the state is annihilated). Maps are rebuilt
// lazily, only for nodes touched since the last query.
package configuration
