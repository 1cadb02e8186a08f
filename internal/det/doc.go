// Package det maintains the inverse hybridization matrix of one block.
//
// Rows correspond to creation operators and columns to annihilation
// operators, both sorted by (time, sequence). The tracker stores
// M = D⁻¹ together with sign and log-magnitude of det D and updates them
// with rank-one and rank-two formulas. Every Try* method leaves the tracker untouched;
// Complete applies the pending update and Reject drops it.
package det
