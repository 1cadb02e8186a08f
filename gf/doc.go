// Package gf provides imaginary-time meshes and block Green's function
// containers.
//
// Functions use the Green's function sign convention. For a hybridization
// with discrete bath levels ε_k and couplings V_ak,
//
//	Δ_ab(τ) = -Σ_k V_ak V_bk e^{-ε_k τ} / (1 + e^{-β ε_k}),  0 ≤ τ ≤ β,
//
// which is negative on the diagonal.
package gf
