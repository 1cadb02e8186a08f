// Package operator provides second-quantised many-body operator expressions.
//
// An Expr is a linear combination of monomials of creation and annihilation
// operators. Expressions are built from C, CDag and N and combined with Add,
// Mul and Scale:
//
//	u := 2.0
//	h := operator.N("up", "0").Mul(operator.N("down", "0")).Scale(u)
//
// Monomials are kept in the order written; no normal ordering is applied.
package operator
