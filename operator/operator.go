package operator

import (
	"fmt"
	"sort"
	"strings"
)

// Index identifies a fundamental operator.
type Index struct {
	Block string
	Inner string
}

func (i Index) String() string { return i.Block + "," + i.Inner }

// Factor is one creation or annihilation operator of a monomial.
type Factor struct {
	Dagger bool
	Index  Index
}

func (f Factor) String() string {
	if f.Dagger {
		return "c†(" + f.Index.String() + ")"
	}
	return "c(" + f.Index.String() + ")"
}

// Term is a coefficient times a monomial.
type Term struct {
	Coef complex128
	Ops  []Factor
}

// Expr is an immutable sum of terms.
type Expr struct {
	terms []Term
}

// C returns the annihilation operator c(block, inner).
func C(block, inner string) Expr {
	return Expr{terms: []Term{{Coef: 1, Ops: []Factor{{Index: Index{block, inner}}}}}}
}

// CDag returns the creation operator c†(block, inner).
func CDag(block, inner string) Expr {
	return Expr{terms: []Term{{Coef: 1, Ops: []Factor{{Dagger: true, Index: Index{block, inner}}}}}}
}

// N returns the number operator c†c.
func N(block, inner string) Expr {
	return CDag(block, inner).Mul(C(block, inner))
}

// Const returns a constant expression.
func Const(x float64) Expr {
	if x == 0 {
		return Expr{}
	}
	return Expr{terms: []Term{{Coef: complex(x, 0)}}}
}

// Sum adds all expressions.
func Sum(es ...Expr) Expr {
	var out []Term
	for _, e := range es {
		out = append(out, e.terms...)
	}
	return simplify(out)
}

// Add returns e + f.
func (e Expr) Add(f Expr) Expr { return Sum(e, f) }

// Sub returns e - f.
func (e Expr) Sub(f Expr) Expr { return Sum(e, f.Scale(-1)) }

// Scale returns x·e.
func (e Expr) Scale(x float64) Expr { return e.ScaleComplex(complex(x, 0)) }

// ScaleComplex returns z·e.
func (e Expr) ScaleComplex(z complex128) Expr {
	out := make([]Term, len(e.terms))
	for k, t := range e.terms {
		out[k] = Term{Coef: t.Coef * z, Ops: t.Ops}
	}
	return simplify(out)
}

// Mul returns the product e·f.
func (e Expr) Mul(f Expr) Expr {
	out := make([]Term, 0, len(e.terms)*len(f.terms))
	for _, a := range e.terms {
		for _, b := range f.terms {
			ops := make([]Factor, 0, len(a.Ops)+len(b.Ops))
			ops = append(ops, a.Ops...)
			ops = append(ops, b.Ops...)
			out = append(out, Term{Coef: a.Coef * b.Coef, Ops: ops})
		}
	}
	return simplify(out)
}

// Dagger returns the hermitian conjugate of e.
func (e Expr) Dagger() Expr {
	out := make([]Term, len(e.terms))
	for k, t := range e.terms {
		ops := make([]Factor, len(t.Ops))
		for i, f := range t.Ops {
			ops[len(ops)-1-i] = Factor{Dagger: !f.Dagger, Index: f.Index}
		}
		out[k] = Term{Coef: complex(real(t.Coef), -imag(t.Coef)), Ops: ops}
	}
	return simplify(out)
}

// Terms returns the terms of e. The slice must not be modified.
func (e Expr) Terms() []Term { return e.terms }

// IsZero reports whether e has no terms.
func (e Expr) IsZero() bool { return len(e.terms) == 0 }

// IsEven reports whether every term has an even number of factors.
func (e Expr) IsEven() bool {
	for _, t := range e.terms {
		if len(t.Ops)%2 != 0 {
			return false
		}
	}
	return true
}

// Indices returns the distinct fundamental operators used by e.
func (e Expr) Indices() []Index {
	seen := make(map[Index]struct{})
	var out []Index
	for _, t := range e.terms {
		for _, f := range t.Ops {
			if _, ok := seen[f.Index]; !ok {
				seen[f.Index] = struct{}{}
				out = append(out, f.Index)
			}
		}
	}
	return out
}

func (e Expr) String() string {
	if len(e.terms) == 0 {
		return "0"
	}
	parts := make([]string, len(e.terms))
	for k, t := range e.terms {
		var sb strings.Builder
		if imag(t.Coef) == 0 {
			fmt.Fprintf(&sb, "%g", real(t.Coef))
		} else {
			fmt.Fprintf(&sb, "%g", t.Coef)
		}
		for _, f := range t.Ops {
			sb.WriteString("*")
			sb.WriteString(f.String())
		}
		parts[k] = sb.String()
	}
	return strings.Join(parts, " + ")
}

func monomialKey(ops []Factor) string {
	var sb strings.Builder
	for _, f := range ops {
		sb.WriteString(f.String())
		sb.WriteByte(';')
	}
	return sb.String()
}

func simplify(terms []Term) Expr {
	index := make(map[string]int, len(terms))
	var out []Term
	for _, t := range terms {
		key := monomialKey(t.Ops)
		if k, ok := index[key]; ok {
			out[k].Coef += t.Coef
			continue
		}
		index[key] = len(out)
		out = append(out, t)
	}
	kept := out[:0]
	for _, t := range out {
		if t.Coef != 0 {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(a, b int) bool {
		if len(kept[a].Ops) != len(kept[b].Ops) {
			return len(kept[a].Ops) < len(kept[b].Ops)
		}
		return monomialKey(kept[a].Ops) < monomialKey(kept[b].Ops)
	})
	return Expr{terms: kept}
}
