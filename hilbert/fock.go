package hilbert

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/hupe1980/cthyb/operator"
)

// MaxModes is the largest number of fundamental operators supported.
const MaxModes = 20

type factor struct {
	linear int
	dagger bool
}

type term struct {
	coef float64
	ops  []factor
}

// compiled is an expression resolved against a fundamental set.
type compiled []term

func compile(e operator.Expr, fops *operator.FundamentalSet, imagThreshold float64) (compiled, error) {
	out := make(compiled, 0, len(e.Terms()))
	for _, t := range e.Terms() {
		if math.Abs(imag(t.Coef)) > imagThreshold {
			return nil, fmt.Errorf("%w: %v", ErrComplexCoefficient, t.Coef)
		}
		if real(t.Coef) == 0 {
			continue
		}
		ct := term{coef: real(t.Coef), ops: make([]factor, len(t.Ops))}
		for k, f := range t.Ops {
			p, ok := fops.Position(f.Index)
			if !ok {
				return nil, &ErrUnknownOperator{Index: f.Index}
			}
			ct.ops[k] = factor{linear: p, dagger: f.Dagger}
		}
		out = append(out, ct)
	}
	return out, nil
}

// applyFactor acts with one fundamental operator on a Fock state, with the
// Jordan-Wigner sign of all lower modes.
func applyFactor(state uint64, linear int, dagger bool) (uint64, float64, bool) {
	bit := uint64(1) << linear
	occupied := state&bit != 0
	if occupied == dagger {
		return 0, 0, false
	}
	sign := 1.0
	if bits.OnesCount64(state&(bit-1))%2 == 1 {
		sign = -1
	}
	return state ^ bit, sign, true
}

// applyTerm acts with the monomial of t, rightmost factor first.
func applyTerm(state uint64, t term) (uint64, float64, bool) {
	amp := t.coef
	for k := len(t.ops) - 1; k >= 0; k-- {
		var (
			sign float64
			ok   bool
		)
		state, sign, ok = applyFactor(state, t.ops[k].linear, t.ops[k].dagger)
		if !ok {
			return 0, 0, false
		}
		amp *= sign
	}
	return state, amp, true
}

// image returns the non-zero components of op|state⟩.
func (c compiled) image(state uint64) map[uint64]float64 {
	out := make(map[uint64]float64)
	for _, t := range c {
		if s, amp, ok := applyTerm(state, t); ok {
			out[s] += amp
		}
	}
	for s, amp := range out {
		if amp == 0 {
			delete(out, s)
		}
	}
	return out
}
