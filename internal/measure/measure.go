package measure

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/timept"
	"github.com/hupe1980/cthyb/operator"
)

// ErrNotBlockDiagonal is returned for observables that connect different
// subspaces.
var ErrNotBlockDiagonal = errors.New("observable is not block diagonal")

// ErrOddOperator is returned for correlator operators with an odd number of
// fermion factors.
var ErrOddOperator = errors.New("operator is not even")

// local is a subspace-diagonal operator in the eigenbasis with zero blocks
// where the operator vanishes.
type local struct {
	blocks []*mat.Dense
}

func newLocal(st *hilbert.Structure, e operator.Expr) (*local, error) {
	l, err := st.Local(e)
	if err != nil {
		return nil, err
	}
	if !l.Diagonal() {
		return nil, fmt.Errorf("%w: %s", ErrNotBlockDiagonal, e)
	}
	out := &local{blocks: make([]*mat.Dense, st.NSubspaces())}
	for b := range out.blocks {
		if l.Target[b] == b {
			out.blocks[b] = l.Blocks[b]
			continue
		}
		dim := st.Dim(b)
		out.blocks[b] = mat.NewDense(dim, dim, nil)
	}
	return out, nil
}

// newTransition expresses an even operator in the eigenbasis. It may map a
// subspace into another one.
func newTransition(st *hilbert.Structure, e operator.Expr) (*hilbert.LocalOperator, error) {
	if !e.IsEven() {
		return nil, fmt.Errorf("%w: %s", ErrOddOperator, e)
	}
	return st.Local(e)
}

// traceFactor is the weight of a trace-based estimator: the sampled sign
// over the atomic weight.
func traceFactor(d *qmc.Data) float64 {
	if d.Atomic.Weight == 0 {
		return 0
	}
	return d.Sign / d.Atomic.Weight
}

// pairs calls fn for every (annihilator column j, creator row i) of block b
// with τ = τ_j - τ†_i folded into [0, β) and the antiperiodic sign.
func pairs(d *qmc.Data, b int, fn func(a, c int, tau, m float64)) {
	dm := d.Dets[b]
	n := dm.Size()
	for i := range n {
		row := dm.Row(i)
		for j := range n {
			col := dm.Col(j)
			ticks, wrapped := timept.Sub(col.Time, row.Time)
			m := dm.InverseAt(j, i)
			if wrapped {
				m = -m
			}
			fn(col.Inner, row.Inner, d.Scale.Duration(ticks), m)
		}
	}
}
