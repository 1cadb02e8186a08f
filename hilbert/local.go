package hilbert

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/operator"
)

// LocalOperator is a many-body operator in the eigenbasis, split into
// subspace blocks.
type LocalOperator struct {
	// Target[b] is the subspace reached from b, or -1.
	Target []int
	// Blocks[b] is the dim(Target[b]) x dim(b) matrix, nil if Target[b] < 0.
	Blocks []*mat.Dense
}

// Diagonal reports whether the operator maps every subspace to itself.
func (l *LocalOperator) Diagonal() bool {
	for b, t := range l.Target {
		if t >= 0 && t != b {
			return false
		}
	}
	return true
}

// Local expresses e in the eigenbasis. Each subspace must be mapped into at
// most one subspace.
func (st *Structure) Local(e operator.Expr) (*LocalOperator, error) {
	c, err := compile(e, st.fops, st.imagThreshold)
	if err != nil {
		return nil, err
	}
	nsub := len(st.subspaces)
	out := &LocalOperator{Target: make([]int, nsub), Blocks: make([]*mat.Dense, nsub)}
	for b := range nsub {
		sub := &st.subspaces[b]
		out.Target[b] = -1
		targets := roaring.New()
		images := make([]map[uint64]float64, len(sub.States))
		for k, s := range sub.States {
			images[k] = c.image(s)
			for t := range images[k] {
				targets.Add(uint32(st.where[t]))
			}
		}
		switch targets.GetCardinality() {
		case 0:
			continue
		case 1:
		default:
			return nil, ErrMixesSubspaces
		}
		target := int(targets.Minimum())
		fock := mat.NewDense(st.Dim(target), len(sub.States), nil)
		for k, img := range images {
			for t, amp := range img {
				fock.Set(int(st.pos[t]), k, amp)
			}
		}
		out.Target[b] = target
		out.Blocks[b] = st.toEigenbasis(fock, target, b)
	}
	return out, nil
}

// AtomicAverage returns Tr[exp(-βH)·O]/Z of the isolated impurity.
func (st *Structure) AtomicAverage(o *LocalOperator, beta float64) float64 {
	var num float64
	for b, t := range o.Target {
		if t != b {
			continue
		}
		for k, e := range st.subspaces[b].Energies {
			num += o.Blocks[b].At(k, k) * math.Exp(-beta*e)
		}
	}
	return num / st.PartitionFunction(beta)
}
