package moves

import (
	"fmt"
	"math"

	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/trace"
)

// Move is one kind of Metropolis proposal.
type Move interface {
	// Attempt proposes a change and returns the signed ratio of new to old
	// weight times the proposal ratio. u is the uniform number the driver
	// compares |ratio| with; moves may return 0 early once they can prove
	// u >= |ratio|.
	Attempt(u float64) float64
	// Accept commits the proposal and returns the new sign.
	Accept() float64
	// Reject undoes the proposal.
	Reject()
}

// weigher evaluates the local part of a proposal once the configuration and
// the determinants have been updated.
type weigher struct {
	d        *qmc.Data
	useBound bool

	res   trace.Result
	perm  float64
	ratio float64
}

// weigh returns the signed acceptance ratio for a proposal with the given
// determinant ratio and proposal factor.
func (w *weigher) weigh(u, detRatio, proposal float64) float64 {
	w.ratio = 0
	if detRatio == 0 || math.IsNaN(detRatio) {
		return 0
	}
	old := w.d.Atomic.Weight
	if w.useBound {
		bound := proposal * math.Abs(detRatio) * w.d.Trace.Bound(w.d.Config) / math.Abs(old)
		if u >= bound {
			return 0
		}
	}
	w.res = w.d.Trace.Evaluate(w.d.Config)
	if w.res.Weight == 0 {
		return 0
	}
	w.perm = w.d.Permutation()
	w.ratio = proposal * detRatio * (w.perm / w.d.Perm) * (w.res.Weight / old)
	return w.ratio
}

// commit stores the evaluated weight as the current one.
func (w *weigher) commit() float64 {
	d := w.d
	d.Atomic = w.res
	d.Perm = w.perm
	d.Sign *= qmc.SignOf(w.ratio)
	return d.Sign
}

func square(x float64) float64 { return x * x }

// restore puts back an operator removed by the current proposal. Its slot
// was free before the proposal, so a conflict means the store is corrupt.
func restore(d *qmc.Data, e configuration.Entry) {
	if _, err := d.Config.Restore(e); err != nil {
		panic(fmt.Sprintf("moves: restore operator at %d (seq %d): %v", e.Time, e.Seq, err))
	}
}
