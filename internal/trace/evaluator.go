package trace

import (
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/timept"
)

// Result is the local weight of a configuration.
type Result struct {
	// Trace is Tr[e^{-βH} T Π O] with energies shifted by the ground state.
	Trace float64
	// Weight is the atomic weight used in the acceptance ratio. It equals
	// Trace unless the density-matrix norm is used as weight.
	Weight float64
	// Reweight is Trace/Weight, or 0 if Weight is 0.
	Reweight float64
}

// Options configures an Evaluator.
type Options struct {
	// PruneThreshold skips subspaces whose bound is below this fraction of
	// the accumulated weight. 0 evaluates every closing subspace.
	PruneThreshold float64
	// UseNormAsWeight uses the Frobenius norm of the density-matrix blocks
	// as atomic weight.
	UseNormAsWeight bool
}

// Evaluator computes local traces of configurations.
type Evaluator struct {
	st    *hilbert.Structure
	scale timept.Scale
	opts  Options

	closing *roaring.Bitmap
	entries []configuration.Entry
	bounds  []subBound
}

type subBound struct {
	sub   int
	bound float64
}

// New returns an evaluator for the given structure at inverse temperature
// scale.Beta().
func New(st *hilbert.Structure, scale timept.Scale, opts Options) *Evaluator {
	return &Evaluator{
		st:      st,
		scale:   scale,
		opts:    opts,
		closing: roaring.New(),
	}
}

// Options returns the evaluator options.
func (e *Evaluator) Options() Options { return e.opts }

// Structure returns the subspace structure.
func (e *Evaluator) Structure() *hilbert.Structure { return e.st }

// Scale returns the time scale.
func (e *Evaluator) Scale() timept.Scale { return e.scale }

// Closing returns the set of subspaces whose chain closes. The bitmap is
// reused by the next call.
func (e *Evaluator) Closing(cfg *configuration.Config) *roaring.Bitmap {
	e.closing.Clear()
	for b := range e.st.NSubspaces() {
		if cfg.Closes(b) {
			e.closing.Add(uint32(b))
		}
	}
	return e.closing
}

// Evaluate returns the local weight of cfg. A configuration whose chain
// closes in no subspace has an exact zero trace.
func (e *Evaluator) Evaluate(cfg *configuration.Config) Result {
	closing := e.Closing(cfg)
	if closing.IsEmpty() {
		return Result{}
	}
	e.entries = cfg.Flatten(e.entries[:0])

	e.bounds = e.bounds[:0]
	it := closing.Iterator()
	for it.HasNext() {
		b := int(it.Next())
		e.bounds = append(e.bounds, subBound{sub: b, bound: e.subspaceBound(b)})
	}
	if e.opts.PruneThreshold > 0 {
		slices.SortFunc(e.bounds, func(x, y subBound) int {
			switch {
			case x.bound > y.bound:
				return -1
			case x.bound < y.bound:
				return 1
			}
			return x.sub - y.sub
		})
	}
	var rest float64
	for _, sb := range e.bounds {
		rest += sb.bound
	}

	var res Result
	for _, sb := range e.bounds {
		if acc := math.Abs(weightOf(res, e.opts)); e.opts.PruneThreshold > 0 && acc > 0 &&
			rest < e.opts.PruneThreshold*acc {
			break
		}
		rest -= sb.bound
		rho := e.propagate(sb.sub)
		res.Trace += mat.Trace(rho)
		if e.opts.UseNormAsWeight {
			res.Weight += mat.Norm(rho, 2)
		}
	}
	if !e.opts.UseNormAsWeight {
		res.Weight = res.Trace
	}
	if res.Weight != 0 {
		res.Reweight = res.Trace / res.Weight
	}
	return res
}

func weightOf(r Result, opts Options) float64 {
	if opts.UseNormAsWeight {
		return r.Weight
	}
	return r.Trace
}

// Bound returns a strict upper bound of |Trace| (and of the norm weight)
// built from operator norms and the lowest energy of every visited
// subspace. No matrix products are formed.
func (e *Evaluator) Bound(cfg *configuration.Config) float64 {
	closing := e.Closing(cfg)
	if closing.IsEmpty() {
		return 0
	}
	e.entries = cfg.Flatten(e.entries[:0])
	var total float64
	it := closing.Iterator()
	for it.HasNext() {
		total += e.subspaceBound(int(it.Next()))
	}
	return total
}

func (e *Evaluator) subspaceBound(b int) float64 {
	bound := float64(e.st.Dim(b))
	var exponent float64
	prev := timept.Zero
	s := b
	for _, en := range e.entries {
		ticks, _ := timept.Sub(en.Time, prev)
		exponent += e.scale.Duration(ticks) * e.st.MinEnergy(s)
		bound *= e.st.Norm(en.Op.Dagger, en.Op.Linear, s)
		s = e.st.Connection(en.Op.Dagger, en.Op.Linear, s)
		prev = en.Time
	}
	exponent += e.scale.Duration(timept.Ticks-uint64(prev)) * e.st.MinEnergy(s)
	return bound * math.Exp(-exponent)
}

// propagate returns G(β-t_n)·O_n·…·O_1·G(t_1) restricted to subspace b,
// using the entries of the last Flatten.
func (e *Evaluator) propagate(b int) *mat.Dense {
	dim := e.st.Dim(b)
	cur := mat.NewDense(dim, dim, nil)
	prev := timept.Zero
	s := b
	first := true
	for _, en := range e.entries {
		ticks, _ := timept.Sub(en.Time, prev)
		dt := e.scale.Duration(ticks)
		if first {
			for i, energy := range e.st.Energies(b) {
				cur.Set(i, i, math.Exp(-dt*energy))
			}
			first = false
		} else {
			scaleRows(cur, e.st.Energies(s), dt)
		}
		blk := e.st.Block(en.Op.Dagger, en.Op.Linear, s)
		rows, _ := blk.Dims()
		next := mat.NewDense(rows, dim, nil)
		next.Mul(blk, cur)
		cur = next
		s = e.st.Connection(en.Op.Dagger, en.Op.Linear, s)
		prev = en.Time
	}
	dt := e.scale.Duration(timept.Ticks - uint64(prev))
	if first {
		for i, energy := range e.st.Energies(b) {
			cur.Set(i, i, math.Exp(-dt*energy))
		}
		return cur
	}
	scaleRows(cur, e.st.Energies(s), dt)
	return cur
}

func scaleRows(m *mat.Dense, energies []float64, dt float64) {
	r, c := m.Dims()
	for i := range r {
		f := math.Exp(-dt * energies[i])
		for j := range c {
			m.Set(i, j, m.At(i, j)*f)
		}
	}
}

// DensityBlock is the unnormalised density matrix of one subspace at τ = 0.
type DensityBlock struct {
	Sub    int
	Matrix *mat.Dense
}

// DensityMatrix returns the blocks G(β-t_n)·O_n·…·O_1·G(t_1) of all closing
// subspaces. Their traces sum to the configuration trace.
func (e *Evaluator) DensityMatrix(cfg *configuration.Config) []DensityBlock {
	closing := e.Closing(cfg)
	if closing.IsEmpty() {
		return nil
	}
	e.entries = cfg.Flatten(e.entries[:0])
	out := make([]DensityBlock, 0, closing.GetCardinality())
	it := closing.Iterator()
	for it.HasNext() {
		b := int(it.Next())
		out = append(out, DensityBlock{Sub: b, Matrix: e.propagate(b)})
	}
	return out
}
