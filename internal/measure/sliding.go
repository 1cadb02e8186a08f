package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/trace"
	"github.com/hupe1980/cthyb/operator"
)

// series returns the coefficients c_0..c_k of the chain trace with the
// local operator slid through every gap, where c_m collects all placements
// of m insertions. Gap polynomials are multiplied in time order and
// truncated at degree k.
func series(st *hilbert.Structure, ch trace.Chain, op *local, k int) []complex128 {
	var acc []*trace.CMatrix
	ins := make([]trace.Insertion, k)
	gapPoly := make([]*trace.CMatrix, k+1)
	for g, gap := range ch.Gaps {
		en := st.Energies(gap.Sub)
		for m := range ins {
			ins[m] = trace.Insertion{Op: op.blocks[gap.Sub]}
		}
		for m := range gapPoly {
			gapPoly[m] = trace.GapIntegral(en, gap, ins[:m])
		}
		if g == 0 {
			acc = append([]*trace.CMatrix(nil), gapPoly...)
		} else {
			next := make([]*trace.CMatrix, k+1)
			for deg := range next {
				for m := 0; m <= deg; m++ {
					term := trace.CMul(gapPoly[m], acc[deg-m])
					if next[deg] == nil {
						next[deg] = term
					} else {
						next[deg].AddTo(term)
					}
				}
			}
			acc = next
		}
		if g < len(ch.Ops) {
			for deg := range acc {
				acc[deg] = trace.RMul(ch.Ops[g], acc[deg])
			}
		}
	}
	out := make([]complex128, k+1)
	for deg, m := range acc {
		out[deg] = m.Trace()
	}
	return out
}

// StaticObservable accumulates ⟨O⟩ for a block-diagonal local operator.
// The integrated estimator averages O over all insertion times,
// (1/β)∫dτ ⟨O(τ)⟩; the instant estimator inserts O at τ = 0 only.
type StaticObservable struct {
	d       *qmc.Data
	op      *local
	instant bool
	buf     []float64

	// Value is the normalised expectation after Finalize.
	Value float64
}

// NewStaticObservable returns the integrated accumulator for e.
func NewStaticObservable(d *qmc.Data, e operator.Expr) (*StaticObservable, error) {
	op, err := newLocal(d.Structure, e)
	if err != nil {
		return nil, err
	}
	return &StaticObservable{d: d, op: op, buf: make([]float64, 1)}, nil
}

// NewInstantObservable returns the accumulator for e evaluated against the
// density matrix at τ = 0.
func NewInstantObservable(d *qmc.Data, e operator.Expr) (*StaticObservable, error) {
	s, err := NewStaticObservable(d, e)
	if err != nil {
		return nil, err
	}
	s.instant = true
	return s, nil
}

func (s *StaticObservable) Accumulate(float64) {
	f := traceFactor(s.d)
	if f == 0 {
		return
	}
	var v float64
	if s.instant {
		for _, blk := range s.d.Trace.DensityMatrix(s.d.Config) {
			var prod mat.Dense
			prod.Mul(blk.Matrix, s.op.blocks[blk.Sub])
			v += mat.Trace(&prod)
		}
		s.buf[0] += f * v
		return
	}
	for _, ch := range s.d.Trace.Chains(s.d.Config) {
		v += real(series(s.d.Structure, ch, s.op, 1)[1])
	}
	s.buf[0] += f * v / s.d.Beta()
}

func (s *StaticObservable) Buffer() []float64 { return s.buf }

func (s *StaticObservable) Finalize(z float64) { s.Value = s.buf[0] / z }

// Moments accumulates ⟨(∫_0^β O dτ)^k⟩/β^k for k = 1..order.
type Moments struct {
	d     *qmc.Data
	op    *local
	order int
	buf   []float64

	// Values[k-1] is the k-th moment after Finalize.
	Values []float64
}

// NewMoments returns the accumulator of the first order moments of e.
func NewMoments(d *qmc.Data, e operator.Expr, order int) (*Moments, error) {
	op, err := newLocal(d.Structure, e)
	if err != nil {
		return nil, err
	}
	return &Moments{d: d, op: op, order: order, buf: make([]float64, order)}, nil
}

func (m *Moments) Accumulate(float64) {
	f := traceFactor(m.d)
	if f == 0 {
		return
	}
	coef := make([]float64, m.order+1)
	for _, ch := range m.d.Trace.Chains(m.d.Config) {
		for k, c := range series(m.d.Structure, ch, m.op, m.order) {
			coef[k] += real(c)
		}
	}
	beta := m.d.Beta()
	fact := 1.0
	for k := 1; k <= m.order; k++ {
		fact *= float64(k)
		m.buf[k-1] += f * fact * coef[k] / math.Pow(beta, float64(k))
	}
}

func (m *Moments) Buffer() []float64 { return m.buf }

func (m *Moments) Finalize(z float64) {
	m.Values = make([]float64, m.order)
	for k, v := range m.buf {
		m.Values[k] = v / z
	}
}

// Correlator accumulates χ_AB(iω_n) = ∫_0^β dτ e^{iω_nτ} ⟨T A(τ) B(0)⟩ on
// the first bosonic Matsubara frequencies. A and B must be even but may
// connect subspaces, e.g. S⁺ and S⁻.
type Correlator struct {
	d    *qmc.Data
	a, b *hilbert.LocalOperator
	nw   int
	buf  []float64

	// Result[n] is χ(iω_n) after Finalize.
	Result []complex128
}

// NewCorrelator returns the accumulator of χ_AB on nOmega frequencies.
func NewCorrelator(d *qmc.Data, a, b operator.Expr, nOmega int) (*Correlator, error) {
	la, err := newTransition(d.Structure, a)
	if err != nil {
		return nil, err
	}
	lb, err := newTransition(d.Structure, b)
	if err != nil {
		return nil, err
	}
	return &Correlator{d: d, a: la, b: lb, nw: nOmega, buf: make([]float64, 2*nOmega)}, nil
}

func (c *Correlator) Accumulate(float64) {
	f := traceFactor(c.d)
	if f == 0 {
		return
	}
	entries, gaps := c.d.Trace.Walk(c.d.Config)
	beta := c.d.Beta()
	for n := range c.nw {
		w := gf.BosonicFrequency(n, beta)
		var v complex128
		for s := range c.d.Structure.NSubspaces() {
			v += c.walk(entries, gaps, s, w)
		}
		v *= complex(f/beta, 0)
		c.buf[2*n] += real(v)
		c.buf[2*n+1] += imag(v)
	}
}

// branch is a partial product of the trace: the subspace it ended in and
// which of A (bit 0) and B (bit 1) it already contains.
type branch struct {
	placed uint8
	sub    int
	x      *trace.CMatrix
}

// placements lists, per set of operators already placed, the time orders in
// which the remaining ones can enter the next gap.
var placements = [4][][]int{
	0: {nil, {0}, {1}, {0, 1}, {1, 0}},
	1: {nil, {1}},
	2: {nil, {0}},
	3: {nil},
}

// walk returns ∫∫ dτ dτ' e^{iω(τ-τ')} Tr_s[T A(τ) B(τ') ...] for the
// products starting and ending in subspace s.
func (c *Correlator) walk(entries []configuration.Entry, gaps []trace.Gap, s int, w float64) complex128 {
	st := c.d.Structure
	ops := [2]*hilbert.LocalOperator{c.a, c.b}
	omega := [2]float64{w, -w}
	branches := []branch{{sub: s, x: trace.Identity(st.Dim(s))}}
	for g, gap := range gaps {
		var next []branch
		for _, br := range branches {
			for _, order := range placements[br.placed] {
				segs := [][]float64{st.Energies(br.sub)}
				ins := make([]trace.Insertion, 0, len(order))
				sub, placed := br.sub, br.placed
				for _, k := range order {
					t := ops[k].Target[sub]
					if t < 0 {
						break
					}
					ins = append(ins, trace.Insertion{Op: ops[k].Blocks[sub], Omega: omega[k]})
					segs = append(segs, st.Energies(t))
					sub, placed = t, placed|1<<k
				}
				if len(ins) < len(order) {
					continue
				}
				next = merge(next, branch{placed: placed, sub: sub, x: trace.CMul(trace.GapPath(segs, gap, ins), br.x)})
			}
		}
		branches = branches[:0]
		for _, br := range next {
			if g >= len(entries) {
				branches = append(branches, br)
				continue
			}
			op := entries[g].Op
			t := st.Connection(op.Dagger, op.Linear, br.sub)
			if t < 0 {
				continue
			}
			branches = append(branches, branch{placed: br.placed, sub: t, x: trace.RMul(st.Block(op.Dagger, op.Linear, br.sub), br.x)})
		}
	}
	var v complex128
	for _, br := range branches {
		if br.placed == 3 && br.sub == s {
			v += br.x.Trace()
		}
	}
	return v
}

// merge adds br to the branch with the same placement and subspace.
func merge(bs []branch, br branch) []branch {
	for _, o := range bs {
		if o.placed == br.placed && o.sub == br.sub {
			o.x.AddTo(br.x)
			return bs
		}
	}
	return append(bs, br)
}

func (c *Correlator) Buffer() []float64 { return c.buf }

func (c *Correlator) Finalize(z float64) {
	c.Result = make([]complex128, c.nw)
	for n := range c.nw {
		c.Result[n] = complex(c.buf[2*n]/z, c.buf[2*n+1]/z)
	}
}

// DensityMatrix accumulates the reduced impurity density matrix, one block
// per subspace.
type DensityMatrix struct {
	d    *qmc.Data
	offs []int
	buf  []float64

	// Result[b] is the normalised block of subspace b after Finalize.
	Result []*mat.Dense
}

// NewDensityMatrix returns the density matrix accumulator.
func NewDensityMatrix(d *qmc.Data) *DensityMatrix {
	m := &DensityMatrix{d: d}
	var total int
	for b := range d.Structure.NSubspaces() {
		m.offs = append(m.offs, total)
		dim := d.Structure.Dim(b)
		total += dim * dim
	}
	m.buf = make([]float64, total)
	return m
}

func (m *DensityMatrix) Accumulate(float64) {
	f := traceFactor(m.d)
	if f == 0 {
		return
	}
	for _, blk := range m.d.Trace.DensityMatrix(m.d.Config) {
		raw := blk.Matrix.RawMatrix()
		dst := m.buf[m.offs[blk.Sub]:]
		for i := range raw.Rows {
			for j := range raw.Cols {
				dst[i*raw.Cols+j] += f * raw.Data[i*raw.Stride+j]
			}
		}
	}
}

func (m *DensityMatrix) Buffer() []float64 { return m.buf }

func (m *DensityMatrix) Finalize(z float64) {
	st := m.d.Structure
	m.Result = make([]*mat.Dense, st.NSubspaces())
	for b := range m.Result {
		dim := st.Dim(b)
		data := make([]float64, dim*dim)
		for i, v := range m.buf[m.offs[b] : m.offs[b]+dim*dim] {
			data[i] = v / z
		}
		m.Result[b] = mat.NewDense(dim, dim, data)
	}
}
