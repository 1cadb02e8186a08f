package trace

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/timept"
)

// Gap is the interval between two consecutive operators of a chain.
type Gap struct {
	Sub int
	// Start is the imaginary time of the operator opening the gap. For the
	// gap wrapping through β it is the time of the last operator.
	Start  float64
	Length float64
}

// Chain is the cyclic product of one closing subspace cut into gaps. Gap 0
// wraps through β and Ops[k] maps Gaps[k] into Gaps[k+1] (cyclically), so
// the trace equals Tr[Ops[n-1]·G_{n-1}·…·Ops[0]·G_0].
type Chain struct {
	Gaps []Gap
	Ops  []*mat.Dense
}

// Chains returns the chains of all closing subspaces of cfg.
func (e *Evaluator) Chains(cfg *configuration.Config) []Chain {
	closing := e.Closing(cfg)
	if closing.IsEmpty() {
		return nil
	}
	e.entries = cfg.Flatten(e.entries[:0])
	n := len(e.entries)
	beta := e.scale.Beta()
	out := make([]Chain, 0, closing.GetCardinality())
	it := closing.Iterator()
	for it.HasNext() {
		b := int(it.Next())
		if n == 0 {
			out = append(out, Chain{Gaps: []Gap{{Sub: b, Length: beta}}})
			continue
		}
		ch := Chain{Gaps: make([]Gap, n), Ops: make([]*mat.Dense, n)}
		last := e.entries[n-1].Time
		wrap, _ := timept.Sub(e.entries[0].Time, last)
		if wrap == 0 {
			wrap = timept.Ticks
		}
		ch.Gaps[0] = Gap{Sub: b, Start: e.scale.Float(last), Length: e.scale.Duration(wrap)}
		s := b
		for k, en := range e.entries {
			ch.Ops[k] = e.st.Block(en.Op.Dagger, en.Op.Linear, s)
			s = e.st.Connection(en.Op.Dagger, en.Op.Linear, s)
			if k+1 < n {
				d, _ := timept.Sub(e.entries[k+1].Time, en.Time)
				ch.Gaps[k+1] = Gap{Sub: s, Start: e.scale.Float(en.Time), Length: e.scale.Duration(d)}
			}
		}
		out = append(out, ch)
	}
	return out
}

// Walk returns the time-ordered operators of cfg and the gaps between them
// without fixing a subspace. Gap 0 wraps through β and precedes entries[0];
// an empty configuration has a single gap of length β.
func (e *Evaluator) Walk(cfg *configuration.Config) ([]configuration.Entry, []Gap) {
	entries := cfg.Flatten(nil)
	n := len(entries)
	if n == 0 {
		return nil, []Gap{{Sub: -1, Length: e.scale.Beta()}}
	}
	gaps := make([]Gap, n)
	last := entries[n-1].Time
	wrap, _ := timept.Sub(entries[0].Time, last)
	if wrap == 0 {
		wrap = timept.Ticks
	}
	gaps[0] = Gap{Sub: -1, Start: e.scale.Float(last), Length: e.scale.Duration(wrap)}
	for k := 1; k < n; k++ {
		d, _ := timept.Sub(entries[k].Time, entries[k-1].Time)
		gaps[k] = Gap{Sub: -1, Start: e.scale.Float(entries[k-1].Time), Length: e.scale.Duration(d)}
	}
	return entries, gaps
}

// CMatrix is a small dense complex matrix in row-major order.
type CMatrix struct {
	Rows, Cols int
	Data       []complex128
}

// NewCMatrix returns a zero r x c matrix.
func NewCMatrix(r, c int) *CMatrix {
	return &CMatrix{Rows: r, Cols: c, Data: make([]complex128, r*c)}
}

// At returns element (i, j).
func (m *CMatrix) At(i, j int) complex128 { return m.Data[i*m.Cols+j] }

// Set sets element (i, j).
func (m *CMatrix) Set(i, j int, v complex128) { m.Data[i*m.Cols+j] = v }

// Trace returns the sum of the diagonal.
func (m *CMatrix) Trace() complex128 {
	var t complex128
	for i := range min(m.Rows, m.Cols) {
		t += m.At(i, i)
	}
	return t
}

// Identity returns the d x d unit matrix.
func Identity(d int) *CMatrix {
	out := NewCMatrix(d, d)
	for i := range d {
		out.Set(i, i, 1)
	}
	return out
}

// AddTo accumulates a into m.
func (m *CMatrix) AddTo(a *CMatrix) {
	for i, v := range a.Data {
		m.Data[i] += v
	}
}

// CMul returns a·b.
func CMul(a, b *CMatrix) *CMatrix {
	out := NewCMatrix(a.Rows, b.Cols)
	for i := range a.Rows {
		for k := range a.Cols {
			x := a.At(i, k)
			if x == 0 {
				continue
			}
			row := b.Data[k*b.Cols : (k+1)*b.Cols]
			dst := out.Data[i*out.Cols : (i+1)*out.Cols]
			for j, y := range row {
				dst[j] += x * y
			}
		}
	}
	return out
}

// RMul returns r·b for a real left factor.
func RMul(r *mat.Dense, b *CMatrix) *CMatrix {
	rows, cols := r.Dims()
	out := NewCMatrix(rows, b.Cols)
	for i := range rows {
		for k := range cols {
			x := r.At(i, k)
			if x == 0 {
				continue
			}
			row := b.Data[k*b.Cols : (k+1)*b.Cols]
			dst := out.Data[i*out.Cols : (i+1)*out.Cols]
			for j, y := range row {
				dst[j] += complex(x, 0) * y
			}
		}
	}
	return out
}

// Propagator returns diag(e^{-Δ·E}) for a gap as a complex matrix.
func Propagator(energies []float64, length float64) *CMatrix {
	d := len(energies)
	out := NewCMatrix(d, d)
	for i, en := range energies {
		out.Set(i, i, complex(math.Exp(-length*en), 0))
	}
	return out
}

// Insertion is a local operator slid through a gap. Op maps the segment
// before it into the segment after it. Omega adds the Fourier phase
// e^{iωτ} at the operator's time.
type Insertion struct {
	Op    *mat.Dense
	Omega float64
}

// GapIntegral integrates the insertions, ordered by ascending time, over
// all placements inside a gap:
//
//	∫ G(s_m)·O_m·…·G(s_1)·O_1·G(s_0) Π e^{iω_k τ_k},  Σ s = Length.
//
// All insertions act within the gap's subspace.
func GapIntegral(energies []float64, gap Gap, ins []Insertion) *CMatrix {
	segs := make([][]float64, len(ins)+1)
	for s := range segs {
		segs[s] = energies
	}
	return GapPath(segs, gap, ins)
}

// GapPath is GapIntegral for insertions that change the subspace:
// segs[s] holds the energies of segment s and ins[s].Op maps segment s into
// segment s+1. The result maps segment 0 into the last segment.
func GapPath(segs [][]float64, gap Gap, ins []Insertion) *CMatrix {
	m := len(ins)
	if m == 0 {
		return Propagator(segs[0], gap.Length)
	}
	var total float64
	for _, in := range ins {
		total += in.Omega
	}
	phase := cmplx.Exp(complex(0, total*gap.Start))
	// shift[s] is -i times the frequencies of the insertions after segment s.
	shift := make([]complex128, m+1)
	for s := m - 1; s >= 0; s-- {
		shift[s] = shift[s+1] - complex(0, ins[s].Omega)
	}

	out := NewCMatrix(len(segs[m]), len(segs[0]))
	path := make([]int, m+1)
	e := make([]complex128, m+1)
	var walk func(level int, amp float64)
	walk = func(level int, amp float64) {
		if level == m {
			for s, k := range path {
				e[s] = complex(segs[s][k], 0) + shift[s]
			}
			v := SlidingIntegralC(gap.Length, e...)
			out.Data[path[m]*out.Cols+path[0]] += complex(amp, 0) * v * phase
			return
		}
		op := ins[level].Op
		from := path[level]
		for to := range len(segs[level+1]) {
			x := op.At(to, from)
			if x == 0 {
				continue
			}
			path[level+1] = to
			walk(level+1, amp*x)
		}
	}
	for j := range len(segs[0]) {
		path[0] = j
		walk(0, 1)
	}
	return out
}
