package measure

import (
	"context"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/internal/mc"
	"github.com/hupe1980/cthyb/internal/moves"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/trace"
	"github.com/hupe1980/cthyb/operator"
	"github.com/hupe1980/cthyb/testutil"
)

func data(t *testing.T, p *testutil.Problem, seed uint64) *qmc.Data {
	t.Helper()
	st, err := p.Structure()
	require.NoError(t, err)
	d, err := qmc.New(st, p.Blocks, p.Delta, rand.New(rand.NewPCG(seed, seed)), trace.Options{})
	require.NoError(t, err)
	return d
}

// sample accumulates the current configuration once and normalises.
func sample(d *qmc.Data, ms ...mc.Measure) {
	s := d.MeasureSign()
	for _, m := range ms {
		m.Accumulate(s)
		m.Finalize(s)
	}
}

func atomicAverage(t *testing.T, d *qmc.Data, e operator.Expr) float64 {
	t.Helper()
	l, err := d.Structure.Local(e)
	require.NoError(t, err)
	return d.Structure.AtomicAverage(l, d.Beta())
}

func TestAtomicLimit(t *testing.T) {
	beta := 3.0
	d := data(t, testutil.HubbardAtom(beta, 2, 0.7, 0, 0, 11), 1)
	require.Equal(t, 0, d.TotalOrder())

	nUp, nDn := operator.N("up", "0"), operator.N("down", "0")
	total := nUp.Add(nDn)

	static, err := NewStaticObservable(d, nUp)
	require.NoError(t, err)
	instant, err := NewInstantObservable(d, nUp.Mul(nDn))
	require.NoError(t, err)
	moments, err := NewMoments(d, total, 4)
	require.NoError(t, err)
	chi, err := NewCorrelator(d, nUp, nDn, 3)
	require.NoError(t, err)
	rho := NewDensityMatrix(d)
	sample(d, static, instant, moments, chi, rho)

	assert.InDelta(t, atomicAverage(t, d, nUp), static.Value, 1e-12)
	assert.InDelta(t, atomicAverage(t, d, nUp.Mul(nDn)), instant.Value, 1e-12)

	pow := operator.Const(1)
	for k := range 4 {
		pow = pow.Mul(total)
		assert.InDelta(t, atomicAverage(t, d, pow), moments.Values[k], 1e-10, "moment %d", k+1)
	}

	double := atomicAverage(t, d, nUp.Mul(nDn))
	assert.InDelta(t, beta*double, real(chi.Result[0]), 1e-10)
	assert.InDelta(t, 0, imag(chi.Result[0]), 1e-10)
	for _, v := range chi.Result[1:] {
		assert.InDelta(t, 0, cmplx.Abs(v), 1e-10)
	}

	var tr float64
	z := d.Structure.PartitionFunction(beta)
	for b, m := range rho.Result {
		tr += mat.Trace(m)
		for i, e := range d.Structure.Energies(b) {
			assert.InDelta(t, math.Exp(-beta*e)/z, m.At(i, i), 1e-12)
		}
	}
	assert.InDelta(t, 1, tr, 1e-12)
}

func TestRejectsOffDiagonalObservable(t *testing.T) {
	d := data(t, testutil.HubbardAtom(3, 2, 0.7, 0, 0, 11), 1)
	_, err := NewStaticObservable(d, operator.CDag("up", "0").Mul(operator.C("down", "0")))
	require.ErrorIs(t, err, ErrNotBlockDiagonal)
}

func TestCorrelatorAcrossSubspaces(t *testing.T) {
	beta := 3.0
	d := data(t, testutil.HubbardAtom(beta, 2, 0.7, 0, 0, 11), 1)
	sp := operator.CDag("up", "0").Mul(operator.C("down", "0"))
	sm := sp.Dagger()

	chi, err := NewCorrelator(d, sp, sm, 2)
	require.NoError(t, err)
	same, err := NewCorrelator(d, sp, sp, 1)
	require.NoError(t, err)
	sample(d, chi, same)

	// Without a field S⁺(τ)S⁻ is constant in τ.
	assert.InDelta(t, beta*atomicAverage(t, d, sp.Mul(sm)), real(chi.Result[0]), 1e-10)
	assert.InDelta(t, 0, cmplx.Abs(chi.Result[1]), 1e-10)
	assert.Zero(t, same.Result[0])

	_, err = NewCorrelator(d, operator.C("up", "0"), sm, 1)
	require.ErrorIs(t, err, ErrOddOperator)
}

func TestCorrelatorSwapSymmetry(t *testing.T) {
	d := data(t, testutil.HubbardAtom(4, 1.5, 0.75, 0.8, 0.1, 401), 9)
	populate(t, d)
	sp := operator.CDag("up", "0").Mul(operator.C("down", "0"))
	sm := sp.Dagger()

	pm, err := NewCorrelator(d, sp, sm, 1)
	require.NoError(t, err)
	mp, err := NewCorrelator(d, sm, sp, 1)
	require.NoError(t, err)
	sample(d, pm, mp)

	// χ_AB(0) = χ_BA(0) for every configuration.
	assert.InDelta(t, real(pm.Result[0]), real(mp.Result[0]), 1e-9)
	assert.InDelta(t, imag(pm.Result[0]), imag(mp.Result[0]), 1e-9)
}

// populate runs pair moves until the configuration has operators.
func populate(t *testing.T, d *qmc.Data) {
	t.Helper()
	var ms []moves.Move
	for b := range d.Blocks {
		ms = append(ms, moves.NewInsert(d, b, false), moves.NewRemove(d, b, false))
	}
	for step := 0; step < 500 || d.TotalOrder() < 2; step++ {
		m := ms[d.Rand.IntN(len(ms))]
		u := d.Rand.Float64()
		if r := m.Attempt(u); u < math.Abs(r) {
			m.Accept()
		} else {
			m.Reject()
		}
	}
}

func TestSlidingEstimatorsAgree(t *testing.T) {
	beta := 4.0
	d := data(t, testutil.HubbardAtom(beta, 1.5, 0.75, 0.8, 0.1, 401), 7)
	populate(t, d)

	nUp := operator.N("up", "0")
	static, err := NewStaticObservable(d, nUp)
	require.NoError(t, err)
	moments, err := NewMoments(d, nUp, 2)
	require.NoError(t, err)
	chi, err := NewCorrelator(d, nUp, operator.Const(1), 2)
	require.NoError(t, err)
	square, err := NewCorrelator(d, nUp, nUp, 1)
	require.NoError(t, err)
	sample(d, static, moments, chi, square)

	assert.InDelta(t, static.Value, moments.Values[0], 1e-10)
	assert.InDelta(t, beta*static.Value, real(chi.Result[0]), 1e-9)
	assert.InDelta(t, 0, cmplx.Abs(chi.Result[1]), 1e-9)
	// χ(0) = β⟨(∫n dτ/β)²⟩ for the same operator.
	assert.InDelta(t, beta*moments.Values[1], real(square.Result[0]), 1e-9)
}

func TestGTauEstimatorAndBuffers(t *testing.T) {
	d := data(t, testutil.ResonantLevel(4, 0.2, 0.7, -0.3, 201), 3)
	populate(t, d)

	g, err := NewGTau(d, 41)
	require.NoError(t, err)
	gl := NewGLegendre(d, 30)
	po := NewPertOrder(d, 10)
	assert.Len(t, g.Buffer(), 41)
	assert.Len(t, gl.Buffer(), 30)
	assert.Len(t, po.Buffer(), 22)

	sample(d, g, gl, po)
	assert.Equal(t, 1.0, po.Total[min(d.TotalOrder(), 10)])

	// Integrating the binned estimator gives the G_0 coefficient.
	var integral float64
	mesh := g.Result[0].Mesh
	for i := range mesh.N {
		w := mesh.Step()
		if i == 0 || i == mesh.N-1 {
			w /= 2
		}
		integral += w * g.Result[0].At(i, 0, 0)
	}
	assert.InDelta(t, gl.Result[0].At(0, 0, 0), integral, 1e-9)

	_, err = NewGTau(d, 1)
	require.Error(t, err)
}

func TestConvergesToResonantLevel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sampling test in short mode")
	}
	p := testutil.ResonantLevel(4, 0.2, 0.7, -0.3, 401)
	d := data(t, p, 42)

	cfg := mc.DefaultConfig()
	cfg.LengthCycle = 20
	cfg.NWarmupCycles = 1000
	cfg.NCycles = 40000
	e := mc.New(d, cfg)
	e.AddMove(moves.NewInsert(d, 0, false), "insert", 1)
	e.AddMove(moves.NewRemove(d, 0, false), "remove", 1)
	e.AddMove(moves.NewShift(d, false), "shift", 1)

	g, err := NewGTau(d, 21)
	require.NoError(t, err)
	gl := NewGLegendre(d, 24)
	n, err := NewStaticObservable(d, operator.N("d", "0"))
	require.NoError(t, err)
	n0, err := NewInstantObservable(d, operator.N("d", "0"))
	require.NoError(t, err)
	po := NewPertOrder(d, 50)
	rho := NewDensityMatrix(d)
	g2, err := NewG2(d, nil, 2)
	require.NoError(t, err)
	e.AddMeasure(g, "g_tau")
	e.AddMeasure(gl, "g_l")
	e.AddMeasure(n, "density")
	e.AddMeasure(n0, "density_at_zero")
	e.AddMeasure(po, "pert_order")
	e.AddMeasure(rho, "density_matrix")
	e.AddMeasure(g2, "g2")

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	e.Finalize()

	exact := p.ExactOccupation()
	assert.InDelta(t, exact, n.Value, 0.02)
	assert.InDelta(t, exact, n0.Value, 0.03)
	assert.InDelta(t, 1.0, e.AverageSign(), 1e-12)
	assert.Positive(t, Average(po.Total))

	var tr float64
	for _, m := range rho.Result {
		tr += mat.Trace(m)
	}
	assert.InDelta(t, 1, tr, 1e-9)

	for _, tau := range []float64{0.5, 1, 2, 3, 3.5} {
		assert.InDelta(t, p.ExactG(tau), gl.Result[0].Eval(tau, 0, 0), 0.03, "legendre τ=%v", tau)
		i := g.Result[0].Mesh.Nearest(tau)
		assert.InDelta(t, p.ExactG(g.Result[0].Mesh.Point(i)), g.Result[0].At(i, 0, 0), 0.06, "binned τ=%v", tau)
	}

	// Wick's theorem: G2(ν,ν') = β G(ν) G(ν') - β δ_νν' G(ν)².
	res := g2.Result[0]
	for n := range res.Len() {
		for m := range res.Len() {
			gn, gm := p.ExactGiw(res.Frequency(n)), p.ExactGiw(res.Frequency(m))
			want := complex(p.Beta, 0) * gn * gm
			if n == m {
				want = 0
			}
			got := res.At(n, m, 0, 0, 0, 0)
			assert.Less(t, cmplx.Abs(got-want), 0.1*cmplx.Abs(want)+0.1, "g2 n=%d m=%d", n, m)
		}
	}
}
