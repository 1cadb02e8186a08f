package trace

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/timept"
	"github.com/hupe1980/cthyb/operator"
)

func hubbardAtom(t *testing.T, u, mu float64) *hilbert.Structure {
	t.Helper()
	fops := operator.FromBlocks([]operator.Block{
		{Name: "up", Indices: []string{"0"}},
		{Name: "down", Indices: []string{"0"}},
	})
	nUp, nDn := operator.N("up", "0"), operator.N("down", "0")
	h := nUp.Mul(nDn).Scale(u).Sub(nUp.Add(nDn).Scale(mu))
	st, err := hilbert.Autopartition{}.Partition(h, fops)
	require.NoError(t, err)
	return st
}

func dimer(t *testing.T, hop, u float64) *hilbert.Structure {
	t.Helper()
	fops := operator.FromBlocks([]operator.Block{{Name: "a", Indices: []string{"0", "1"}}})
	h := operator.CDag("a", "0").Mul(operator.C("a", "1")).
		Add(operator.CDag("a", "1").Mul(operator.C("a", "0"))).
		Scale(-hop).
		Add(operator.N("a", "0").Mul(operator.N("a", "1")).Scale(u))
	st, err := hilbert.Autopartition{}.Partition(h, fops)
	require.NoError(t, err)
	return st
}

func place(t *testing.T, cfg *configuration.Config, scale timept.Scale, tau float64, dagger bool, linear int) {
	t.Helper()
	_, err := cfg.Insert(scale.FromFloat(tau), configuration.Op{Dagger: dagger, Linear: linear, Inner: linear})
	require.NoError(t, err)
}

func chainTrace(e *Evaluator, ch Chain) float64 {
	prod := Propagator(e.st.Energies(ch.Gaps[0].Sub), ch.Gaps[0].Length)
	for k, op := range ch.Ops {
		prod = RMul(op, prod)
		if k+1 < len(ch.Ops) {
			g := ch.Gaps[k+1]
			prod = CMul(Propagator(e.st.Energies(g.Sub), g.Length), prod)
		}
	}
	return real(prod.Trace())
}

func TestEmptyConfigurationIsAtomicPartitionFunction(t *testing.T) {
	st := hubbardAtom(t, 2, 1)
	scale := timept.NewScale(3)
	e := New(st, scale, Options{})
	cfg := configuration.New(st.NSubspaces(), st)

	res := e.Evaluate(cfg)
	z := st.PartitionFunction(3)
	assert.InDelta(t, z, res.Trace, 1e-12)
	assert.Equal(t, res.Trace, res.Weight)
	assert.Equal(t, 1.0, res.Reweight)
	assert.GreaterOrEqual(t, e.Bound(cfg), z*(1-1e-12))
}

func TestPairTraceClosedForm(t *testing.T) {
	st := hubbardAtom(t, 2, 1)
	beta := 4.0
	scale := timept.NewScale(beta)
	e := New(st, scale, Options{})
	cfg := configuration.New(st.NSubspaces(), st)

	t1, t2 := 0.7, 2.9
	place(t, cfg, scale, t1, true, 0)
	place(t, cfg, scale, t2, false, 0)

	// Empty and spin-down states close; the other two are annihilated.
	want := math.Exp(-(beta-t2+t1)) + math.Exp(-(t2-t1))
	res := e.Evaluate(cfg)
	assert.InDelta(t, want, res.Trace, 1e-12)
	assert.Equal(t, uint64(2), e.Closing(cfg).GetCardinality())

	var sum float64
	for _, blk := range e.DensityMatrix(cfg) {
		sum += mat.Trace(blk.Matrix)
	}
	assert.InDelta(t, want, sum, 1e-12)

	var chains float64
	for _, ch := range e.Chains(cfg) {
		chains += chainTrace(e, ch)
	}
	assert.InDelta(t, want, chains, 1e-12)
}

func TestUnclosedChainIsExactlyZero(t *testing.T) {
	st := hubbardAtom(t, 2, 1)
	scale := timept.NewScale(2)
	e := New(st, scale, Options{})
	cfg := configuration.New(st.NSubspaces(), st)
	place(t, cfg, scale, 0.5, true, 0)

	assert.Equal(t, Result{}, e.Evaluate(cfg))
	assert.Zero(t, e.Bound(cfg))
	assert.Nil(t, e.DensityMatrix(cfg))
	assert.Nil(t, e.Chains(cfg))

	// Two creators of the same flavor never close either.
	place(t, cfg, scale, 1.5, true, 0)
	assert.Zero(t, e.Evaluate(cfg).Trace)
}

func randomConfig(t *testing.T, r *rand.Rand, st *hilbert.Structure, scale timept.Scale, pairs int) *configuration.Config {
	t.Helper()
	cfg := configuration.New(st.NSubspaces(), st)
	nf := st.Fundamentals().Len()
	for range pairs {
		a, b := r.IntN(nf), r.IntN(nf)
		_, err := cfg.Insert(timept.Random(r), configuration.Op{Dagger: true, Linear: a, Inner: a})
		require.NoError(t, err)
		_, err = cfg.Insert(timept.Random(r), configuration.Op{Linear: b, Inner: b})
		require.NoError(t, err)
	}
	return cfg
}

func TestClosureMatchesNonzeroTrace(t *testing.T) {
	st := dimer(t, 0.6, 1.3)
	scale := timept.NewScale(5)
	e := New(st, scale, Options{})
	r := rand.New(rand.NewPCG(11, 12))

	var closed int
	for range 200 {
		cfg := randomConfig(t, r, st, scale, 1+r.IntN(3))
		res := e.Evaluate(cfg)
		if e.Closing(cfg).IsEmpty() {
			assert.Zero(t, res.Trace)
			continue
		}
		closed++
		assert.LessOrEqual(t, math.Abs(res.Trace), e.Bound(cfg)*(1+1e-12))

		var chains float64
		for _, ch := range e.Chains(cfg) {
			chains += chainTrace(e, ch)
		}
		assert.InDelta(t, res.Trace, chains, 1e-10)
	}
	assert.Positive(t, closed)
}

func TestNormWeight(t *testing.T) {
	st := dimer(t, 0.6, 1.3)
	scale := timept.NewScale(5)
	exact := New(st, scale, Options{})
	norm := New(st, scale, Options{UseNormAsWeight: true})
	r := rand.New(rand.NewPCG(5, 6))

	for range 100 {
		cfg := randomConfig(t, r, st, scale, 1+r.IntN(2))
		a, b := exact.Evaluate(cfg), norm.Evaluate(cfg)
		assert.InDelta(t, a.Trace, b.Trace, 1e-12)
		if b.Weight == 0 {
			assert.Zero(t, b.Reweight)
			continue
		}
		assert.Positive(t, b.Weight)
		assert.InDelta(t, b.Trace, b.Weight*b.Reweight, 1e-12)
		assert.LessOrEqual(t, b.Weight, norm.Bound(cfg)*(1+1e-12))
	}
}

func TestPruningStaysWithinThreshold(t *testing.T) {
	st := dimer(t, 0.6, 1.3)
	scale := timept.NewScale(20)
	exact := New(st, scale, Options{})
	pruned := New(st, scale, Options{PruneThreshold: 1e-8})
	cfg := configuration.New(st.NSubspaces(), st)

	a, b := exact.Evaluate(cfg), pruned.Evaluate(cfg)
	assert.InEpsilon(t, a.Trace, b.Trace, 1e-7)
}

func TestGapIntegralMatchesQuadrature(t *testing.T) {
	energies := []float64{0.2, 1.3}
	op := mat.NewDense(2, 2, []float64{0.5, -0.3, 0.8, 1.1})
	gap := Gap{Start: 0.4, Length: 1.7}
	omega := 2 * math.Pi / 3

	got := GapIntegral(energies, gap, []Insertion{{Op: op, Omega: omega}})
	for i := range 2 {
		for j := range 2 {
			f := func(x float64) complex128 {
				return complex(op.At(i, j), 0) *
					complex(math.Exp(-(gap.Length-x)*energies[i]-x*energies[j]), 0) *
					cmplx.Exp(complex(0, omega*(gap.Start+x)))
			}
			re := quad.Fixed(func(x float64) float64 { return real(f(x)) }, 0, gap.Length, 40, quad.Legendre{}, 0)
			im := quad.Fixed(func(x float64) float64 { return imag(f(x)) }, 0, gap.Length, 40, quad.Legendre{}, 0)
			assert.InDelta(t, re, real(got.At(i, j)), 1e-10)
			assert.InDelta(t, im, imag(got.At(i, j)), 1e-10)
		}
	}

	free := GapIntegral(energies, gap, nil)
	assert.InDelta(t, math.Exp(-1.7*0.2), real(free.At(0, 0)), 1e-15)
	assert.Zero(t, free.At(0, 1))
}

func TestGapIntegralTwoInsertions(t *testing.T) {
	energies := []float64{0.4}
	one := mat.NewDense(1, 1, []float64{1})
	gap := Gap{Length: 1.2}
	omega := 1.5

	// ∫∫_{x<y} e^{iω(y-x)} e^{-0.4·L} = e^{-0.4L}·∫_0^L (L-s)e^{iωs} ds.
	got := GapIntegral(energies, gap, []Insertion{{Op: one, Omega: -omega}, {Op: one, Omega: omega}})
	l := gap.Length
	iw := complex(0, omega)
	inner := (cmplx.Exp(iw*complex(l, 0)) - 1 - iw*complex(l, 0)) / (iw * iw)
	want := complex(math.Exp(-0.4*l), 0) * inner
	assert.InDelta(t, real(want), real(got.At(0, 0)), 1e-10)
	assert.InDelta(t, imag(want), imag(got.At(0, 0)), 1e-10)
}
