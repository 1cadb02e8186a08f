package testutil

import (
	"math"
	"math/cmplx"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cthyb/operator"
)

func TestTimes(t *testing.T) {
	rng := NewRNG(4711)
	v := rng.Times(16, 3)
	assert.Len(t, v, 16)
	assert.True(t, slices.IsSorted(v))
	assert.GreaterOrEqual(t, v[0], 0.0)
	assert.Less(t, v[15], 3.0)
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	a := rng.Energies(4, -1, 1)
	rng.Reset()
	b := rng.Energies(4, -1, 1)
	assert.Equal(t, a, b)
	assert.Equal(t, uint64(4711), rng.Seed())
}

func TestResonantLevelLimits(t *testing.T) {
	// Without coupling the level is a free fermion.
	p := ResonantLevel(5, 0.3, 0, 0.1, 11)
	n := 1 / (math.Exp(5*0.3) + 1)
	assert.InDelta(t, n, p.ExactOccupation(), 1e-12)
	assert.InDelta(t, -(1 - n), p.ExactG(0), 1e-12)

	// G(0) + G(β) = -1 for any coupling.
	q := ResonantLevel(5, 0.3, 0.8, -0.2, 11)
	assert.InDelta(t, -1.0, q.ExactG(0)+q.ExactG(5), 1e-12)
	require.Len(t, q.Delta, 1)
	assert.InDelta(t, -0.64, q.Delta[0].At(0, 0, 0)+q.Delta[0].At(10, 0, 0), 1e-12)
}

func TestExactGiw(t *testing.T) {
	// Decoupled level: G(iν) = 1/(iν - ε).
	p := ResonantLevel(5, 0.3, 0, 0.1, 11)
	nu := math.Pi / 5
	assert.InDelta(t, 0, cmplx.Abs(1/complex(-0.3, nu)-p.ExactGiw(nu)), 1e-12)

	// The Dyson equation with the bath self-energy.
	q := ResonantLevel(5, 0.3, 0.8, -0.2, 11)
	want := 1 / (complex(-0.3, nu) - 0.64/complex(0.2, nu))
	assert.InDelta(t, 0, cmplx.Abs(want-q.ExactGiw(nu)), 1e-12)
}

func TestHubbardAtom(t *testing.T) {
	p := HubbardAtom(10, 2, 1, 0.5, 0, 101)
	assert.Len(t, p.Blocks, 2)
	assert.Len(t, p.Delta, 2)
	assert.False(t, p.HLoc.IsZero())
}

func TestExactAverage(t *testing.T) {
	p := ResonantLevel(5, 0.3, 0.8, -0.2, 11)
	n, err := p.ExactAverage(operator.N("d", "0"))
	require.NoError(t, err)
	assert.InDelta(t, p.ExactOccupation(), n, 1e-10)

	// A decoupled atom at half filling: weights 1, 2e^{β/2}, 1.
	q := HubbardAtom(2, 1, 0.5, 0, 0.3, 11)
	d, err := q.ExactAverage(operator.N("up", "0").Mul(operator.N("down", "0")))
	require.NoError(t, err)
	assert.InDelta(t, 1/(2+2*math.Exp(1)), d, 1e-10)
}

func TestStructure(t *testing.T) {
	st, err := ResonantLevel(5, 0.3, 0.8, -0.2, 11).Structure()
	require.NoError(t, err)
	assert.Equal(t, 2, st.NSubspaces())
	assert.InDelta(t, 1+math.Exp(-5*0.3), st.PartitionFunction(5), 1e-12)
}
