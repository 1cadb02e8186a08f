package hilbert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/operator"
)

func hubbardAtom(u, mu float64) (operator.Expr, *operator.FundamentalSet) {
	fops := operator.FromBlocks([]operator.Block{
		{Name: "up", Indices: []string{"0"}},
		{Name: "down", Indices: []string{"0"}},
	})
	nUp, nDn := operator.N("up", "0"), operator.N("down", "0")
	h := nUp.Mul(nDn).Scale(u).Sub(nUp.Add(nDn).Scale(mu))
	return h, fops
}

func spinlessDimer(hop float64) (operator.Expr, *operator.FundamentalSet) {
	fops := operator.FromBlocks([]operator.Block{{Name: "a", Indices: []string{"0", "1"}}})
	h := operator.CDag("a", "0").Mul(operator.C("a", "1")).
		Add(operator.CDag("a", "1").Mul(operator.C("a", "0"))).
		Scale(-hop)
	return h, fops
}

func TestAutopartitionHubbardAtom(t *testing.T) {
	h, fops := hubbardAtom(2, 1)
	st, err := Autopartition{}.Partition(h, fops)
	require.NoError(t, err)
	require.Equal(t, 4, st.NSubspaces())
	assert.InDelta(t, -1.0, st.GroundEnergy(), 1e-12)

	energies := map[uint64]float64{}
	for i := range st.NSubspaces() {
		require.Equal(t, 1, st.Dim(i))
		energies[st.Subspace(i).States[0]] = st.Energies(i)[0]
	}
	assert.InDelta(t, 1.0, energies[0b00], 1e-12)
	assert.InDelta(t, 0.0, energies[0b01], 1e-12)
	assert.InDelta(t, 0.0, energies[0b10], 1e-12)
	assert.InDelta(t, 1.0, energies[0b11], 1e-12)

	beta := 3.0
	assert.InDelta(t, 2+2*math.Exp(-beta), st.PartitionFunction(beta), 1e-12)

	// c†_up takes the empty state to |up⟩ and annihilates |up⟩.
	empty := st.where[0b00]
	up := st.where[0b01]
	assert.Equal(t, int(up), st.Connection(true, 0, int(empty)))
	assert.Equal(t, -1, st.Connection(true, 0, int(up)))
	assert.InDelta(t, 1.0, math.Abs(st.Block(true, 1, int(up)).At(0, 0)), 1e-12)
	assert.InDelta(t, 1.0, st.Norm(true, 1, int(up)), 1e-12)
	assert.Nil(t, st.Block(true, 0, int(up)))
}

func TestAutopartitionGroupsHoppingSectors(t *testing.T) {
	h, fops := spinlessDimer(0.7)
	st, err := Autopartition{}.Partition(h, fops)
	require.NoError(t, err)
	require.Equal(t, 3, st.NSubspaces())

	var found bool
	for i := range st.NSubspaces() {
		if st.Dim(i) == 2 {
			found = true
			assert.InDelta(t, 0.0, st.Energies(i)[0], 1e-12)
			assert.InDelta(t, 1.4, st.Energies(i)[1], 1e-12)
		}
	}
	assert.True(t, found)
	assert.InDelta(t, -0.7, st.GroundEnergy(), 1e-12)
}

func TestQuantumNumbers(t *testing.T) {
	h, fops := spinlessDimer(0.7)
	n := operator.N("a", "0").Add(operator.N("a", "1"))

	st, err := QuantumNumbers{QN: []operator.Expr{n}}.Partition(h, fops)
	require.NoError(t, err)
	assert.Equal(t, 3, st.NSubspaces())

	_, err = QuantumNumbers{QN: []operator.Expr{operator.N("a", "0")}}.Partition(h, fops)
	require.ErrorIs(t, err, ErrNotConserved)

	hop := operator.CDag("a", "0").Mul(operator.C("a", "1"))
	_, err = QuantumNumbers{QN: []operator.Expr{hop}}.Partition(h, fops)
	require.ErrorIs(t, err, ErrNotDiagonal)

	_, err = QuantumNumbers{}.Partition(h, fops)
	require.ErrorIs(t, err, ErrNoQuantumNumbers)
}

func TestSingleAnticommutator(t *testing.T) {
	h, fops := hubbardAtom(1.3, 0.4)
	st, err := Single{}.Partition(h, fops)
	require.NoError(t, err)
	require.Equal(t, 1, st.NSubspaces())
	require.Equal(t, 4, st.Dim(0))

	for linear := range 2 {
		c, cd := st.Block(false, linear, 0), st.Block(true, linear, 0)
		var a, b, sum mat.Dense
		a.Mul(c, cd)
		b.Mul(cd, c)
		sum.Add(&a, &b)
		for i := range 4 {
			for j := range 4 {
				want := 0.0
				if i == j {
					want = 1
				}
				assert.InDelta(t, want, sum.At(i, j), 1e-12)
			}
		}
	}
	// {c_up, c†_down} = 0 requires the Jordan-Wigner string.
	var a, b, sum mat.Dense
	a.Mul(st.Block(false, 0, 0), st.Block(true, 1, 0))
	b.Mul(st.Block(true, 1, 0), st.Block(false, 0, 0))
	sum.Add(&a, &b)
	assert.InDelta(t, 0.0, mat.Norm(&sum, 2), 1e-12)
}

func TestLocalOperators(t *testing.T) {
	h, fops := hubbardAtom(2, 1)
	st, err := Autopartition{}.Partition(h, fops)
	require.NoError(t, err)

	n, err := st.Local(operator.N("up", "0").Add(operator.N("down", "0")))
	require.NoError(t, err)
	assert.True(t, n.Diagonal())

	beta := 2.0
	z := 2 + 2*math.Exp(-beta)
	want := (2*1 + 2*math.Exp(-beta)) / z
	assert.InDelta(t, want, st.AtomicAverage(n, beta), 1e-12)

	flip, err := st.Local(operator.CDag("up", "0").Mul(operator.C("down", "0")))
	require.NoError(t, err)
	assert.False(t, flip.Diagonal())

	_, err = st.Local(operator.CDag("up", "0").Add(operator.CDag("down", "0")))
	require.ErrorIs(t, err, ErrMixesSubspaces)
}

func TestInputErrors(t *testing.T) {
	_, fops := hubbardAtom(1, 0)

	_, err := Autopartition{}.Partition(operator.N("x", "0"), fops)
	var unknown *ErrUnknownOperator
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, operator.Index{Block: "x", Inner: "0"}, unknown.Index)

	complexH := operator.N("up", "0").ScaleComplex(complex(1, 1e-3))
	_, err = Autopartition{ImagThreshold: 1e-15}.Partition(complexH, fops)
	require.ErrorIs(t, err, ErrComplexCoefficient)

	_, err = Autopartition{ImagThreshold: 1e-2}.Partition(complexH, fops)
	require.NoError(t, err)

	nonHermitian := operator.CDag("up", "0").Mul(operator.C("down", "0"))
	_, err = Single{}.Partition(nonHermitian, fops)
	require.ErrorIs(t, err, ErrNotHermitian)
}

func TestSummary(t *testing.T) {
	h, fops := hubbardAtom(2, 1)
	st, err := Autopartition{}.Partition(h, fops)
	require.NoError(t, err)
	sum := st.Summary()
	require.Len(t, sum, 4)
	assert.Equal(t, []string{"|00>"}, sum[0].States)
	assert.InDelta(t, 1.0, sum[0].MinEnergy, 1e-12)
}
