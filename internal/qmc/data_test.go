package qmc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/det"
	"github.com/hupe1980/cthyb/internal/trace"
	"github.com/hupe1980/cthyb/operator"
)

func newData(t *testing.T) *Data {
	t.Helper()
	blocks := []operator.Block{
		{Name: "up", Indices: []string{"0"}},
		{Name: "down", Indices: []string{"0"}},
	}
	fops := operator.FromBlocks(blocks)
	nUp, nDn := operator.N("up", "0"), operator.N("down", "0")
	h := nUp.Mul(nDn).Scale(2).Sub(nUp.Add(nDn))
	st, err := hilbert.Autopartition{}.Partition(h, fops)
	require.NoError(t, err)

	mesh, err := gf.NewTauMesh(4, 201)
	require.NoError(t, err)
	var delta []*gf.BlockTau
	for range blocks {
		d, err := gf.DiscreteBath(mesh, 1, []gf.BathLevel{{Energy: 0.2, Coupling: []float64{0.5}}})
		require.NoError(t, err)
		delta = append(delta, d)
	}
	rng, err := NewRand("", 1)
	require.NoError(t, err)
	d, err := New(st, blocks, delta, rng, trace.Options{})
	require.NoError(t, err)
	return d
}

func TestNewRand(t *testing.T) {
	a, err := NewRand("pcg", 7)
	require.NoError(t, err)
	b, err := NewRand("", 7)
	require.NoError(t, err)
	assert.Equal(t, a.Uint64(), b.Uint64())

	c, err := NewRand("chacha8", 7)
	require.NoError(t, err)
	d, err := NewRand("chacha8", 8)
	require.NoError(t, err)
	assert.NotEqual(t, c.Uint64(), d.Uint64())

	_, err = NewRand("mt19937", 1)
	require.ErrorIs(t, err, ErrRandomName)
}

func TestInitialState(t *testing.T) {
	d := newData(t)
	assert.Equal(t, 2, len(d.Blocks))
	assert.Equal(t, 1, d.Blocks[1].Offset)
	assert.Equal(t, 1.0, d.Sign)
	assert.InDelta(t, d.Structure.PartitionFunction(4), d.Atomic.Trace, 1e-12)
	assert.Equal(t, 1.0, d.MeasureSign())
	assert.Equal(t, 0, d.TotalOrder())

	op := d.Op(1, 0, true)
	assert.Equal(t, 1, op.Linear)
	assert.True(t, op.Dagger)
}

func TestPermutation(t *testing.T) {
	d := newData(t)
	s := d.Scale
	_, err := d.Config.Insert(s.FromFloat(1), d.Op(0, 0, false))
	require.NoError(t, err)
	_, err = d.Config.Insert(s.FromFloat(2), d.Op(0, 0, true))
	require.NoError(t, err)
	// c† is later: the descending order c† c is odd w.r.t. c c†.
	assert.Equal(t, -1.0, d.Permutation())

	_, err = d.Config.Insert(s.FromFloat(0.5), d.Op(1, 0, false))
	require.NoError(t, err)
	_, err = d.Config.Insert(s.FromFloat(3), d.Op(1, 0, true))
	require.NoError(t, err)
	// Descending: c†_dn c†_up c_up c_dn against c_up c†_up c_dn c†_dn.
	assert.Equal(t, 1.0, d.Permutation())
}

func TestEntryIsAntiperiodic(t *testing.T) {
	d := newData(t)
	f := d.entry(0)
	g := d.Delta(0)
	s := d.Scale

	x := det.Point{Time: s.FromFloat(3), Seq: 1}
	y := det.Point{Time: s.FromFloat(1), Seq: 2}
	assert.InDelta(t, g.Eval(2, 0, 0), f(x, y), 1e-12)
	assert.InDelta(t, -g.Eval(2, 0, 0), f(y, x), 1e-12)

	same := det.Point{Time: x.Time, Seq: 5}
	assert.Equal(t, g.At(0, 0, 0), f(same, x))
	assert.Equal(t, -g.At(200, 0, 0), f(x, same))
}

func TestSetDeltaRegenerates(t *testing.T) {
	d := newData(t)
	s := d.Scale
	hc, err := d.Config.Insert(s.FromFloat(2), d.Op(0, 0, true))
	require.NoError(t, err)
	h, err := d.Config.Insert(s.FromFloat(1), d.Op(0, 0, false))
	require.NoError(t, err)
	d.Dets[0].TryInsert(Point(d.Config.Get(hc)), Point(d.Config.Get(h)))
	_, err = d.Dets[0].Complete()
	require.NoError(t, err)
	d.Refresh()
	assert.Equal(t, hc, d.Handle(d.Dets[0].Row(0)))

	before := d.Dets[0].Determinant()
	avg := gf.Average(d.Delta(0))
	drift, err := d.SetDelta([]*gf.BlockTau{avg, d.Delta(1)})
	require.NoError(t, err)
	assert.Positive(t, drift)
	assert.InDelta(t, avg.At(0, 0, 0), d.Dets[0].Determinant(), 1e-12)
	assert.NotEqual(t, before, d.Dets[0].Determinant())

	sign, logAbs := d.Weight()
	assert.Equal(t, d.Sign, sign)
	assert.False(t, math.IsNaN(logAbs))
}
