package configuration

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cthyb/internal/timept"
)

// twoLevel is a single spinless orbital: subspace 0 is empty, 1 is occupied.
type twoLevel struct{}

func (twoLevel) Connection(dagger bool, _, sub int) int {
	switch {
	case dagger && sub == 0:
		return 1
	case !dagger && sub == 1:
		return 0
	default:
		return -1
	}
}

var (
	cdag = Op{Dagger: true}
	c    = Op{}
)

func bruteMap(entries []Entry, conn Connector, sub int, lo, hi timept.Time) int {
	s := sub
	for _, e := range entries {
		if e.Time < lo || e.Time >= hi || s < 0 {
			continue
		}
		s = conn.Connection(e.Op.Dagger, e.Op.Linear, s)
	}
	return s
}

func TestInsertOrderAndRank(t *testing.T) {
	cfg := New(2, twoLevel{})
	times := []timept.Time{50, 10, 40, 20, 30}
	handles := make([]Handle, len(times))
	for i, tm := range times {
		h, err := cfg.Insert(tm, Op{Dagger: i%2 == 0})
		require.NoError(t, err)
		handles[i] = h
	}
	require.Equal(t, 5, cfg.Len())

	entries := cfg.Flatten(nil)
	require.Len(t, entries, 5)
	assert.True(t, slices.IsSortedFunc(entries, func(a, b Entry) int {
		return int(int64(a.Time) - int64(b.Time))
	}))

	for k := range 5 {
		h := cfg.At(k)
		assert.Equal(t, entries[k].Handle, h)
		assert.Equal(t, k, cfg.Rank(h))
	}
	assert.Equal(t, timept.Time(40), cfg.Get(handles[2]).Time)
}

func TestConflict(t *testing.T) {
	cfg := New(2, twoLevel{})
	_, err := cfg.Insert(7, cdag)
	require.NoError(t, err)

	_, err = cfg.Insert(7, cdag)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, cfg.Len())

	// A different flavor at the same time is fine and ordered by sequence.
	h, err := cfg.Insert(7, c)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Rank(h))
}

func TestClosesAndPath(t *testing.T) {
	cfg := New(2, twoLevel{})
	assert.True(t, cfg.Closes(0))
	assert.True(t, cfg.Closes(1))

	_, err := cfg.Insert(100, cdag)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Map(0))
	assert.Equal(t, -1, cfg.Map(1))
	assert.False(t, cfg.Closes(0))

	_, err = cfg.Insert(200, c)
	require.NoError(t, err)
	assert.True(t, cfg.Closes(0))
	assert.False(t, cfg.Closes(1))

	assert.Equal(t, 1, cfg.Path(0, 0, 150))
	assert.Equal(t, 0, cfg.Path(1, 150, timept.Time(timept.Ticks)))
	// Wrapped interval [150, β) ∪ [0, 120): c then c†.
	assert.Equal(t, 1, cfg.Path(1, 150, 120))
}

func TestPathMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	cfg := New(2, twoLevel{})
	for range 200 {
		op := Op{Dagger: r.IntN(2) == 0}
		_, err := cfg.Insert(timept.Time(r.Uint64N(1000)), op)
		if err != nil {
			require.ErrorIs(t, err, ErrConflict)
		}
		if cfg.Len() > 0 && r.IntN(3) == 0 {
			cfg.Remove(cfg.At(r.IntN(cfg.Len())))
		}

		entries := cfg.Flatten(nil)
		lo := timept.Time(r.Uint64N(1000))
		hi := lo + timept.Time(r.Uint64N(1000-uint64(lo)+1))
		for sub := range 2 {
			require.Equal(t, bruteMap(entries, twoLevel{}, sub, lo, hi), cfg.Path(sub, lo, hi))
			require.Equal(t, bruteMap(entries, twoLevel{}, sub, 0, timept.Time(timept.Ticks)), cfg.Map(sub))
		}
	}
}

func TestInsertRemoveRestoresExactly(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	cfg := New(2, twoLevel{})
	for range 50 {
		_, _ = cfg.Insert(timept.Random(r), Op{Dagger: r.IntN(2) == 0})
	}
	before := cfg.Flatten(nil)
	root := cfg.root
	seq := cfg.Seq()
	m0, m1 := cfg.Map(0), cfg.Map(1)

	h1, err := cfg.Insert(timept.Random(r), cdag)
	require.NoError(t, err)
	h2, err := cfg.Insert(timept.Random(r), c)
	require.NoError(t, err)
	cfg.Remove(h2)
	cfg.Remove(h1)
	cfg.RewindSeq(seq)

	assert.Equal(t, before, cfg.Flatten(nil))
	assert.Equal(t, root, cfg.root)
	assert.Equal(t, seq, cfg.Seq())
	assert.Equal(t, m0, cfg.Map(0))
	assert.Equal(t, m1, cfg.Map(1))
}

func TestRelabel(t *testing.T) {
	cfg := New(2, twoLevel{})
	_, _ = cfg.Insert(1, cdag)
	_, _ = cfg.Insert(2, c)
	require.True(t, cfg.Closes(0))

	flip := func(op Op) Op { op.Dagger = !op.Dagger; return op }
	require.NoError(t, cfg.Relabel(flip))
	assert.True(t, cfg.Closes(1))
	assert.False(t, cfg.Closes(0))

	_, _ = cfg.Insert(5, cdag)
	_, _ = cfg.Insert(5, c)
	require.ErrorIs(t, cfg.Relabel(func(Op) Op { return cdag }), ErrConflict)
	assert.Equal(t, cdag, cfg.Get(cfg.At(2)).Op)
}

func TestRestoreAndFind(t *testing.T) {
	cfg := New(2, twoLevel{})
	h1, err := cfg.Insert(100, cdag)
	require.NoError(t, err)
	_, err = cfg.Insert(200, c)
	require.NoError(t, err)

	e := cfg.Get(h1)
	assert.Equal(t, h1, cfg.Find(e.Time, e.Seq))
	assert.Equal(t, Handle(-1), cfg.Find(e.Time, e.Seq+7))

	before := cfg.Flatten(nil)
	seq := cfg.Seq()
	cfg.Remove(h1)
	assert.Equal(t, Handle(-1), cfg.Find(e.Time, e.Seq))

	moved := e
	moved.Time = 300
	h, err := cfg.Restore(moved)
	require.NoError(t, err)
	assert.Equal(t, seq, cfg.Seq())
	assert.Equal(t, 1, cfg.Rank(h))
	// c at 200 now acts before c† at 300.
	assert.Equal(t, -1, cfg.Map(0))
	assert.Equal(t, 1, cfg.Map(1))

	cfg.Remove(h)
	_, err = cfg.Restore(e)
	require.NoError(t, err)
	after := cfg.Flatten(nil)
	for i := range before {
		before[i].Handle, after[i].Handle = 0, 0
	}
	assert.Equal(t, before, after)

	_, err = cfg.Restore(Entry{Time: 200, Seq: 99, Op: c})
	require.ErrorIs(t, err, ErrConflict)
}
