package timept

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScale(t *testing.T) {
	s := NewScale(10)
	assert.Equal(t, 10.0, s.Beta())
	assert.Equal(t, 0.0, s.Float(Zero))
	assert.InDelta(t, 5.0, s.Float(Time(Ticks/2)), 1e-12)
	assert.Equal(t, Time(Ticks/2), s.FromFloat(5))
	assert.Equal(t, Time(Ticks-1), s.FromFloat(10))
	assert.Equal(t, Zero, s.FromFloat(-1))
	assert.InDelta(t, 2.5, s.Duration(Ticks/4), 1e-12)
}

func TestSub(t *testing.T) {
	d, wrapped := Sub(Time(10), Time(3))
	assert.Equal(t, uint64(7), d)
	assert.False(t, wrapped)

	d, wrapped = Sub(Time(3), Time(10))
	assert.Equal(t, Ticks-7, d)
	assert.True(t, wrapped)
}

func TestRandomAndBetween(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 1000 {
		x := Random(r)
		require.Less(t, uint64(x), Ticks)
	}

	lo := Time(Ticks - 5)
	for range 1000 {
		x := Between(r, lo, 10)
		d, _ := Sub(x, lo)
		require.Greater(t, d, uint64(0))
		require.Less(t, d, uint64(10))
	}
}
