package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	got, err := Parse([]TermSpec{
		{Coef: 2, Ops: []string{"n up 0", "n down 0"}},
		{Coef: -0.5, Ops: []string{"c+ up 0", "c up 0"}},
		{Coef: -0.5, Ops: []string{"n down 0"}},
	})
	require.NoError(t, err)

	nUp, nDn := N("up", "0"), N("down", "0")
	want := nUp.Mul(nDn).Scale(2).Sub(nUp.Add(nDn).Scale(0.5))
	assert.True(t, got.Sub(want).IsZero(), "got %s", got)

	c, err := Parse([]TermSpec{{Coef: 1.5}})
	require.NoError(t, err)
	assert.True(t, c.Sub(Const(1.5)).IsZero())
}

func TestParseErrors(t *testing.T) {
	for _, ops := range [][]string{{"c+ up"}, {"x up 0"}, {""}} {
		_, err := Parse([]TermSpec{{Coef: 1, Ops: ops}})
		require.ErrorIs(t, err, ErrSyntax, "%v", ops)
	}
}

func TestParseIndex(t *testing.T) {
	idx, err := ParseIndex("up,0")
	require.NoError(t, err)
	assert.Equal(t, Index{Block: "up", Inner: "0"}, idx)
	assert.Equal(t, "up,0", idx.String())

	_, err = ParseIndex("up")
	require.ErrorIs(t, err, ErrSyntax)
}
