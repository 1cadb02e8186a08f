package trace

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/integrate/quad"
)

const (
	l1 = -1.1
	l2 = 0.001
	l3 = 0.5
	l4 = -2.3
	l5 = 5.9
)

func TestEvolutionIntegralReferenceValues(t *testing.T) {
	cases := []struct {
		name string
		l    []float64
		want float64
	}{
		{"n1", []float64{l1, l2}, -0.6068387070559753},
		{"n1 degenerate", []float64{l1, l1}, -0.33287108369807955},
		{"n2", []float64{l1, l2, l3}, 0.43199931827716453},
		{"n2 two equal", []float64{l1, l1, l2}, 0.2488352619054457},
		{"n2 all equal", []float64{l1, l1, l1}, 0.16643554184903978},
		{"n4", []float64{l1, l2, l3, l4, l5}, 0.17638333857571462},
		{"n4 pair", []float64{l1, l1, l2, l3, l4}, 0.020244899523797544},
		{"n4 two pairs", []float64{l1, l1, l2, l2, l3}, 0.030709162276787143},
		{"n4 triple", []float64{l1, l1, l1, l2, l3}, 0.0247729599423155},
		{"n4 triple and pair", []float64{l1, l1, l1, l2, l2}, 0.022082528548217618},
		{"n4 quadruple", []float64{l1, l1, l1, l1, l2}, 0.017586090258800525},
		{"n4 all equal", []float64{l1, l1, l1, l1, l1}, 0.013869628487419981},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, EvolutionIntegral(tc.l...), 1e-12)
		})
	}
}

func TestSlidingIntegralReferenceValues(t *testing.T) {
	const dt = 0.5
	cases := []struct {
		e    []float64
		want float64
	}{
		{[]float64{l1, l2}, 0.6664422278730481},
		{[]float64{l1, l1}, 0.8666265089336976},
		{[]float64{l1, l2, l3}, 0.14009936097305434},
		{[]float64{l1, l1, l2}, 0.18182041876534927},
		{[]float64{l1, l1, l1}, 0.2166566272334244},
		{[]float64{l1, l2, l3, l4, l5}, 0.002228035849416145},
		{[]float64{l1, l1, l2, l3, l4}, 0.003962922812390968},
		{[]float64{l1, l1, l2, l2, l3}, 0.0031132577613928645},
		{[]float64{l1, l1, l1, l2, l3}, 0.003478034499745782},
		{[]float64{l1, l1, l1, l2, l2}, 0.00364336019678325},
		{[]float64{l1, l1, l1, l1, l2}, 0.004058965987701827},
		{[]float64{l1, l1, l1, l1, l1}, 0.004513679734029675},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, SlidingIntegral(dt, tc.e...), 1e-12, "%v", tc.e)
	}
	assert.InDelta(t, math.Exp(-dt*l3), SlidingIntegral(dt, l3), 1e-15)
}

func TestSlidingIntegralSymmetric(t *testing.T) {
	a := SlidingIntegral(1.3, 0.2, 1.7, -0.4)
	b := SlidingIntegral(1.3, -0.4, 0.2, 1.7)
	assert.InDelta(t, a, b, 1e-13)
}

func TestSlidingIntegralMatchesQuadrature(t *testing.T) {
	const dt = 1.7
	e := []float64{0.3, 2.1, -0.8}

	one := quad.Fixed(func(s float64) float64 {
		return math.Exp(-e[0]*s - e[1]*(dt-s))
	}, 0, dt, 40, quad.Legendre{}, 0)
	assert.InDelta(t, one, SlidingIntegral(dt, e[0], e[1]), 1e-10)

	two := quad.Fixed(func(s1 float64) float64 {
		return quad.Fixed(func(s2 float64) float64 {
			return math.Exp(-e[0]*s1 - e[1]*(s2-s1) - e[2]*(dt-s2))
		}, s1, dt, 40, quad.Legendre{}, 0)
	}, 0, dt, 40, quad.Legendre{}, 0)
	assert.InDelta(t, two, SlidingIntegral(dt, e...), 1e-10)

	// Nearly degenerate exponents switch to the confluent limit.
	near := SlidingIntegral(dt, 0.5, 0.5+1e-8)
	assert.InDelta(t, dt*math.Exp(-0.5*dt), near, 1e-7)
}

func TestSlidingIntegralComplexPhase(t *testing.T) {
	const (
		dt = 0.9
		w  = 2.3
		e0 = 0.4
		e1 = 1.2
	)
	re := quad.Fixed(func(s float64) float64 {
		return real(cmplx.Exp(complex(-e0*s-e1*(dt-s), w*s)))
	}, 0, dt, 60, quad.Legendre{}, 0)
	im := quad.Fixed(func(s float64) float64 {
		return imag(cmplx.Exp(complex(-e0*s-e1*(dt-s), w*s)))
	}, 0, dt, 60, quad.Legendre{}, 0)
	got := SlidingIntegralC(dt, complex(e0, -w), complex(e1, 0))
	assert.InDelta(t, re, real(got), 1e-10)
	assert.InDelta(t, im, imag(got), 1e-10)

	assert.InDelta(t, SlidingIntegral(dt, e0, e1), real(SlidingIntegralC(dt, complex(e0, 0), complex(e1, 0))), 1e-14)
	assert.InDelta(t, EvolutionIntegral(l1, l2), real(EvolutionIntegralC(complex(l1, 0), complex(l2, 0))), 1e-14)
}

// equallySpaced returns exp[x, x+d, …, x+n·d] = e^x·((e^d-1)/d)^n / n!.
func equallySpaced(x, d float64, n int) float64 {
	q := 1.0
	if d != 0 {
		q = math.Expm1(d) / d
	}
	return math.Exp(x) * math.Pow(q, float64(n)) * invFactorial[n]
}

func TestEvolutionIntegralNearlyDegenerate(t *testing.T) {
	for _, d := range []float64{1e-9, 1e-7, 2e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1, 0.3, 0.5, 0.9} {
		for n := 1; n <= 4; n++ {
			l := make([]float64, n+1)
			for k := range l {
				l[k] = l1 + float64(k)*d
			}
			want := equallySpaced(l1, d, n)
			if n%2 == 1 {
				want = -want
			}
			assert.InEpsilon(t, want, EvolutionIntegral(l...), 1e-11, "d=%g n=%d", d, n)
		}
	}
	assert.InEpsilon(t, 0.013869628487419981, EvolutionIntegral(l1, l1+2e-6, l1+4e-6, l1+6e-6, l1+8e-6), 1e-5)
}

func TestSlidingIntegralNearlyDegenerate(t *testing.T) {
	// Short window with a small splitting.
	const dt = 1e-3
	h := -dt * 0.005
	want := math.Pow(dt, 4) * equallySpaced(0, h, 4)
	assert.InEpsilon(t, want, SlidingIntegral(dt, 0, 0.005, 0.01, 0.015, 0.02), 1e-10)

	// Mixed cluster: two nearly equal exponents and a distant one.
	const w = 1.4
	e := []float64{0.3, 0.3 + 3e-6, 2.6}
	two := quad.Fixed(func(s1 float64) float64 {
		return quad.Fixed(func(s2 float64) float64 {
			return math.Exp(-e[0]*s1 - e[1]*(s2-s1) - e[2]*(w-s2))
		}, s1, w, 40, quad.Legendre{}, 0)
	}, 0, w, 40, quad.Legendre{}, 0)
	assert.InEpsilon(t, two, SlidingIntegral(w, e...), 1e-10)

	// Complex nodes with a small complex step.
	d := complex(1e-5, 3e-5)
	var l []complex128
	for k := range 5 {
		l = append(l, complex(l1, 0.2)+complex(float64(k), 0)*d)
	}
	q := (cmplx.Exp(d) - 1) / d
	wantC := cmplx.Exp(l[0]) * q * q * q * q / 24
	got := EvolutionIntegralC(l...)
	assert.InDelta(t, 0, cmplx.Abs(got-wantC)/cmplx.Abs(wantC), 1e-10)
}

func TestEvolutionIntegralOrderOutOfRange(t *testing.T) {
	assert.Panics(t, func() { EvolutionIntegral() })
	assert.Panics(t, func() { EvolutionIntegral(1, 2, 3, 4, 5, 6, 7) })
}
