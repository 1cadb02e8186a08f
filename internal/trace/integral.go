package trace

import (
	"math"
	"math/cmplx"
)

// MaxIntegralOrder is the largest number of operators that can be slid
// through one gap.
const MaxIntegralOrder = 5

// clusterSpread is the node diameter below which a divided difference is
// summed as a Taylor series about the mean instead of by division.
const clusterSpread = 1.0

// taylorTerms bounds that series. With all nodes within clusterSpread of
// their mean the remainder is below 1/(taylorTerms+1)!.
const taylorTerms = 20

var invFactorial = [MaxIntegralOrder + 1]float64{1, 1, 1.0 / 2, 1.0 / 6, 1.0 / 24, 1.0 / 120}

type scalar interface {
	~float64 | ~complex128
}

type arith[T scalar] struct {
	exp  func(T) T
	abs  func(T) float64
	real func(float64) T
}

var (
	realArith = arith[float64]{
		exp:  math.Exp,
		abs:  math.Abs,
		real: func(x float64) float64 { return x },
	}
	complexArith = arith[complex128]{
		exp:  cmplx.Exp,
		abs:  cmplx.Abs,
		real: func(x float64) complex128 { return complex(x, 0) },
	}
)

// EvolutionIntegral returns (-1)^n times the divided difference of exp at
// the n+1 nodes l. Coincident and nearly coincident nodes are allowed.
func EvolutionIntegral(l ...float64) float64 {
	return dividedExp(l, realArith)
}

// EvolutionIntegralC is the complex counterpart of EvolutionIntegral.
func EvolutionIntegralC(l ...complex128) complex128 {
	return dividedExp(l, complexArith)
}

// SlidingIntegral integrates exp(-Σ e_k·s_k) over all ways of cutting a
// window of length dt into len(e) consecutive segments s_0..s_n.
func SlidingIntegral(dt float64, e ...float64) float64 {
	var buf [MaxIntegralOrder + 1]float64
	l := buf[:len(e)]
	for k, x := range e {
		l[k] = -dt * x
	}
	return math.Pow(-dt, float64(len(e)-1)) * dividedExp(l, realArith)
}

// SlidingIntegralC is SlidingIntegral with complex segment exponents.
func SlidingIntegralC(dt float64, e ...complex128) complex128 {
	var buf [MaxIntegralOrder + 1]complex128
	l := buf[:len(e)]
	for k, x := range e {
		l[k] = complex(-dt, 0) * x
	}
	return complex(math.Pow(-dt, float64(len(e)-1)), 0) * dividedExp(l, complexArith)
}

// dividedExp evaluates (-1)^n·exp[l_0..l_n] by recursion over node subsets.
// A subset wider than clusterSpread splits at its two most distant nodes, so
// every division is by at least clusterSpread. Narrower subsets are summed by
// taylorExp.
func dividedExp[T scalar](l []T, ar arith[T]) T {
	n := len(l)
	if n == 0 || n > MaxIntegralOrder+1 {
		panic("trace: evolution integral order out of range")
	}
	var (
		memo [1 << (MaxIntegralOrder + 1)]T
		done [1 << (MaxIntegralOrder + 1)]bool
	)
	var eval func(mask uint) T
	eval = func(mask uint) T {
		if done[mask] {
			return memo[mask]
		}
		var (
			count  int
			sum    T
			bi, bj = -1, -1
			spread = -1.0
		)
		for i := range n {
			if mask&(1<<i) == 0 {
				continue
			}
			count++
			sum += l[i]
			for j := i + 1; j < n; j++ {
				if mask&(1<<j) == 0 {
					continue
				}
				if d := ar.abs(l[i] - l[j]); d > spread {
					spread, bi, bj = d, i, j
				}
			}
		}
		var v T
		if spread < clusterSpread {
			v = taylorExp(l, mask, count, sum/ar.real(float64(count)), ar)
			if count%2 == 0 {
				v = -v
			}
		} else {
			// (-1)^k exp[S] = ((-1)^(k-1)exp[S\j] - (-1)^(k-1)exp[S\i]) / (l_i - l_j)
			v = (eval(mask&^(1<<bj)) - eval(mask&^(1<<bi))) / (l[bi] - l[bj])
			v = -v
		}
		memo[mask], done[mask] = v, true
		return v
	}
	return eval(1<<n - 1)
}

// taylorExp returns exp[x_S] for the nodes in mask, expanded about their
// mean c:
//
//	exp[x_0..x_k] = e^c · Σ_m h_m(x_0-c, …, x_k-c) / (m+k)!
//
// where h_m is the complete homogeneous symmetric polynomial of degree m.
func taylorExp[T scalar](l []T, mask uint, count int, mean T, ar arith[T]) T {
	var h [taylorTerms + 1]T
	h[0] = 1
	for i := range l {
		if mask&(1<<i) == 0 {
			continue
		}
		y := l[i] - mean
		for m := 1; m <= taylorTerms; m++ {
			h[m] += y * h[m-1]
		}
	}
	k := count - 1
	inv := invFactorial[k]
	var sum T
	for m := range taylorTerms + 1 {
		sum += h[m] * ar.real(inv)
		inv /= float64(m + k + 1)
	}
	return ar.exp(mean) * sum
}
