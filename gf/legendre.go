package gf

import "math"

// LegendreP fills p[l] = P_l(x) for l < len(p).
func LegendreP(p []float64, x float64) {
	if len(p) == 0 {
		return
	}
	p[0] = 1
	if len(p) == 1 {
		return
	}
	p[1] = x
	for l := 2; l < len(p); l++ {
		fl := float64(l)
		p[l] = ((2*fl-1)*x*p[l-1] - (fl-1)*p[l-2]) / fl
	}
}

// BlockLegendre holds Legendre coefficients G_l,ab.
type BlockLegendre struct {
	Beta float64
	NL   int
	Size int
	// Data is laid out as [l][a][b].
	Data []float64
}

// NewBlockLegendre returns zero coefficients.
func NewBlockLegendre(beta float64, nl, size int) *BlockLegendre {
	return &BlockLegendre{Beta: beta, NL: nl, Size: size, Data: make([]float64, nl*size*size)}
}

func (g *BlockLegendre) offset(l, a, b int) int { return (l*g.Size+a)*g.Size + b }

// At returns G_l,ab.
func (g *BlockLegendre) At(l, a, b int) float64 { return g.Data[g.offset(l, a, b)] }

// Add adds v to G_l,ab.
func (g *BlockLegendre) Add(l, a, b int, v float64) { g.Data[g.offset(l, a, b)] += v }

// Eval reconstructs G_ab(τ) = Σ_l √(2l+1)/β · P_l(2τ/β-1) · G_l.
func (g *BlockLegendre) Eval(tau float64, a, b int) float64 {
	p := make([]float64, g.NL)
	LegendreP(p, 2*tau/g.Beta-1)
	var s float64
	for l := range g.NL {
		s += math.Sqrt(float64(2*l+1)) / g.Beta * p[l] * g.At(l, a, b)
	}
	return s
}
