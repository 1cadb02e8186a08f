package measure

import (
	"math"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/internal/qmc"
)

// GTau accumulates G_ab(τ) = -⟨T c_a(τ) c†_b(0)⟩ per block on an
// equidistant mesh. Samples are binned to the nearest mesh point; the two
// edge bins are half as wide.
type GTau struct {
	d    *qmc.Data
	mesh gf.TauMesh
	buf  []float64
	offs []int

	// Result holds the normalised functions after Finalize.
	Result []*gf.BlockTau
}

// NewGTau returns a G(τ) accumulator with nTau mesh points.
func NewGTau(d *qmc.Data, nTau int) (*GTau, error) {
	mesh, err := gf.NewTauMesh(d.Beta(), nTau)
	if err != nil {
		return nil, err
	}
	g := &GTau{d: d, mesh: mesh}
	var total int
	for _, blk := range d.Blocks {
		g.offs = append(g.offs, total)
		total += nTau * blk.Size * blk.Size
	}
	g.buf = make([]float64, total)
	return g, nil
}

func (g *GTau) Accumulate(sign float64) {
	if sign == 0 {
		return
	}
	beta := g.d.Beta()
	width := g.mesh.Step()
	last := g.mesh.N - 1
	for b, blk := range g.d.Blocks {
		off, size := g.offs[b], blk.Size
		pairs(g.d, b, func(a, c int, tau, m float64) {
			k := g.mesh.Nearest(tau)
			w := width
			if k == 0 || k == last {
				w /= 2
			}
			g.buf[off+(k*size+a)*size+c] -= sign * m / (beta * w)
		})
	}
}

func (g *GTau) Buffer() []float64 { return g.buf }

func (g *GTau) Finalize(z float64) {
	g.Result = make([]*gf.BlockTau, len(g.d.Blocks))
	for b, blk := range g.d.Blocks {
		out := gf.NewBlockTau(g.mesh, blk.Size)
		src := g.buf[g.offs[b] : g.offs[b]+len(out.Data)]
		for i, v := range src {
			out.Data[i] = v / z
		}
		g.Result[b] = out
	}
}

// GLegendre accumulates the Legendre coefficients
// G_l = √(2l+1) ∫ dτ P_l(2τ/β-1) G(τ) per block.
type GLegendre struct {
	d    *qmc.Data
	nl   int
	buf  []float64
	offs []int
	p    []float64

	// Result holds the normalised coefficients after Finalize.
	Result []*gf.BlockLegendre
}

// NewGLegendre returns an accumulator for nl coefficients.
func NewGLegendre(d *qmc.Data, nl int) *GLegendre {
	g := &GLegendre{d: d, nl: nl, p: make([]float64, nl)}
	var total int
	for _, blk := range d.Blocks {
		g.offs = append(g.offs, total)
		total += nl * blk.Size * blk.Size
	}
	g.buf = make([]float64, total)
	return g
}

func (g *GLegendre) Accumulate(sign float64) {
	if sign == 0 {
		return
	}
	beta := g.d.Beta()
	for b, blk := range g.d.Blocks {
		off, size := g.offs[b], blk.Size
		pairs(g.d, b, func(a, c int, tau, m float64) {
			gf.LegendreP(g.p, 2*tau/beta-1)
			for l, p := range g.p {
				g.buf[off+(l*size+a)*size+c] -= sign * m * math.Sqrt(float64(2*l+1)) * p / beta
			}
		})
	}
}

func (g *GLegendre) Buffer() []float64 { return g.buf }

func (g *GLegendre) Finalize(z float64) {
	g.Result = make([]*gf.BlockLegendre, len(g.d.Blocks))
	for b, blk := range g.d.Blocks {
		out := gf.NewBlockLegendre(g.d.Beta(), g.nl, blk.Size)
		src := g.buf[g.offs[b] : g.offs[b]+len(out.Data)]
		for i, v := range src {
			out.Data[i] = v / z
		}
		g.Result[b] = out
	}
}
