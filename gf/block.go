package gf

import (
	"errors"
	"math"
)

// ErrShape is returned when two containers do not have the same layout.
var ErrShape = errors.New("green's function shapes differ")

// BlockTau is a real size x size matrix-valued function on a TauMesh.
type BlockTau struct {
	Mesh TauMesh
	Size int
	// Data is laid out as [i][a][b].
	Data []float64
}

// NewBlockTau returns a zero function.
func NewBlockTau(mesh TauMesh, size int) *BlockTau {
	return &BlockTau{Mesh: mesh, Size: size, Data: make([]float64, mesh.N*size*size)}
}

func (g *BlockTau) offset(i, a, b int) int { return (i*g.Size+a)*g.Size + b }

// At returns G_ab(τ_i).
func (g *BlockTau) At(i, a, b int) float64 { return g.Data[g.offset(i, a, b)] }

// Set sets G_ab(τ_i).
func (g *BlockTau) Set(i, a, b int, v float64) { g.Data[g.offset(i, a, b)] = v }

// Add adds v to G_ab(τ_i).
func (g *BlockTau) Add(i, a, b int, v float64) { g.Data[g.offset(i, a, b)] += v }

// Eval linearly interpolates G_ab at tau in [0, β].
func (g *BlockTau) Eval(tau float64, a, b int) float64 {
	x := tau / g.Mesh.Step()
	i := int(x)
	if i >= g.Mesh.N-1 {
		i = g.Mesh.N - 2
	}
	if i < 0 {
		i = 0
	}
	w := x - float64(i)
	return (1-w)*g.At(i, a, b) + w*g.At(i+1, a, b)
}

// EvalAntiperiodic evaluates at tau in (-β, β) using G(τ-β) = -G(τ).
func (g *BlockTau) EvalAntiperiodic(tau float64, a, b int) float64 {
	if tau < 0 {
		return -g.Eval(tau+g.Mesh.Beta, a, b)
	}
	return g.Eval(tau, a, b)
}

// Clone returns a deep copy.
func (g *BlockTau) Clone() *BlockTau {
	out := *g
	out.Data = append([]float64(nil), g.Data...)
	return &out
}

// Scale multiplies all values by x.
func (g *BlockTau) Scale(x float64) {
	for i := range g.Data {
		g.Data[i] *= x
	}
}

// AddTo accumulates h into g.
func (g *BlockTau) AddTo(h *BlockTau) error {
	if len(g.Data) != len(h.Data) || g.Size != h.Size {
		return ErrShape
	}
	for i, v := range h.Data {
		g.Data[i] += v
	}
	return nil
}

// Average returns the constant function 0.5·(G(0) + G(β)).
func Average(g *BlockTau) *BlockTau {
	out := NewBlockTau(g.Mesh, g.Size)
	last := g.Mesh.N - 1
	for a := range g.Size {
		for b := range g.Size {
			v := 0.5 * (g.At(0, a, b) + g.At(last, a, b))
			for i := range g.Mesh.N {
				out.Set(i, a, b, v)
			}
		}
	}
	return out
}

// Interpolate returns (1-frac)·from + frac·to.
func Interpolate(from, to *BlockTau, frac float64) (*BlockTau, error) {
	if len(from.Data) != len(to.Data) || from.Size != to.Size {
		return nil, ErrShape
	}
	out := NewBlockTau(to.Mesh, to.Size)
	for i := range out.Data {
		out.Data[i] = (1-frac)*from.Data[i] + frac*to.Data[i]
	}
	return out, nil
}

// BathLevel is one discrete bath level coupled to the block orbitals.
type BathLevel struct {
	Energy   float64   `yaml:"energy" json:"energy"`
	Coupling []float64 `yaml:"coupling" json:"coupling"`
}

// DiscreteBath returns the hybridization function of discrete bath levels.
func DiscreteBath(mesh TauMesh, size int, levels []BathLevel) (*BlockTau, error) {
	g := NewBlockTau(mesh, size)
	for _, lv := range levels {
		if len(lv.Coupling) != size {
			return nil, ErrShape
		}
		for i := range mesh.N {
			f := fermiPropagator(mesh.Point(i), mesh.Beta, lv.Energy)
			for a := range size {
				for b := range size {
					g.Add(i, a, b, -lv.Coupling[a]*lv.Coupling[b]*f)
				}
			}
		}
	}
	return g, nil
}

// fermiPropagator returns e^{-ετ}/(1+e^{-βε}) without overflow.
func fermiPropagator(tau, beta, eps float64) float64 {
	if eps >= 0 {
		return math.Exp(-eps*tau) / (1 + math.Exp(-beta*eps))
	}
	return math.Exp(eps*(beta-tau)) / (math.Exp(beta*eps) + 1)
}
