package testutil

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/operator"
)

// Problem is a small impurity problem.
type Problem struct {
	Beta   float64
	Blocks []operator.Block
	HLoc   operator.Expr
	Delta  []*gf.BlockTau
	Bath   [][]gf.BathLevel
}

// ResonantLevel is a spinless level at eps hybridised with strength v to a
// single bath level at epsBath.
func ResonantLevel(beta, eps, v, epsBath float64, nTau int) *Problem {
	mesh, err := gf.NewTauMesh(beta, nTau)
	if err != nil {
		panic(err)
	}
	bath := []gf.BathLevel{{Energy: epsBath, Coupling: []float64{v}}}
	delta, err := gf.DiscreteBath(mesh, 1, bath)
	if err != nil {
		panic(err)
	}
	return &Problem{
		Beta:   beta,
		Blocks: []operator.Block{{Name: "d", Indices: []string{"0"}}},
		HLoc:   operator.N("d", "0").Scale(eps),
		Delta:  []*gf.BlockTau{delta},
		Bath:   [][]gf.BathLevel{bath},
	}
}

// HubbardAtom is a single spinful orbital with interaction u and chemical
// potential mu, each spin coupled to one bath level.
func HubbardAtom(beta, u, mu, v, epsBath float64, nTau int) *Problem {
	mesh, err := gf.NewTauMesh(beta, nTau)
	if err != nil {
		panic(err)
	}
	blocks := []operator.Block{
		{Name: "up", Indices: []string{"0"}},
		{Name: "down", Indices: []string{"0"}},
	}
	nUp, nDn := operator.N("up", "0"), operator.N("down", "0")
	p := &Problem{
		Beta:   beta,
		Blocks: blocks,
		HLoc:   nUp.Mul(nDn).Scale(u).Sub(nUp.Add(nDn).Scale(mu)),
	}
	for range blocks {
		bath := []gf.BathLevel{{Energy: epsBath, Coupling: []float64{v}}}
		delta, err := gf.DiscreteBath(mesh, 1, bath)
		if err != nil {
			panic(err)
		}
		p.Delta = append(p.Delta, delta)
		p.Bath = append(p.Bath, bath)
	}
	return p
}

// Structure partitions the local Hamiltonian automatically.
func (p *Problem) Structure() (*hilbert.Structure, error) {
	return hilbert.Autopartition{}.Partition(p.HLoc, operator.FromBlocks(p.Blocks))
}

// oneBody returns the single-particle Hamiltonian of a non-interacting
// single level with its bath: index 0 is the level.
func (p *Problem) oneBody() *mat.SymDense {
	eps := 0.0
	for _, t := range p.HLoc.Terms() {
		if len(t.Ops) == 2 {
			eps += real(t.Coef)
		}
	}
	bath := p.Bath[0]
	n := 1 + len(bath)
	h := mat.NewSymDense(n, nil)
	h.SetSym(0, 0, eps)
	for k, lv := range bath {
		h.SetSym(k+1, k+1, lv.Energy)
		h.SetSym(0, k+1, lv.Coupling[0])
	}
	return h
}

// ExactG returns G(τ) = -⟨T d(τ) d†⟩ of a non-interacting single level.
func (p *Problem) ExactG(tau float64) float64 {
	var eig mat.EigenSym
	if !eig.Factorize(p.oneBody(), true) {
		panic("testutil: eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	var g float64
	for k, e := range vals {
		w := vecs.At(0, k) * vecs.At(0, k)
		g -= w * fermiPropagator(tau, p.Beta, e)
	}
	return g
}

// ExactGiw returns G(iν) = ∫_0^β e^{iντ} G(τ) dτ of a non-interacting single
// level.
func (p *Problem) ExactGiw(nu float64) complex128 {
	var eig mat.EigenSym
	if !eig.Factorize(p.oneBody(), true) {
		panic("testutil: eigendecomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	var g complex128
	for k, e := range vals {
		w := vecs.At(0, k) * vecs.At(0, k)
		g += complex(w, 0) / complex(-e, nu)
	}
	return g
}

// ExactOccupation returns ⟨d†d⟩ = -G(β) of a non-interacting single level.
func (p *Problem) ExactOccupation() float64 {
	return -p.ExactG(p.Beta)
}

func fermiPropagator(tau, beta, eps float64) float64 {
	if eps >= 0 {
		return math.Exp(-eps*tau) / (1 + math.Exp(-beta*eps))
	}
	return math.Exp(eps*(beta-tau)) / (math.Exp(beta*eps) + 1)
}

// ExactAverage returns the thermal average of o in the impurity coupled to
// its discrete bath, found by diagonalising the full Hamiltonian. Bath level
// k of block b is the mode ("bath_b", k).
func (p *Problem) ExactAverage(o operator.Expr) (float64, error) {
	blocks := append([]operator.Block(nil), p.Blocks...)
	h := p.HLoc
	for b, blk := range p.Blocks {
		name := "bath_" + blk.Name
		bath := operator.Block{Name: name}
		for k, lv := range p.Bath[b] {
			inner := strconv.Itoa(k)
			bath.Indices = append(bath.Indices, inner)
			h = h.Add(operator.N(name, inner).Scale(lv.Energy))
			for a, v := range lv.Coupling {
				hop := operator.CDag(blk.Name, blk.Indices[a]).Mul(operator.C(name, inner))
				h = h.Add(hop.Add(hop.Dagger()).Scale(v))
			}
		}
		blocks = append(blocks, bath)
	}
	st, err := hilbert.Autopartition{}.Partition(h, operator.FromBlocks(blocks))
	if err != nil {
		return 0, err
	}
	l, err := st.Local(o)
	if err != nil {
		return 0, err
	}
	return st.AtomicAverage(l, p.Beta), nil
}
