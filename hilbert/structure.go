package hilbert

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/operator"
)

// Subspace is one invariant subspace of the local Hamiltonian.
type Subspace struct {
	// States are the Fock states spanning the subspace, ascending.
	States []uint64
	// Energies are the eigenvalues, ascending, shifted by the ground state.
	Energies []float64
	// Vectors holds the eigenvectors as columns in the States basis.
	Vectors *mat.Dense
}

// Dim returns the dimension of the subspace.
func (s *Subspace) Dim() int { return len(s.States) }

// Structure is the partitioned and diagonalised local problem.
type Structure struct {
	fops          *operator.FundamentalSet
	subspaces     []Subspace
	groundEnergy  float64
	imagThreshold float64
	where         []int32
	pos           []int32
	conn          [2][][]int
	blocks        [2][][]*mat.Dense
	norms         [2][][]float64
}

func daggerIndex(dagger bool) int {
	if dagger {
		return 1
	}
	return 0
}

func build(ham compiled, fops *operator.FundamentalSet, groups [][]uint64, imagThreshold float64) (*Structure, error) {
	dim := uint64(1) << fops.Len()
	st := &Structure{
		fops:          fops,
		imagThreshold: imagThreshold,
		where:         make([]int32, dim),
		pos:           make([]int32, dim),
		subspaces:     make([]Subspace, len(groups)),
	}
	for gi, g := range groups {
		for k, s := range g {
			st.where[s] = int32(gi)
			st.pos[s] = int32(k)
		}
	}

	st.groundEnergy = math.Inf(1)
	for gi, g := range groups {
		d := len(g)
		data := make([]float64, d*d)
		for k, s := range g {
			for t, amp := range ham.image(s) {
				if int(st.where[t]) != gi {
					return nil, fmt.Errorf("hilbert: hamiltonian leaves subspace %d", gi)
				}
				data[int(st.pos[t])*d+k] += amp
			}
		}
		for i := range d {
			for j := i + 1; j < d; j++ {
				a, b := data[i*d+j], data[j*d+i]
				if math.Abs(a-b) > 1e-12*(1+math.Max(math.Abs(a), math.Abs(b))) {
					return nil, ErrNotHermitian
				}
			}
		}
		var es mat.EigenSym
		if ok := es.Factorize(mat.NewSymDense(d, data), true); !ok {
			return nil, errors.New("hilbert: eigendecomposition failed")
		}
		vals := es.Values(nil)
		vecs := mat.NewDense(d, d, nil)
		es.VectorsTo(vecs)
		st.subspaces[gi] = Subspace{States: g, Energies: vals, Vectors: vecs}
		st.groundEnergy = math.Min(st.groundEnergy, vals[0])
	}
	for gi := range st.subspaces {
		for k := range st.subspaces[gi].Energies {
			st.subspaces[gi].Energies[k] -= st.groundEnergy
		}
	}

	n := fops.Len()
	for di, dagger := range []bool{false, true} {
		st.conn[di] = make([][]int, n)
		st.blocks[di] = make([][]*mat.Dense, n)
		st.norms[di] = make([][]float64, n)
		for linear := range n {
			conn := make([]int, len(groups))
			blocks := make([]*mat.Dense, len(groups))
			norms := make([]float64, len(groups))
			for gi, g := range groups {
				conn[gi] = -1
				target := -1
				for _, s := range g {
					if t, _, ok := applyFactor(s, linear, dagger); ok {
						target = int(st.where[t])
						break
					}
				}
				if target < 0 {
					continue
				}
				fock := mat.NewDense(len(groups[target]), len(g), nil)
				for k, s := range g {
					t, sign, ok := applyFactor(s, linear, dagger)
					if !ok {
						continue
					}
					if int(st.where[t]) != target {
						return nil, fmt.Errorf("hilbert: operator %d maps subspace %d into several subspaces", linear, gi)
					}
					fock.Set(int(st.pos[t]), k, sign)
				}
				blk := st.toEigenbasis(fock, target, gi)
				conn[gi] = target
				blocks[gi] = blk
				norms[gi] = mat.Norm(blk, 2)
			}
			st.conn[di][linear] = conn
			st.blocks[di][linear] = blocks
			st.norms[di][linear] = norms
		}
	}
	return st, nil
}

func (st *Structure) toEigenbasis(fock *mat.Dense, target, source int) *mat.Dense {
	var tmp mat.Dense
	tmp.Mul(fock, st.subspaces[source].Vectors)
	var blk mat.Dense
	blk.Mul(st.subspaces[target].Vectors.T(), &tmp)
	return &blk
}

// Fundamentals returns the fundamental operator set.
func (st *Structure) Fundamentals() *operator.FundamentalSet { return st.fops }

// NSubspaces returns the number of subspaces.
func (st *Structure) NSubspaces() int { return len(st.subspaces) }

// Subspace returns subspace i.
func (st *Structure) Subspace(i int) *Subspace { return &st.subspaces[i] }

// Dim returns the dimension of subspace i.
func (st *Structure) Dim(i int) int { return len(st.subspaces[i].States) }

// Energies returns the shifted eigenvalues of subspace i.
func (st *Structure) Energies(i int) []float64 { return st.subspaces[i].Energies }

// MinEnergy returns the lowest shifted eigenvalue of subspace i.
func (st *Structure) MinEnergy(i int) float64 { return st.subspaces[i].Energies[0] }

// GroundEnergy returns the unshifted ground-state energy.
func (st *Structure) GroundEnergy() float64 { return st.groundEnergy }

// Connection returns the subspace reached by the fundamental operator
// (dagger, linear) from sub, or -1.
func (st *Structure) Connection(dagger bool, linear, sub int) int {
	return st.conn[daggerIndex(dagger)][linear][sub]
}

// Block returns the eigenbasis matrix of (dagger, linear) from sub, or nil.
func (st *Structure) Block(dagger bool, linear, sub int) *mat.Dense {
	return st.blocks[daggerIndex(dagger)][linear][sub]
}

// Norm returns the Frobenius norm of Block(dagger, linear, sub).
func (st *Structure) Norm(dagger bool, linear, sub int) float64 {
	return st.norms[daggerIndex(dagger)][linear][sub]
}

// PartitionFunction returns the atomic partition function Σ exp(-βE) with
// shifted energies.
func (st *Structure) PartitionFunction(beta float64) float64 {
	var z float64
	for i := range st.subspaces {
		for _, e := range st.subspaces[i].Energies {
			z += math.Exp(-beta * e)
		}
	}
	return z
}

// SubspaceInfo summarises one subspace.
type SubspaceInfo struct {
	Index     int       `json:"index" yaml:"index"`
	Dim       int       `json:"dim" yaml:"dim"`
	MinEnergy float64   `json:"min_energy" yaml:"min_energy"`
	States    []string  `json:"states" yaml:"states"`
	Energies  []float64 `json:"energies" yaml:"energies"`
}

// Summary lists all subspaces with their Fock states written as
// occupation strings (lowest mode first).
func (st *Structure) Summary() []SubspaceInfo {
	n := st.fops.Len()
	out := make([]SubspaceInfo, len(st.subspaces))
	for i := range st.subspaces {
		sub := &st.subspaces[i]
		states := make([]string, len(sub.States))
		for k, s := range sub.States {
			b := make([]byte, n)
			for m := range n {
				b[m] = '0' + byte(s>>m&1)
			}
			states[k] = "|" + string(b) + ">"
		}
		out[i] = SubspaceInfo{
			Index:     i,
			Dim:       sub.Dim(),
			MinEnergy: sub.Energies[0],
			States:    states,
			Energies:  append([]float64(nil), sub.Energies...),
		}
	}
	return out
}
