package hilbert

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/cthyb/operator"
)

// ErrNoQuantumNumbers is returned by QuantumNumbers without operators.
var ErrNoQuantumNumbers = errors.New("no quantum numbers given")

// Partitioner splits the Fock space of fops into invariant subspaces of h.
type Partitioner interface {
	Partition(h operator.Expr, fops *operator.FundamentalSet) (*Structure, error)
}

// Autopartition finds the finest admissible partition automatically.
type Autopartition struct {
	ImagThreshold float64
}

// Partition implements Partitioner.
func (p Autopartition) Partition(h operator.Expr, fops *operator.FundamentalSet) (*Structure, error) {
	ham, err := prepare(h, fops, p.ImagThreshold)
	if err != nil {
		return nil, err
	}
	dim := uint64(1) << fops.Len()
	uf := newUnionFind(dim)
	for s := range dim {
		for t := range ham.image(s) {
			uf.union(s, t)
		}
	}
	mergeTargets(uf, fops.Len())
	return build(ham, fops, uf.groups(), p.ImagThreshold)
}

// QuantumNumbers partitions by the joint eigenvalues of conserved operators
// that are diagonal in the occupation basis.
type QuantumNumbers struct {
	QN            []operator.Expr
	ImagThreshold float64
}

// Partition implements Partitioner.
func (p QuantumNumbers) Partition(h operator.Expr, fops *operator.FundamentalSet) (*Structure, error) {
	if len(p.QN) == 0 {
		return nil, ErrNoQuantumNumbers
	}
	ham, err := prepare(h, fops, p.ImagThreshold)
	if err != nil {
		return nil, err
	}
	qns := make([]compiled, len(p.QN))
	for k, q := range p.QN {
		if qns[k], err = compile(q, fops, p.ImagThreshold); err != nil {
			return nil, err
		}
	}

	dim := uint64(1) << fops.Len()
	keys := make([]string, dim)
	first := make(map[string]uint64)
	uf := newUnionFind(dim)
	for s := range dim {
		var sb strings.Builder
		for _, q := range qns {
			img := q.image(s)
			v := img[s]
			if len(img) > 1 || (len(img) == 1 && v == 0) {
				return nil, ErrNotDiagonal
			}
			sb.WriteString(strconv.FormatFloat(roundQN(v), 'g', -1, 64))
			sb.WriteByte('|')
		}
		key := sb.String()
		keys[s] = key
		if r, ok := first[key]; ok {
			uf.union(r, s)
		} else {
			first[key] = s
		}
	}
	for s := range dim {
		for t := range ham.image(s) {
			if keys[s] != keys[t] {
				return nil, fmt.Errorf("%w: states %b and %b", ErrNotConserved, s, t)
			}
		}
	}
	mergeTargets(uf, fops.Len())
	return build(ham, fops, uf.groups(), p.ImagThreshold)
}

// Single keeps the whole Fock space as one subspace.
type Single struct {
	ImagThreshold float64
}

// Partition implements Partitioner.
func (p Single) Partition(h operator.Expr, fops *operator.FundamentalSet) (*Structure, error) {
	ham, err := prepare(h, fops, p.ImagThreshold)
	if err != nil {
		return nil, err
	}
	dim := uint64(1) << fops.Len()
	uf := newUnionFind(dim)
	for s := uint64(1); s < dim; s++ {
		uf.union(0, s)
	}
	return build(ham, fops, uf.groups(), p.ImagThreshold)
}

func prepare(h operator.Expr, fops *operator.FundamentalSet, imagThreshold float64) (compiled, error) {
	if fops.Len() > MaxModes {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyModes, fops.Len(), MaxModes)
	}
	return compile(h, fops, imagThreshold)
}

func roundQN(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// mergeTargets joins subspaces until every fundamental operator maps each
// subspace into at most one subspace.
func mergeTargets(uf *unionFind, modes int) {
	for {
		changed := false
		groups := uf.groups()
		for linear := range modes {
			for _, dagger := range []bool{false, true} {
				for _, g := range groups {
					targets := roaring.New()
					for _, s := range g {
						if t, _, ok := applyFactor(s, linear, dagger); ok {
							targets.Add(uint32(uf.find(t)))
						}
					}
					if targets.GetCardinality() < 2 {
						continue
					}
					roots := targets.ToArray()
					for _, r := range roots[1:] {
						if uf.union(uint64(roots[0]), uint64(r)) {
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			return
		}
	}
}

type unionFind struct {
	parent []uint32
}

func newUnionFind(n uint64) *unionFind {
	p := make([]uint32, n)
	for i := range p {
		p[i] = uint32(i)
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x uint64) uint64 {
	r := x
	for uint64(u.parent[r]) != r {
		r = uint64(u.parent[r])
	}
	for uint64(u.parent[x]) != r {
		x, u.parent[x] = uint64(u.parent[x]), uint32(r)
	}
	return r
}

func (u *unionFind) union(a, b uint64) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	if ra < rb {
		u.parent[rb] = uint32(ra)
	} else {
		u.parent[ra] = uint32(rb)
	}
	return true
}

// groups lists the classes ordered by their smallest state, states ascending.
func (u *unionFind) groups() [][]uint64 {
	index := make(map[uint64]int)
	var out [][]uint64
	for s := range uint64(len(u.parent)) {
		r := u.find(s)
		k, ok := index[r]
		if !ok {
			k = len(out)
			index[r] = k
			out = append(out, nil)
		}
		out[k] = append(out[k], s)
	}
	return out
}
