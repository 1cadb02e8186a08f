package moves

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/det"
	"github.com/hupe1980/cthyb/internal/qmc"
)

// ErrNotBijection is returned for a substitution that is not a permutation
// of the fundamental operators.
var ErrNotBijection = errors.New("global move substitution is not a bijection")

// Global applies a permutation of the fundamental operators to every
// operator of the configuration and rebuilds all determinants.
type Global struct {
	weigher

	maps      [][]int
	inverse   [][]int
	current   int
	relabeled bool
	dets      []*det.Matrix
}

// NewGlobal returns a global move for the substitution perm (linear index
// to linear index). A substitution that is not its own inverse is proposed
// together with its inverse, each with equal probability.
func NewGlobal(d *qmc.Data, perm []int, useBound bool) (*Global, error) {
	n := d.Structure.Fundamentals().Len()
	if len(perm) != n {
		return nil, fmt.Errorf("%w: %d entries for %d operators", ErrNotBijection, len(perm), n)
	}
	inv := make([]int, n)
	for i := range inv {
		inv[i] = -1
	}
	for i, p := range perm {
		if p < 0 || p >= n || inv[p] >= 0 {
			return nil, ErrNotBijection
		}
		inv[p] = i
	}
	g := &Global{weigher: weigher{d: d, useBound: useBound}}
	g.maps = append(g.maps, perm)
	g.inverse = append(g.inverse, inv)
	for i, p := range perm {
		if inv[i] != p {
			g.maps = append(g.maps, inv)
			g.inverse = append(g.inverse, perm)
			break
		}
	}
	return g, nil
}

func (m *Global) relabel(perm []int) func(configuration.Op) configuration.Op {
	d := m.d
	return func(op configuration.Op) configuration.Op {
		l := perm[op.Linear]
		for b, blk := range d.Blocks {
			if l >= blk.Offset && l < blk.Offset+blk.Size {
				return configuration.Op{Dagger: op.Dagger, Block: b, Inner: l - blk.Offset, Linear: l}
			}
		}
		return op
	}
}

func (m *Global) Attempt(u float64) float64 {
	d := m.d
	if d.Config.Len() == 0 {
		return 0
	}
	m.current = d.Rand.IntN(len(m.maps))
	if err := d.Config.Relabel(m.relabel(m.maps[m.current])); err != nil {
		return 0
	}
	m.relabeled = true
	if d.Trace.Closing(d.Config).IsEmpty() {
		return 0
	}

	rows := make([][]det.Point, len(d.Blocks))
	cols := make([][]det.Point, len(d.Blocks))
	for _, e := range d.Config.Flatten(nil) {
		if e.Op.Dagger {
			rows[e.Op.Block] = append(rows[e.Op.Block], qmc.Point(e))
		} else {
			cols[e.Op.Block] = append(cols[e.Op.Block], qmc.Point(e))
		}
	}
	m.dets = m.dets[:0]
	sign, logRatio := 1.0, 0.0
	for b := range d.Blocks {
		if len(rows[b]) != len(cols[b]) {
			return 0
		}
		nm := d.NewDet(b)
		if err := nm.Reset(rows[b], cols[b]); err != nil {
			return 0
		}
		m.dets = append(m.dets, nm)
		sign *= nm.Sign() * d.Dets[b].Sign()
		logRatio += nm.LogAbsDeterminant() - d.Dets[b].LogAbsDeterminant()
	}
	return m.weigh(u, sign*math.Exp(logRatio), 1)
}

func (m *Global) Accept() float64 {
	copy(m.d.Dets, m.dets)
	m.dets = m.dets[:0]
	m.relabeled = false
	return m.commit()
}

func (m *Global) Reject() {
	if m.relabeled {
		// The original labels had no coincidences, so this cannot fail.
		_ = m.d.Config.Relabel(m.relabel(m.inverse[m.current]))
	}
	m.dets = m.dets[:0]
	m.relabeled = false
}
