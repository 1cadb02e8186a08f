package moves

import (
	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/det"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/timept"
)

// Shift moves one operator to a new time between its two neighbours. The
// cyclic order of the configuration is unchanged, so the proposal is
// symmetric.
type Shift struct {
	weigher

	old   configuration.Entry
	moved configuration.Handle
	block int
	tried bool
}

// NewShift returns the shift move.
func NewShift(d *qmc.Data, useBound bool) *Shift {
	return &Shift{weigher: weigher{d: d, useBound: useBound}, moved: -1}
}

func (m *Shift) Attempt(u float64) float64 {
	d := m.d
	n := d.Config.Len()
	if n == 0 {
		return 0
	}
	r := d.Rand.IntN(n)
	h := d.Config.At(r)
	e := d.Config.Get(h)
	prev := d.Config.Get(d.Config.At((r - 1 + n) % n))
	next := d.Config.Get(d.Config.At((r + 1) % n))

	length, _ := timept.Sub(next.Time, prev.Time)
	if length == 0 && (r == 0 || r == n-1) {
		length = timept.Ticks
	}
	if length < 2 {
		return 0
	}
	t := timept.Between(d.Rand, prev.Time, length)

	m.old = e
	d.Config.Remove(h)
	moved := e
	moved.Time = t
	nh, err := d.Config.Restore(moved)
	if err != nil {
		restore(d, e)
		return 0
	}
	m.moved = nh
	if d.Trace.Closing(d.Config).IsEmpty() {
		return 0
	}

	m.block = e.Op.Block
	dm := d.Dets[m.block]
	p := det.Point{Time: t, Seq: e.Seq, Inner: e.Op.Inner}
	var detRatio float64
	if e.Op.Dagger {
		detRatio = dm.TryChangeRow(dm.FindRow(e.Seq), p)
	} else {
		detRatio = dm.TryChangeCol(dm.FindCol(e.Seq), p)
	}
	m.tried = true
	return m.weigh(u, detRatio, 1)
}

func (m *Shift) Accept() float64 {
	m.d.Record(m.d.Dets[m.block].Complete())
	m.moved, m.tried = -1, false
	return m.commit()
}

func (m *Shift) Reject() {
	d := m.d
	if m.tried {
		d.Dets[m.block].Reject()
	}
	if m.moved >= 0 {
		d.Config.Remove(m.moved)
		restore(d, m.old)
	}
	m.moved, m.tried = -1, false
}
