package moves

import (
	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/timept"
)

// Insert adds a creation and an annihilation operator of one block at
// random times.
type Insert struct {
	weigher
	block int

	seq    uint64
	hc, ha configuration.Handle
	placed bool
	tried  bool
}

// NewInsert returns the pair insertion for block b.
func NewInsert(d *qmc.Data, b int, useBound bool) *Insert {
	return &Insert{weigher: weigher{d: d, useBound: useBound}, block: b}
}

func (m *Insert) Attempt(u float64) float64 {
	d := m.d
	size := d.Blocks[m.block].Size
	a, b := d.Rand.IntN(size), d.Rand.IntN(size)
	tc, ta := timept.Random(d.Rand), timept.Random(d.Rand)

	m.seq = d.Config.Seq()
	hc, err := d.Config.Insert(tc, d.Op(m.block, a, true))
	if err != nil {
		return 0
	}
	ha, err := d.Config.Insert(ta, d.Op(m.block, b, false))
	if err != nil {
		d.Config.Remove(hc)
		d.Config.RewindSeq(m.seq)
		return 0
	}
	m.hc, m.ha, m.placed = hc, ha, true
	if d.Trace.Closing(d.Config).IsEmpty() {
		return 0
	}

	k := float64(d.Order(m.block))
	proposal := square(d.Beta()*float64(size)) / square(k+1)
	detRatio := d.Dets[m.block].TryInsert(qmc.Point(d.Config.Get(hc)), qmc.Point(d.Config.Get(ha)))
	m.tried = true
	return m.weigh(u, detRatio, proposal)
}

func (m *Insert) Accept() float64 {
	m.d.Record(m.d.Dets[m.block].Complete())
	m.placed, m.tried = false, false
	return m.commit()
}

func (m *Insert) Reject() {
	d := m.d
	if m.tried {
		d.Dets[m.block].Reject()
	}
	if m.placed {
		d.Config.Remove(m.ha)
		d.Config.Remove(m.hc)
		d.Config.RewindSeq(m.seq)
	}
	m.placed, m.tried = false, false
}

// Remove deletes a creation and an annihilation operator of one block.
type Remove struct {
	weigher
	block int

	ec, ea  configuration.Entry
	removed bool
	tried   bool
}

// NewRemove returns the pair removal for block b.
func NewRemove(d *qmc.Data, b int, useBound bool) *Remove {
	return &Remove{weigher: weigher{d: d, useBound: useBound}, block: b}
}

func (m *Remove) Attempt(u float64) float64 {
	d := m.d
	k := d.Order(m.block)
	if k == 0 {
		return 0
	}
	dm := d.Dets[m.block]
	i, j := d.Rand.IntN(k), d.Rand.IntN(k)
	hc, ha := d.Handle(dm.Row(i)), d.Handle(dm.Col(j))
	m.ec, m.ea = d.Config.Get(hc), d.Config.Get(ha)
	d.Config.Remove(hc)
	d.Config.Remove(ha)
	m.removed = true
	if d.Trace.Closing(d.Config).IsEmpty() {
		return 0
	}

	size := float64(d.Blocks[m.block].Size)
	proposal := square(float64(k)) / square(d.Beta()*size)
	detRatio := dm.TryRemove(i, j)
	m.tried = true
	return m.weigh(u, detRatio, proposal)
}

func (m *Remove) Accept() float64 {
	m.d.Record(m.d.Dets[m.block].Complete())
	m.removed, m.tried = false, false
	return m.commit()
}

func (m *Remove) Reject() {
	d := m.d
	if m.tried {
		d.Dets[m.block].Reject()
	}
	if m.removed {
		restore(d, m.ea)
		restore(d, m.ec)
	}
	m.removed, m.tried = false, false
}
