package moves

import (
	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/timept"
)

// Insert2 adds two pairs at once, in blocks b1 and b2 (possibly equal).
type Insert2 struct {
	weigher
	b1, b2 int

	seq     uint64
	handles []configuration.Handle
	tried   bool
}

// NewInsert2 returns the double insertion for blocks b1 and b2.
func NewInsert2(d *qmc.Data, b1, b2 int, useBound bool) *Insert2 {
	return &Insert2{weigher: weigher{d: d, useBound: useBound}, b1: b1, b2: b2}
}

func (m *Insert2) place(b int, dagger bool) bool {
	d := m.d
	inner := d.Rand.IntN(d.Blocks[b].Size)
	h, err := d.Config.Insert(timept.Random(d.Rand), d.Op(b, inner, dagger))
	if err != nil {
		return false
	}
	m.handles = append(m.handles, h)
	return true
}

func (m *Insert2) Attempt(u float64) float64 {
	d := m.d
	m.seq = d.Config.Seq()
	m.handles = m.handles[:0]
	if !m.place(m.b1, true) || !m.place(m.b1, false) || !m.place(m.b2, true) || !m.place(m.b2, false) {
		return 0
	}
	if d.Trace.Closing(d.Config).IsEmpty() {
		return 0
	}
	p := make([]configuration.Entry, 4)
	for i, h := range m.handles {
		p[i] = d.Config.Get(h)
	}

	beta := d.Beta()
	var proposal, detRatio float64
	if m.b1 == m.b2 {
		k := float64(d.Order(m.b1))
		n := float64(d.Blocks[m.b1].Size)
		proposal = square(square(beta*n)) / square((k+1)*(k+2))
		detRatio = d.Dets[m.b1].TryInsert2(qmc.Point(p[0]), qmc.Point(p[2]), qmc.Point(p[1]), qmc.Point(p[3]))
	} else {
		k1, k2 := float64(d.Order(m.b1)), float64(d.Order(m.b2))
		n1, n2 := float64(d.Blocks[m.b1].Size), float64(d.Blocks[m.b2].Size)
		proposal = square(beta*n1) / square(k1+1) * square(beta*n2) / square(k2+1)
		detRatio = d.Dets[m.b1].TryInsert(qmc.Point(p[0]), qmc.Point(p[1])) *
			d.Dets[m.b2].TryInsert(qmc.Point(p[2]), qmc.Point(p[3]))
	}
	m.tried = true
	return m.weigh(u, detRatio, proposal)
}

func (m *Insert2) Accept() float64 {
	d := m.d
	d.Record(d.Dets[m.b1].Complete())
	if m.b2 != m.b1 {
		d.Record(d.Dets[m.b2].Complete())
	}
	m.handles, m.tried = m.handles[:0], false
	return m.commit()
}

func (m *Insert2) Reject() {
	d := m.d
	if m.tried {
		d.Dets[m.b1].Reject()
		d.Dets[m.b2].Reject()
	}
	for i := len(m.handles) - 1; i >= 0; i-- {
		d.Config.Remove(m.handles[i])
	}
	d.Config.RewindSeq(m.seq)
	m.handles, m.tried = m.handles[:0], false
}

// Remove2 deletes two pairs at once, from blocks b1 and b2 (possibly equal).
type Remove2 struct {
	weigher
	b1, b2 int

	removed []configuration.Entry
	tried   bool
}

// NewRemove2 returns the double removal for blocks b1 and b2.
func NewRemove2(d *qmc.Data, b1, b2 int, useBound bool) *Remove2 {
	return &Remove2{weigher: weigher{d: d, useBound: useBound}, b1: b1, b2: b2}
}

// distinct draws two different indices below k in ascending order.
func distinct(d *qmc.Data, k int) (int, int) {
	i := d.Rand.IntN(k)
	j := d.Rand.IntN(k - 1)
	if j >= i {
		j++
	}
	return min(i, j), max(i, j)
}

func (m *Remove2) take(b int, rows, cols []int) {
	d := m.d
	dm := d.Dets[b]
	var hs []configuration.Handle
	for _, i := range rows {
		hs = append(hs, d.Handle(dm.Row(i)))
	}
	for _, j := range cols {
		hs = append(hs, d.Handle(dm.Col(j)))
	}
	for _, h := range hs {
		m.removed = append(m.removed, d.Config.Get(h))
		d.Config.Remove(h)
	}
}

func (m *Remove2) Attempt(u float64) float64 {
	d := m.d
	m.removed = m.removed[:0]
	beta := d.Beta()
	var proposal, detRatio float64
	if m.b1 == m.b2 {
		k := d.Order(m.b1)
		if k < 2 {
			return 0
		}
		i1, i2 := distinct(d, k)
		j1, j2 := distinct(d, k)
		m.take(m.b1, []int{i1, i2}, []int{j1, j2})
		if d.Trace.Closing(d.Config).IsEmpty() {
			return 0
		}
		n := float64(d.Blocks[m.b1].Size)
		fk := float64(k)
		proposal = square(fk*(fk-1)) / square(square(beta*n))
		detRatio = d.Dets[m.b1].TryRemove2(i1, i2, j1, j2)
	} else {
		k1, k2 := d.Order(m.b1), d.Order(m.b2)
		if k1 == 0 || k2 == 0 {
			return 0
		}
		i1, j1 := d.Rand.IntN(k1), d.Rand.IntN(k1)
		i2, j2 := d.Rand.IntN(k2), d.Rand.IntN(k2)
		m.take(m.b1, []int{i1}, []int{j1})
		m.take(m.b2, []int{i2}, []int{j2})
		if d.Trace.Closing(d.Config).IsEmpty() {
			return 0
		}
		n1, n2 := float64(d.Blocks[m.b1].Size), float64(d.Blocks[m.b2].Size)
		proposal = square(float64(k1)) / square(beta*n1) * square(float64(k2)) / square(beta*n2)
		detRatio = d.Dets[m.b1].TryRemove(i1, j1) * d.Dets[m.b2].TryRemove(i2, j2)
	}
	m.tried = true
	return m.weigh(u, detRatio, proposal)
}

func (m *Remove2) Accept() float64 {
	d := m.d
	d.Record(d.Dets[m.b1].Complete())
	if m.b2 != m.b1 {
		d.Record(d.Dets[m.b2].Complete())
	}
	m.removed, m.tried = m.removed[:0], false
	return m.commit()
}

func (m *Remove2) Reject() {
	d := m.d
	if m.tried {
		d.Dets[m.b1].Reject()
		d.Dets[m.b2].Reject()
	}
	for i := len(m.removed) - 1; i >= 0; i-- {
		restore(d, m.removed[i])
	}
	m.removed, m.tried = m.removed[:0], false
}
