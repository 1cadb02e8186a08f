package det

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/internal/timept"
)

// DefaultRegenerateEvery is the number of incremental updates after which
// the inverse is rebuilt from scratch.
const DefaultRegenerateEvery = 100

// ErrSingular is returned when the hybridization matrix is singular.
var ErrSingular = errors.New("hybridization matrix is singular")

// Point is the placement of one operator in the matrix.
type Point struct {
	Time  timept.Time
	Seq   uint64
	Inner int
}

func (p Point) less(q Point) bool {
	if p.Time != q.Time {
		return p.Time < q.Time
	}
	return p.Seq < q.Seq
}

// Func returns the matrix element D for creation point x and annihilation
// point y.
type Func func(x, y Point) float64

type kind uint8

const (
	kindNone kind = iota
	kindInsert
	kindInsert2
	kindRemove
	kindRemove2
	kindRow
	kindCol
)

type pending struct {
	kind   kind
	i, j   int
	i2, j2 int
	x, y   Point
	x2, y2 Point
	s      float64
	ratio  float64
	// Rank-two proposals: M·u for the two new columns and the 2x2 Schur
	// complement (x1y1, x1y2, x2y1, x2y2).
	a1, a2 []float64
	schur  [4]float64
}

// Matrix is the determinant tracker of one block.
type Matrix struct {
	f          Func
	n          int
	x, y       []Point
	m          []float64 // m[c*n+r] = (D⁻¹)_{c r}
	sign       float64
	logAbs     float64
	updates    int
	regenEvery int
	try        pending

	a, b, u, v []float64
	spare      []float64
}

// New returns an empty tracker that evaluates entries with f.
func New(f Func) *Matrix {
	return &Matrix{
		f:          f,
		sign:       1,
		regenEvery: DefaultRegenerateEvery,
	}
}

// SetRegenerateEvery sets the automatic regeneration period (<= 0 disables).
func (d *Matrix) SetRegenerateEvery(n int) { d.regenEvery = n }

// SetFunc replaces the entry function. Call Regenerate afterwards.
func (d *Matrix) SetFunc(f Func) { d.f = f }

// Size returns the number of rows (= columns).
func (d *Matrix) Size() int { return d.n }

// Row returns the creation point of row i.
func (d *Matrix) Row(i int) Point { return d.x[i] }

// Col returns the annihilation point of column j.
func (d *Matrix) Col(j int) Point { return d.y[j] }

// InverseAt returns (D⁻¹)_{j i}, i.e. the inverse entry paired with column
// j and row i of D.
func (d *Matrix) InverseAt(j, i int) float64 { return d.m[j*d.n+i] }

// Sign returns the sign of det D.
func (d *Matrix) Sign() float64 { return d.sign }

// LogAbsDeterminant returns log|det D|.
func (d *Matrix) LogAbsDeterminant() float64 { return d.logAbs }

// Determinant returns det D.
func (d *Matrix) Determinant() float64 { return d.sign * math.Exp(d.logAbs) }

// Entry evaluates D for an arbitrary pair of points.
func (d *Matrix) Entry(x, y Point) float64 { return d.f(x, y) }

// ApplyInverse writes D⁻¹·v into dst (both of length Size).
func (d *Matrix) ApplyInverse(dst, v []float64) {
	n := d.n
	for c := range n {
		row := d.m[c*n : (c+1)*n]
		var s float64
		for r, w := range row {
			s += w * v[r]
		}
		dst[c] = s
	}
}

// RowPosition returns the sorted position a new creation point would take.
func (d *Matrix) RowPosition(x Point) int {
	return sort.Search(d.n, func(k int) bool { return x.less(d.x[k]) })
}

// ColPosition returns the sorted position a new annihilation point would take.
func (d *Matrix) ColPosition(y Point) int {
	return sort.Search(d.n, func(k int) bool { return y.less(d.y[k]) })
}

// FindRow returns the row holding the creation point with sequence seq.
func (d *Matrix) FindRow(seq uint64) int {
	for i := range d.x {
		if d.x[i].Seq == seq {
			return i
		}
	}
	return -1
}

// FindCol returns the column holding the annihilation point with sequence seq.
func (d *Matrix) FindCol(seq uint64) int {
	for j := range d.y {
		if d.y[j].Seq == seq {
			return j
		}
	}
	return -1
}

// TryInsert proposes adding the row x and the column y and returns the
// ratio det D'/det D.
func (d *Matrix) TryInsert(x, y Point) float64 {
	n := d.n
	i, j := d.RowPosition(x), d.ColPosition(y)
	d.a = grow(d.a, n)
	d.b = grow(d.b, n)
	d.u = grow(d.u, n)
	d.v = grow(d.v, n)
	for r := range n {
		d.u[r] = d.f(d.x[r], y)
	}
	for c := range n {
		d.v[c] = d.f(x, d.y[c])
	}
	s := d.f(x, y)
	for c := range n {
		row := d.m[c*n : (c+1)*n]
		var ac float64
		for r, w := range row {
			ac += w * d.u[r]
		}
		d.a[c] = ac
		s -= d.v[c] * ac
	}
	for r := range n {
		var br float64
		for c := range n {
			br += d.v[c] * d.m[c*n+r]
		}
		d.b[r] = br
	}
	ratio := s * parity(i+j)
	d.try = pending{kind: kindInsert, i: i, j: j, x: x, y: y, s: s, ratio: ratio}
	return ratio
}

// TryRemove proposes deleting row i and column j.
func (d *Matrix) TryRemove(i, j int) float64 {
	ratio := d.m[j*d.n+i] * parity(i+j)
	d.try = pending{kind: kindRemove, i: i, j: j, ratio: ratio}
	return ratio
}

// TryInsert2 proposes adding rows x1, x2 and columns y1, y2 at once.
func (d *Matrix) TryInsert2(x1, x2, y1, y2 Point) float64 {
	n := d.n
	ma := d.mulInverse(func(r int) float64 { return d.f(d.x[r], y1) })
	mb := d.mulInverse(func(r int) float64 { return d.f(d.x[r], y2) })

	var s11, s12, s21, s22 float64
	s11, s12 = d.f(x1, y1), d.f(x1, y2)
	s21, s22 = d.f(x2, y1), d.f(x2, y2)
	for c := range n {
		v1, v2 := d.f(x1, d.y[c]), d.f(x2, d.y[c])
		s11 -= v1 * ma[c]
		s12 -= v1 * mb[c]
		s21 -= v2 * ma[c]
		s22 -= v2 * mb[c]
	}
	sign := d.appendParity(x1, x2, d.RowPosition) * d.appendParity(y1, y2, d.ColPosition)
	if x2.less(x1) {
		sign = -sign
	}
	if y2.less(y1) {
		sign = -sign
	}
	ratio := (s11*s22 - s12*s21) * sign
	d.try = pending{
		kind: kindInsert2, x: x1, x2: x2, y: y1, y2: y2, ratio: ratio,
		a1: ma, a2: mb, schur: [4]float64{s11, s12, s21, s22},
	}
	return ratio
}

// TryRemove2 proposes deleting rows i1, i2 and columns j1, j2. The pairs
// may be given in either order.
func (d *Matrix) TryRemove2(i1, i2, j1, j2 int) float64 {
	n := d.n
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	if j1 > j2 {
		j1, j2 = j2, j1
	}
	minor := d.m[j1*n+i1]*d.m[j2*n+i2] - d.m[j1*n+i2]*d.m[j2*n+i1]
	ratio := minor * parity(i1+i2+j1+j2)
	d.try = pending{kind: kindRemove2, i: i1, i2: i2, j: j1, j2: j2, ratio: ratio}
	return ratio
}

// TryChangeRow proposes replacing the creation point of row i by x.
func (d *Matrix) TryChangeRow(i int, x Point) float64 {
	n := d.n
	d.b = grow(d.b, n)
	d.v = grow(d.v, n)
	for c := range n {
		d.v[c] = d.f(x, d.y[c])
	}
	for r := range n {
		var br float64
		for c := range n {
			br += d.v[c] * d.m[c*n+r]
		}
		d.b[r] = br
	}
	to := d.movedPosition(d.x, i, x)
	ratio := d.b[i] * parity(to-i)
	d.try = pending{kind: kindRow, i: i, i2: to, x: x, s: d.b[i], ratio: ratio}
	return ratio
}

// TryChangeCol proposes replacing the annihilation point of column j by y.
func (d *Matrix) TryChangeCol(j int, y Point) float64 {
	n := d.n
	a := d.mulInverse(func(r int) float64 { return d.f(d.x[r], y) })
	d.a = grow(d.a, n)
	copy(d.a, a)
	to := d.movedPosition(d.y, j, y)
	ratio := d.a[j] * parity(to-j)
	d.try = pending{kind: kindCol, j: j, j2: to, y: y, s: d.a[j], ratio: ratio}
	return ratio
}

// Reset replaces all points and rebuilds the inverse from scratch.
func (d *Matrix) Reset(x, y []Point) error {
	if len(x) != len(y) {
		return ErrSingular
	}
	d.try = pending{}
	d.x = append(d.x[:0], x...)
	d.y = append(d.y[:0], y...)
	sortPoints(d.x)
	sortPoints(d.y)
	d.n = len(x)
	d.sign, d.logAbs = 1, 0
	_, err := d.Regenerate()
	return err
}

// Reject drops the pending proposal.
func (d *Matrix) Reject() {
	d.try = pending{}
}

// Complete applies the pending proposal. It returns the regeneration drift
// if the update triggered an automatic regeneration.
func (d *Matrix) Complete() (float64, error) {
	t := d.try
	d.try = pending{}
	switch t.kind {
	case kindNone:
		return 0, nil
	case kindInsert:
		d.completeInsert(t)
	case kindRemove:
		d.completeRemove(t)
	case kindRow:
		d.completeRow(t)
	case kindCol:
		d.completeCol(t)
	case kindInsert2:
		d.completeInsert2(t)
	case kindRemove2:
		d.completeRemove2(t)
	}
	d.accumulate(t.ratio)
	if d.n == 0 {
		d.sign, d.logAbs = 1, 0
	}
	d.updates++
	if d.regenEvery > 0 && d.updates >= d.regenEvery {
		return d.Regenerate()
	}
	return 0, nil
}

// Regenerate rebuilds the inverse and determinant from scratch and returns
// the relative drift |det_incremental/det_exact - 1|.
func (d *Matrix) Regenerate() (float64, error) {
	d.updates = 0
	n := d.n
	if n == 0 {
		d.m = d.m[:0]
		d.sign, d.logAbs = 1, 0
		return 0, nil
	}
	data := make([]float64, n*n)
	for r := range n {
		for c := range n {
			data[r*n+c] = d.f(d.x[r], d.y[c])
		}
	}
	dm := mat.NewDense(n, n, data)
	logAbs, sign := mat.LogDet(dm)
	if sign == 0 || math.IsInf(logAbs, -1) {
		return 0, ErrSingular
	}
	var inv mat.Dense
	if err := inv.Inverse(dm); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return 0, err
		}
	}

	drift := math.Abs(d.sign*sign*math.Exp(d.logAbs-logAbs) - 1)

	// Row r, column c of D⁻¹ is our m[r*n+c] with r over D columns.
	raw := inv.RawMatrix()
	d.m = grow(d.m, n*n)
	for r := range n {
		copy(d.m[r*n:(r+1)*n], raw.Data[r*raw.Stride:r*raw.Stride+n])
	}
	d.sign, d.logAbs = sign, logAbs
	return drift, nil
}

func (d *Matrix) accumulate(ratio float64) {
	if ratio < 0 {
		d.sign = -d.sign
	}
	d.logAbs += math.Log(math.Abs(ratio))
}

func (d *Matrix) completeInsert(t pending) {
	n := d.n
	nn := n + 1
	out := grow(d.spare, nn*nn)
	inv := 1 / t.s
	for c := range n {
		cc := shift(c, t.j)
		for r := range n {
			out[cc*nn+shift(r, t.i)] = d.m[c*n+r] + d.a[c]*d.b[r]*inv
		}
		out[cc*nn+t.i] = -d.a[c] * inv
	}
	for r := range n {
		out[t.j*nn+shift(r, t.i)] = -d.b[r] * inv
	}
	out[t.j*nn+t.i] = inv
	d.spare, d.m = d.m, out
	d.x = insertPoint(d.x, t.i, t.x)
	d.y = insertPoint(d.y, t.j, t.y)
	d.n = nn
}

func (d *Matrix) completeRemove(t pending) {
	n := d.n
	nn := n - 1
	out := grow(d.spare, nn*nn)
	p := 1 / d.m[t.j*n+t.i]
	for c := range n {
		if c == t.j {
			continue
		}
		cc := unshift(c, t.j)
		mci := d.m[c*n+t.i] * p
		for r := range n {
			if r == t.i {
				continue
			}
			out[cc*nn+unshift(r, t.i)] = d.m[c*n+r] - mci*d.m[t.j*n+r]
		}
	}
	d.spare, d.m = d.m, out
	d.x = removePoints(d.x, t.i)
	d.y = removePoints(d.y, t.j)
	d.n = nn
}

// completeInsert2 applies the block inverse
//
//	[[M + A·P·B, -A·P], [-P·B, P]]
//
// with A = M·U for the new columns, B = V·M for the new rows and P the
// inverse Schur complement, then moves the new rows and columns into sorted
// position.
func (d *Matrix) completeInsert2(t pending) {
	n := d.n
	nn := n + 2
	b1, b2 := make([]float64, n), make([]float64, n)
	for c := range n {
		v1, v2 := d.f(t.x, d.y[c]), d.f(t.x2, d.y[c])
		for r, w := range d.m[c*n : (c+1)*n] {
			b1[r] += v1 * w
			b2[r] += v2 * w
		}
	}
	s11, s12, s21, s22 := t.schur[0], t.schur[1], t.schur[2], t.schur[3]
	det := s11*s22 - s12*s21
	// p{y}{x}: rows of P follow the new columns, columns the new rows.
	p11, p12 := s22/det, -s12/det
	p21, p22 := -s21/det, s11/det

	rows := mergeIndex(n, d.RowPosition(t.x), d.RowPosition(t.x2), t.x2.less(t.x))
	cols := mergeIndex(n, d.ColPosition(t.y), d.ColPosition(t.y2), t.y2.less(t.y))
	out := grow(d.spare, nn*nn)
	for c := range n {
		g1 := -(t.a1[c]*p11 + t.a2[c]*p21)
		g2 := -(t.a1[c]*p12 + t.a2[c]*p22)
		dst := out[cols[c]*nn : (cols[c]+1)*nn]
		for r, w := range d.m[c*n : (c+1)*n] {
			dst[rows[r]] = w - g1*b1[r] - g2*b2[r]
		}
		dst[rows[n]], dst[rows[n+1]] = g1, g2
	}
	for k, p := range [2][2]float64{{p11, p12}, {p21, p22}} {
		dst := out[cols[n+k]*nn : (cols[n+k]+1)*nn]
		for r := range n {
			dst[rows[r]] = -(p[0]*b1[r] + p[1]*b2[r])
		}
		dst[rows[n]], dst[rows[n+1]] = p[0], p[1]
	}
	d.spare, d.m = d.m, out
	d.x = insertPoint(d.x, d.sortedPos(d.x, t.x), t.x)
	d.x = insertPoint(d.x, d.sortedPos(d.x, t.x2), t.x2)
	d.y = insertPoint(d.y, d.sortedPos(d.y, t.y), t.y)
	d.y = insertPoint(d.y, d.sortedPos(d.y, t.y2), t.y2)
	d.n = nn
}

// completeRemove2 applies M' = M_kk - M_kI·T⁻¹·M_Jk with T = M_JI the 2x2
// block of the removed columns J and rows I (i < i2, j < j2).
func (d *Matrix) completeRemove2(t pending) {
	n := d.n
	nn := n - 2
	i1, i2, j1, j2 := t.i, t.i2, t.j, t.j2
	t11, t12 := d.m[j1*n+i1], d.m[j1*n+i2]
	t21, t22 := d.m[j2*n+i1], d.m[j2*n+i2]
	det := t11*t22 - t12*t21
	// q{i}{j}: rows of T⁻¹ follow the removed rows of D.
	q11, q12 := t22/det, -t12/det
	q21, q22 := -t21/det, t11/det

	out := grow(d.spare, nn*nn)
	for c := range n {
		if c == j1 || c == j2 {
			continue
		}
		cc := unshift(unshift(c, j2), j1)
		mi1, mi2 := d.m[c*n+i1], d.m[c*n+i2]
		h1 := mi1*q11 + mi2*q21
		h2 := mi1*q12 + mi2*q22
		for r := range n {
			if r == i1 || r == i2 {
				continue
			}
			out[cc*nn+unshift(unshift(r, i2), i1)] = d.m[c*n+r] - h1*d.m[j1*n+r] - h2*d.m[j2*n+r]
		}
	}
	d.spare, d.m = d.m, out
	d.x = removePoints(d.x, i1, i2)
	d.y = removePoints(d.y, j1, j2)
	d.n = nn
}

func (d *Matrix) completeRow(t pending) {
	n := d.n
	i := t.i
	col := grow(d.u, n)
	for c := range n {
		col[c] = d.m[c*n+i]
	}
	inv := 1 / t.s
	for c := range n {
		f := col[c] * inv
		row := d.m[c*n : (c+1)*n]
		for r := range row {
			w := d.b[r]
			if r == i {
				w--
			}
			row[r] -= f * w
		}
	}
	d.u = col
	// Move column i of M (row i of D) to its new position.
	for c := range n {
		moveWithin(d.m[c*n:(c+1)*n], i, t.i2)
	}
	d.x[i] = t.x
	moveWithinPoints(d.x, i, t.i2)
}

func (d *Matrix) completeCol(t pending) {
	n := d.n
	j := t.j
	row := grow(d.v, n)
	copy(row, d.m[j*n:(j+1)*n])
	inv := 1 / t.s
	for c := range n {
		f := d.a[c]
		if c == j {
			f--
		}
		f *= inv
		dst := d.m[c*n : (c+1)*n]
		for r := range dst {
			dst[r] -= f * row[r]
		}
	}
	d.v = row
	moveRow(d.m, n, j, t.j2)
	d.y[j] = t.y
	moveWithinPoints(d.y, j, t.j2)
}

// mulInverse returns D⁻¹·u for the column vector u(r).
func (d *Matrix) mulInverse(u func(r int) float64) []float64 {
	n := d.n
	uu := make([]float64, n)
	for r := range n {
		uu[r] = u(r)
	}
	out := make([]float64, n)
	d.ApplyInverse(out, uu)
	return out
}

// appendParity returns the sign of moving p1 and p2, appended after the
// current points, into sorted position among them.
func (d *Matrix) appendParity(p1, p2 Point, pos func(Point) int) float64 {
	return parity(2*d.n - pos(p1) - pos(p2))
}

// movedPosition returns where a point replacing pts[i] ends up once sorted.
func (d *Matrix) movedPosition(pts []Point, i int, p Point) int {
	to := sort.Search(len(pts), func(k int) bool { return p.less(pts[k]) })
	if to > i {
		to--
	}
	return to
}

func (d *Matrix) sortedPos(pts []Point, p Point) int {
	return sort.Search(len(pts), func(k int) bool { return p.less(pts[k]) })
}

func parity(k int) float64 {
	if k%2 == 0 {
		return 1
	}
	return -1
}

// mergeIndex maps the n old indices and the two appended ones (n, n+1) to
// their sorted positions. p1 and p2 are the insert positions of the new
// points among the old ones; swapped reports that the second new point
// sorts before the first.
func mergeIndex(n, p1, p2 int, swapped bool) []int {
	idx := make([]int, n+2)
	for k := range n {
		idx[k] = k
		if k >= p1 {
			idx[k]++
		}
		if k >= p2 {
			idx[k]++
		}
	}
	idx[n], idx[n+1] = p1, p2
	if swapped {
		idx[n]++
	} else {
		idx[n+1]++
	}
	return idx
}

func shift(k, at int) int {
	if k >= at {
		return k + 1
	}
	return k
}

func unshift(k, at int) int {
	if k > at {
		return k - 1
	}
	return k
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n, 2*n)
	}
	return s[:n]
}

func insertPoint(pts []Point, at int, p Point) []Point {
	pts = append(pts, Point{})
	copy(pts[at+1:], pts[at:])
	pts[at] = p
	return pts
}

// removePoints deletes the given indices (all distinct).
func removePoints(pts []Point, idx ...int) []Point {
	out := pts[:0]
	for k, p := range pts {
		drop := false
		for _, i := range idx {
			if k == i {
				drop = true
			}
		}
		if !drop {
			out = append(out, p)
		}
	}
	return out
}

func moveWithin(s []float64, from, to int) {
	v := s[from]
	if from < to {
		copy(s[from:to], s[from+1:to+1])
	} else {
		copy(s[to+1:from+1], s[to:from])
	}
	s[to] = v
}

func moveWithinPoints(s []Point, from, to int) {
	v := s[from]
	if from < to {
		copy(s[from:to], s[from+1:to+1])
	} else {
		copy(s[to+1:from+1], s[to:from])
	}
	s[to] = v
}

func moveRow(m []float64, n, from, to int) {
	if from == to {
		return
	}
	tmp := make([]float64, n)
	copy(tmp, m[from*n:(from+1)*n])
	if from < to {
		copy(m[from*n:to*n], m[(from+1)*n:(to+1)*n])
	} else {
		copy(m[(to+1)*n:(from+1)*n], m[to*n:from*n])
	}
	copy(m[to*n:(to+1)*n], tmp)
}

func sortPoints(pts []Point) {
	sort.Slice(pts, func(a, b int) bool { return pts[a].less(pts[b]) })
}
