package qmc

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/configuration"
	"github.com/hupe1980/cthyb/internal/det"
	"github.com/hupe1980/cthyb/internal/timept"
	"github.com/hupe1980/cthyb/internal/trace"
	"github.com/hupe1980/cthyb/operator"
)

// ErrRandomName is returned for an unknown random generator name.
var ErrRandomName = errors.New("unknown random generator")

// NewRand returns a generator by name ("" and "pcg" select PCG, "chacha8"
// selects ChaCha8).
func NewRand(name string, seed uint64) (*rand.Rand, error) {
	switch name {
	case "", "pcg":
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), nil
	case "chacha8":
		var key [32]byte
		for i := range 4 {
			v := seed + uint64(i)*0x9e3779b97f4a7c15
			for k := range 8 {
				key[i*8+k] = byte(v >> (8 * k))
			}
		}
		return rand.New(rand.NewChaCha8(key)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrRandomName, name)
}

// Block describes one block of the hybridization.
type Block struct {
	Name string
	Size int
	// Offset is the linear index of the block's first fundamental operator.
	Offset int
}

// Data is the state of one chain.
type Data struct {
	Scale     timept.Scale
	Config    *configuration.Config
	Dets      []*det.Matrix
	Trace     *trace.Evaluator
	Structure *hilbert.Structure
	Rand      *rand.Rand
	Blocks    []Block

	// Atomic is the local weight of the current configuration.
	Atomic trace.Result
	// Sign is the sign of the current Monte Carlo weight.
	Sign float64
	// Perm is the operator permutation parity of the current configuration.
	Perm float64
	// RegenerateEvery is passed to determinant trackers built by moves.
	RegenerateEvery int

	drift   float64
	regens  int
	failure error

	delta   []*gf.BlockTau
	entries []configuration.Entry
	fenwick []int
}

// New returns the state of an empty configuration.
func New(st *hilbert.Structure, blocks []operator.Block, delta []*gf.BlockTau, rng *rand.Rand, opts trace.Options) (*Data, error) {
	if len(blocks) != len(delta) {
		return nil, fmt.Errorf("qmc: %d blocks but %d hybridization functions", len(blocks), len(delta))
	}
	scale := timept.NewScale(delta[0].Mesh.Beta)
	d := &Data{
		Scale:     scale,
		Config:    configuration.New(st.NSubspaces(), st),
		Trace:     trace.New(st, scale, opts),
		Structure: st,
		Rand:      rng,
		delta:     append([]*gf.BlockTau(nil), delta...),
	}
	fops := st.Fundamentals()
	for b, blk := range blocks {
		off, ok := fops.Position(operator.Index{Block: blk.Name, Inner: blk.Indices[0]})
		if !ok {
			return nil, fmt.Errorf("qmc: block %q is not in the fundamental set", blk.Name)
		}
		if delta[b].Size != len(blk.Indices) {
			return nil, fmt.Errorf("qmc: block %q has %d indices but Δ is %dx%d", blk.Name, len(blk.Indices), delta[b].Size, delta[b].Size)
		}
		d.Blocks = append(d.Blocks, Block{Name: blk.Name, Size: len(blk.Indices), Offset: off})
		d.Dets = append(d.Dets, det.New(d.entry(b)))
	}
	d.RegenerateEvery = det.DefaultRegenerateEvery
	d.Refresh()
	return d, nil
}

// NewDet returns an empty determinant tracker for block b.
func (d *Data) NewDet(b int) *det.Matrix {
	m := det.New(d.entry(b))
	m.SetRegenerateEvery(d.RegenerateEvery)
	return m
}

// SetRegenerateEvery sets the regeneration period of all trackers.
func (d *Data) SetRegenerateEvery(n int) {
	d.RegenerateEvery = n
	for _, m := range d.Dets {
		m.SetRegenerateEvery(n)
	}
}

// Record notes the outcome of a determinant update.
func (d *Data) Record(drift float64, err error) {
	if drift > 0 {
		d.regens++
		d.drift = max(d.drift, drift)
	}
	if err != nil && d.failure == nil {
		d.failure = err
	}
}

// TakeHealth returns and resets the largest drift and the number of
// regenerations since the last call, plus the first update failure.
func (d *Data) TakeHealth() (drift float64, regenerations int, err error) {
	drift, regenerations, err = d.drift, d.regens, d.failure
	d.drift, d.regens = 0, 0
	return drift, regenerations, err
}

// Beta returns β.
func (d *Data) Beta() float64 { return d.Scale.Beta() }

// Op returns the configuration operator for (block, inner, dagger).
func (d *Data) Op(block, inner int, dagger bool) configuration.Op {
	return configuration.Op{
		Dagger: dagger,
		Block:  block,
		Inner:  inner,
		Linear: d.Blocks[block].Offset + inner,
	}
}

// Point returns the determinant point of a placed operator.
func Point(e configuration.Entry) det.Point {
	return det.Point{Time: e.Time, Seq: e.Seq, Inner: e.Op.Inner}
}

// Handle returns the configuration handle of a determinant point.
func (d *Data) Handle(p det.Point) configuration.Handle {
	return d.Config.Find(p.Time, p.Seq)
}

// Delta returns the hybridization function of block b.
func (d *Data) Delta(b int) *gf.BlockTau { return d.delta[b] }

// SetDelta replaces the hybridization functions and regenerates all
// determinants. It returns the largest regeneration drift.
func (d *Data) SetDelta(delta []*gf.BlockTau) (float64, error) {
	copy(d.delta, delta)
	var worst float64
	for _, m := range d.Dets {
		drift, err := m.Regenerate()
		if err != nil {
			return 0, err
		}
		worst = max(worst, drift)
	}
	d.Sign = d.Perm * d.detSign() * signOf(d.Atomic.Weight)
	return worst, nil
}

// Order returns the number of creation operators in block b.
func (d *Data) Order(b int) int { return d.Dets[b].Size() }

// TotalOrder returns the number of creation operators in all blocks.
func (d *Data) TotalOrder() int {
	var n int
	for _, m := range d.Dets {
		n += m.Size()
	}
	return n
}

// MeasureSign is the factor every measurement is weighted with: the sign of
// the sampled weight times the atomic reweighting.
func (d *Data) MeasureSign() float64 { return d.Sign * d.Atomic.Reweight }

// entry returns the hybridization matrix element function of block b with
// D(x, y) = Δ(τ_x - τ_y) extended antiperiodically. At equal times the
// sequence number decides on which side of the discontinuity the pair is.
func (d *Data) entry(b int) det.Func {
	return func(x, y det.Point) float64 {
		g := d.delta[b]
		ticks, wrapped := timept.Sub(x.Time, y.Time)
		if ticks == 0 {
			if x.Seq > y.Seq {
				return g.At(0, x.Inner, y.Inner)
			}
			return -g.At(g.Mesh.N-1, x.Inner, y.Inner)
		}
		v := g.Eval(d.Scale.Duration(ticks), x.Inner, y.Inner)
		if wrapped {
			return -v
		}
		return v
	}
}

func (d *Data) detSign() float64 {
	s := 1.0
	for _, m := range d.Dets {
		s *= m.Sign()
	}
	return s
}

func signOf(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// Permutation returns the parity of the permutation that takes the
// canonical product Π_blocks Π_k c_k c†_k (ranks by ascending time) to the
// time-descending order of the current configuration.
func (d *Data) Permutation() float64 {
	d.entries = d.Config.Flatten(d.entries[:0])
	n := len(d.entries)
	if n < 2 {
		return 1
	}
	counts := make([][2]int, len(d.Blocks))
	for _, e := range d.entries {
		counts[e.Op.Block][dag(e.Op.Dagger)]++
	}
	base := make([]int, len(d.Blocks))
	off := 0
	for b := range d.Blocks {
		base[b] = off
		off += counts[b][0] + counts[b][1]
		counts[b] = [2]int{}
	}
	if cap(d.fenwick) < n+1 {
		d.fenwick = make([]int, n+1)
	}
	tree := d.fenwick[:n+1]
	clear(tree)

	// Inversions of the ascending sequence; the descending one has the
	// complement.
	var inv int
	for seen, e := range d.entries {
		k := counts[e.Op.Block][dag(e.Op.Dagger)]
		counts[e.Op.Block][dag(e.Op.Dagger)]++
		pos := base[e.Op.Block] + 2*k + dag(e.Op.Dagger)
		var le int
		for i := pos + 1; i > 0; i -= i & -i {
			le += tree[i]
		}
		inv += seen - le
		for i := pos + 1; i <= n; i += i & -i {
			tree[i]++
		}
	}
	if (n*(n-1)/2-inv)%2 == 0 {
		return 1
	}
	return -1
}

func dag(dagger bool) int {
	if dagger {
		return 1
	}
	return 0
}

// Refresh recomputes the atomic weight and the sign from scratch.
func (d *Data) Refresh() {
	d.Atomic = d.Trace.Evaluate(d.Config)
	d.Perm = d.Permutation()
	d.Sign = d.Perm * d.detSign() * signOf(d.Atomic.Weight)
}

// SignOf returns -1 for negative x and 1 otherwise.
func SignOf(x float64) float64 { return signOf(x) }

// Weight returns the signed Monte Carlo weight of the current state in
// log-magnitude form.
func (d *Data) Weight() (sign, logAbs float64) {
	logAbs = math.Log(math.Abs(d.Atomic.Weight))
	for _, m := range d.Dets {
		logAbs += m.LogAbsDeterminant()
	}
	return d.Sign, logAbs
}
