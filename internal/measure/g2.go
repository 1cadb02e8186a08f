package measure

import (
	"errors"
	"fmt"
	"math/cmplx"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/internal/qmc"
)

// ErrG2Layout is returned for G2 requests without frequencies or with an
// unknown block.
var ErrG2Layout = errors.New("invalid G2 layout")

// G2 accumulates the two-particle Green's function of block pairs at zero
// bosonic frequency. Each sample removes two creator/annihilator pairs from
// the determinants:
//
//	G2 = (1/β)⟨M_ab(ν,ν)·M_cd(ν',ν') - δ_{b1 b2}·M_ad(ν,ν')·M_cb(ν',ν)⟩,
//
// where M(ν,ν') is the inverse hybridization matrix in frequency space.
type G2 struct {
	d     *qmc.Data
	pairs [][2]int
	nf    int
	buf   []float64
	offs  []int
	// shapes[k] is the empty layout of pairs[k].
	shapes []gf.BlockG2

	// Result[k] belongs to pairs[k] after Finalize.
	Result []*gf.BlockG2
}

// NewG2 returns the accumulator for the given block pairs on nFermionic
// negative and nFermionic positive frequencies. No pairs means all of them.
func NewG2(d *qmc.Data, pairs [][2]int, nFermionic int) (*G2, error) {
	if nFermionic < 1 {
		return nil, fmt.Errorf("%w: %d fermionic frequencies", ErrG2Layout, nFermionic)
	}
	if len(pairs) == 0 {
		for b1 := range d.Blocks {
			for b2 := range d.Blocks {
				pairs = append(pairs, [2]int{b1, b2})
			}
		}
	}
	g := &G2{d: d, pairs: pairs, nf: nFermionic}
	var total int
	for _, p := range pairs {
		for _, b := range p {
			if b < 0 || b >= len(d.Blocks) {
				return nil, fmt.Errorf("%w: block %d", ErrG2Layout, b)
			}
		}
		shape := gf.BlockG2{Beta: d.Beta(), NFermionic: nFermionic, Size1: d.Blocks[p[0]].Size, Size2: d.Blocks[p[1]].Size}
		g.shapes = append(g.shapes, shape)
		g.offs = append(g.offs, total)
		n, s1, s2 := shape.Len(), shape.Size1, shape.Size2
		total += 2 * n * n * s1 * s1 * s2 * s2
	}
	g.buf = make([]float64, total)
	return g, nil
}

// Pairs returns the measured block pairs.
func (g *G2) Pairs() [][2]int { return g.pairs }

// transform returns M_ab(ν_n, ν_m) of block b laid out as [n][m][a][b].
func (g *G2) transform(b int) []complex128 {
	dm := g.d.Dets[b]
	k, size, nw := dm.Size(), g.d.Blocks[b].Size, 2*g.nf
	beta := g.d.Beta()
	phase := func(tau float64, sign float64) []complex128 {
		out := make([]complex128, nw)
		for n := range out {
			out[n] = cmplx.Exp(complex(0, sign*gf.FermionicFrequency(n-g.nf, beta)*tau))
		}
		return out
	}
	// half[j][m][b] = Σ_i M_ji e^{-iν_m τ†_i} over rows with inner index b.
	half := make([]complex128, k*nw*size)
	for i := range k {
		row := dm.Row(i)
		e := phase(g.d.Scale.Float(row.Time), -1)
		for j := range k {
			m := complex(dm.InverseAt(j, i), 0)
			if m == 0 {
				continue
			}
			for n, z := range e {
				half[(j*nw+n)*size+row.Inner] += m * z
			}
		}
	}
	out := make([]complex128, nw*nw*size*size)
	for j := range k {
		col := dm.Col(j)
		e := phase(g.d.Scale.Float(col.Time), 1)
		for n, z := range e {
			for m := range nw {
				src := half[(j*nw+m)*size : (j*nw+m+1)*size]
				dst := out[((n*nw+m)*size+col.Inner)*size:]
				for c, v := range src {
					dst[c] += z * v
				}
			}
		}
	}
	return out
}

func (g *G2) Accumulate(sign float64) {
	if sign == 0 {
		return
	}
	nw := 2 * g.nf
	w := complex(sign/g.d.Beta(), 0)
	ms := make(map[int][]complex128)
	get := func(b int) []complex128 {
		m, ok := ms[b]
		if !ok {
			m = g.transform(b)
			ms[b] = m
		}
		return m
	}
	for k, p := range g.pairs {
		m1, m2 := get(p[0]), get(p[1])
		s1, s2 := g.d.Blocks[p[0]].Size, g.d.Blocks[p[1]].Size
		at1 := func(n, m, a, b int) complex128 { return m1[((n*nw+m)*s1+a)*s1+b] }
		at2 := func(n, m, c, d int) complex128 { return m2[((n*nw+m)*s2+c)*s2+d] }
		sh := &g.shapes[k]
		buf := g.buf[g.offs[k]:]
		for n := range nw {
			for m := range nw {
				for a := range s1 {
					for b := range s1 {
						for c := range s2 {
							for d := range s2 {
								v := at1(n, n, a, b) * at2(m, m, c, d)
								if p[0] == p[1] {
									v -= at1(n, m, a, d) * at1(m, n, c, b)
								}
								i := 2 * sh.Offset(n, m, a, b, c, d)
								v *= w
								buf[i] += real(v)
								buf[i+1] += imag(v)
							}
						}
					}
				}
			}
		}
	}
}

func (g *G2) Buffer() []float64 { return g.buf }

func (g *G2) Finalize(z float64) {
	g.Result = make([]*gf.BlockG2, len(g.pairs))
	for k, sh := range g.shapes {
		out := gf.NewBlockG2(sh.Beta, sh.NFermionic, sh.Size1, sh.Size2)
		src := g.buf[g.offs[k]:]
		for i := range out.Data {
			out.Data[i] = complex(src[2*i]/z, src[2*i+1]/z)
		}
		g.Result[k] = out
	}
}
