package measure

import "github.com/hupe1980/cthyb/internal/qmc"

// PertOrder histograms the expansion order of every block and the total
// order. Orders above the maximum are counted in the last bin.
type PertOrder struct {
	d     *qmc.Data
	width int
	buf   []float64

	// Blocks and Total hold the normalised histograms after Finalize.
	Blocks [][]float64
	Total  []float64
}

// NewPertOrder returns histograms for orders 0..maxOrder.
func NewPertOrder(d *qmc.Data, maxOrder int) *PertOrder {
	w := maxOrder + 1
	return &PertOrder{d: d, width: w, buf: make([]float64, (len(d.Blocks)+1)*w)}
}

// Accumulate counts the current orders. Histograms are not sign weighted.
func (p *PertOrder) Accumulate(float64) {
	nb := len(p.d.Blocks)
	var total int
	for b := range nb {
		k := p.d.Order(b)
		total += k
		p.buf[b*p.width+min(k, p.width-1)]++
	}
	p.buf[nb*p.width+min(total, p.width-1)]++
}

func (p *PertOrder) Buffer() []float64 { return p.buf }

// Finalize normalises every histogram to unit sum.
func (p *PertOrder) Finalize(float64) {
	nb := len(p.d.Blocks)
	hist := make([][]float64, nb+1)
	for b := range hist {
		row := append([]float64(nil), p.buf[b*p.width:(b+1)*p.width]...)
		var n float64
		for _, v := range row {
			n += v
		}
		if n > 0 {
			for i := range row {
				row[i] /= n
			}
		}
		hist[b] = row
	}
	p.Blocks, p.Total = hist[:nb], hist[nb]
}

// Average returns the mean of a normalised histogram.
func Average(hist []float64) float64 {
	var s float64
	for k, v := range hist {
		s += float64(k) * v
	}
	return s
}
