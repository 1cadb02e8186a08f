package gf

// BlockG2 is the two-particle Green's function of a block pair in the
// particle-hole channel at zero bosonic frequency,
//
//	G2_abcd(iν, iν') = (1/β) ∫ e^{iν(τ1-τ2) + iν'(τ3-τ4)} ⟨T c_a(τ1) c†_b(τ2) c_c(τ3) c†_d(τ4)⟩,
//
// with a, b in the first block and c, d in the second. The frequency index
// n stands for ν = (2(n-NFermionic)+1)π/β, so both axes hold NFermionic
// negative and NFermionic positive frequencies.
type BlockG2 struct {
	Beta         float64
	NFermionic   int
	Size1, Size2 int
	// Data is laid out as [n][m][a][b][c][d].
	Data []complex128
}

// NewBlockG2 returns a zero function.
func NewBlockG2(beta float64, nFermionic, size1, size2 int) *BlockG2 {
	nw := 2 * nFermionic
	return &BlockG2{
		Beta:       beta,
		NFermionic: nFermionic,
		Size1:      size1,
		Size2:      size2,
		Data:       make([]complex128, nw*nw*size1*size1*size2*size2),
	}
}

// Len returns the number of frequencies per axis.
func (g *BlockG2) Len() int { return 2 * g.NFermionic }

// Frequency returns ν for index n.
func (g *BlockG2) Frequency(n int) float64 {
	return FermionicFrequency(n-g.NFermionic, g.Beta)
}

// Offset returns the position of (n, m, a, b, c, d) in Data.
func (g *BlockG2) Offset(n, m, a, b, c, d int) int {
	return ((((n*g.Len()+m)*g.Size1+a)*g.Size1+b)*g.Size2+c)*g.Size2 + d
}

// At returns G2_abcd(iν_n, iν_m).
func (g *BlockG2) At(n, m, a, b, c, d int) complex128 {
	return g.Data[g.Offset(n, m, a, b, c, d)]
}
