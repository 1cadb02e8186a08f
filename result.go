package cthyb

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/hilbert"
)

// Stats summarises the sampling of all chains.
type Stats struct {
	Chains        int
	WarmupCycles  int
	MeasureCycles int
	// Interrupted is set when a chain stopped early on cancellation or on
	// its wall-clock budget.
	Interrupted bool
	Duration    time.Duration
	// AcceptanceRate and Attempted are keyed by move name.
	AcceptanceRate map[string]float64
	Attempted      map[string]int64
	Regenerations  int
	MaxDrift       float64
}

// G2Block is the two-particle Green's function of one block pair.
type G2Block struct {
	Block1, Block2 string
	*gf.BlockG2
}

// Result holds the measured observables of a solve. Fields of measurements
// that were not requested are nil.
type Result struct {
	// RunID identifies the solve in logs and diagnostic blobs.
	RunID string

	// GTau and GL are indexed like ConstrParams.GFStruct.
	GTau []*gf.BlockTau
	GL   []*gf.BlockLegendre

	// PertOrder maps a block name to its normalised expansion order
	// histogram; PertOrderTotal is the histogram of the total order.
	PertOrder      map[string][]float64
	PertOrderTotal []float64

	StaticObservables map[string]float64
	// Correlators maps a name to χ(iω_n) on the first bosonic frequencies.
	Correlators map[string][]complex128
	// Moments maps a name to ⟨(∫A dτ)^k⟩/β^k for k = 1..MomentOrder.
	Moments map[string][]float64
	// DensityMatrix holds one block per subspace in the eigenbasis.
	DensityMatrix []*mat.Dense
	// G2 holds one entry per measured block pair.
	G2 []G2Block

	AverageSign float64
	Stats       Stats
	Structure   []hilbert.SubspaceInfo
}
