package cthyb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/operator"
)

// Partition methods.
const (
	PartitionAuto           = "autopartition"
	PartitionQuantumNumbers = "quantum_numbers"
	PartitionNone           = "none"
)

// ConstrParams fixes the problem layout.
type ConstrParams struct {
	// Beta is the inverse temperature.
	Beta float64 `yaml:"beta" json:"beta" validate:"gt=0"`
	// GFStruct lists the blocks of the Green's function.
	GFStruct []operator.Block `yaml:"gf_struct" json:"gf_struct" validate:"required,min=1,dive"`
	// NIw is the number of Matsubara frequencies.
	NIw int `yaml:"n_iw" json:"n_iw" validate:"gte=1"`
	// NTau is the number of imaginary-time points of Δ(τ) and G(τ).
	NTau int `yaml:"n_tau" json:"n_tau" validate:"gte=2"`
	// NL is the number of Legendre coefficients.
	NL int `yaml:"n_l" json:"n_l" validate:"gte=1"`
}

// DefaultConstrParams returns the default layout for beta and blocks.
func DefaultConstrParams(beta float64, blocks []operator.Block) ConstrParams {
	return ConstrParams{
		Beta:     beta,
		GFStruct: blocks,
		NIw:      1025,
		NTau:     10001,
		NL:       50,
	}
}

// Correlator requests χ_AB(iω_n) = ∫_0^β dτ e^{iω_nτ}⟨T A(τ) B(0)⟩.
type Correlator struct {
	Name   string        `yaml:"name" json:"name" validate:"required"`
	A      operator.Expr `yaml:"-" json:"-"`
	B      operator.Expr `yaml:"-" json:"-"`
	NOmega int           `yaml:"n_omega" json:"n_omega" validate:"gte=1"`
}

// G2Pair names the two blocks of a G2 measurement: a, b of G2_abcd belong
// to Block1 and c, d to Block2.
type G2Pair struct {
	Block1 string `yaml:"block1" json:"block1" validate:"required"`
	Block2 string `yaml:"block2" json:"block2" validate:"required"`
}

// SolveParams controls one solve.
type SolveParams struct {
	// HLoc is the local Hamiltonian: quadratic part plus interaction.
	HLoc operator.Expr `yaml:"-" json:"-"`

	NCycles         int `yaml:"n_cycles" json:"n_cycles" validate:"gte=0"`
	LengthCycle     int `yaml:"length_cycle" json:"length_cycle" validate:"gte=1"`
	NWarmupCycles   int `yaml:"n_warmup_cycles" json:"n_warmup_cycles" validate:"gte=0"`
	NAnnealingSteps int `yaml:"n_annealing_steps" json:"n_annealing_steps" validate:"gte=0"`

	PartitionMethod string          `yaml:"partition_method" json:"partition_method"`
	QuantumNumbers  []operator.Expr `yaml:"-" json:"-"`

	RandomSeed uint64 `yaml:"random_seed" json:"random_seed"`
	RandomName string `yaml:"random_name" json:"random_name" validate:"omitempty,oneof=pcg chacha8"`
	// MaxTime is the wall-clock budget per chain. Negative disables it.
	MaxTime time.Duration `yaml:"max_time" json:"max_time"`

	MoveShift  bool `yaml:"move_shift" json:"move_shift"`
	MoveDouble bool `yaml:"move_double" json:"move_double"`
	// MoveGlobal maps a move name to an index substitution written as
	// "block,inner" -> "block,inner". Unlisted operators map to themselves.
	MoveGlobal     map[string]map[string]string `yaml:"move_global" json:"move_global"`
	MoveGlobalProb float64                      `yaml:"move_global_prob" json:"move_global_prob" validate:"gte=0,lt=1"`
	// ProposalProb weights the pair moves of each block. Missing blocks
	// get 1.
	ProposalProb map[string]float64 `yaml:"proposal_prob" json:"proposal_prob" validate:"dive,gte=0"`
	// UseTraceBound rejects proposals early when the trace bound already
	// rules out acceptance.
	UseTraceBound bool `yaml:"use_trace_bound" json:"use_trace_bound"`

	MeasureGTau          bool `yaml:"measure_g_tau" json:"measure_g_tau"`
	MeasureGL            bool `yaml:"measure_g_l" json:"measure_g_l"`
	MeasurePertOrder     bool `yaml:"measure_pert_order" json:"measure_pert_order"`
	MeasureDensityMatrix bool `yaml:"measure_density_matrix" json:"measure_density_matrix"`
	// UseTraceEstimator measures static observables with the estimator
	// integrated over all insertion times instead of at τ = 0.
	UseTraceEstimator bool `yaml:"use_trace_estimator" json:"use_trace_estimator"`
	UseNormAsWeight   bool `yaml:"use_norm_as_weight" json:"use_norm_as_weight"`

	// MeasureG2 measures the two-particle Green's function at zero bosonic
	// frequency on G2NFermionic negative and positive fermionic
	// frequencies. An empty G2Blocks measures every block pair.
	MeasureG2    bool     `yaml:"measure_g2" json:"measure_g2"`
	G2Blocks     []G2Pair `yaml:"measure_g2_blocks" json:"measure_g2_blocks" validate:"dive"`
	G2NFermionic int      `yaml:"measure_g2_n_fermionic" json:"measure_g2_n_fermionic" validate:"gte=0"`

	StaticObservables map[string]operator.Expr `yaml:"-" json:"-"`
	Correlators       []Correlator             `yaml:"correlators" json:"correlators" validate:"dive"`
	// Moments maps a name to the operator whose first MomentOrder moments
	// ⟨(∫A dτ)^k⟩/β^k are measured.
	Moments     map[string]operator.Expr `yaml:"-" json:"-"`
	MomentOrder int                      `yaml:"moment_order" json:"moment_order" validate:"gte=1,lte=4"`
	// MaxPertOrder is the last bin of the perturbation order histograms.
	MaxPertOrder int `yaml:"max_pert_order" json:"max_pert_order" validate:"gte=1"`

	ImagThreshold  float64 `yaml:"imag_threshold" json:"imag_threshold" validate:"gte=0"`
	PruneThreshold float64 `yaml:"prune_threshold" json:"prune_threshold" validate:"gte=0,lt=1"`
	// RegenerateEvery rebuilds the determinants after this many updates.
	RegenerateEvery int `yaml:"regenerate_every" json:"regenerate_every" validate:"gte=0"`

	// MakeHistograms writes the perturbation histograms and the subspace
	// summary to the diagnostics store.
	MakeHistograms bool `yaml:"make_histograms" json:"make_histograms"`
}

// DefaultSolveParams returns the defaults for the interaction hLoc.
func DefaultSolveParams(hLoc operator.Expr) SolveParams {
	return SolveParams{
		HLoc:            hLoc,
		NCycles:         10000,
		LengthCycle:     50,
		NWarmupCycles:   5000,
		PartitionMethod: PartitionAuto,
		RandomSeed:      34788,
		MaxTime:         -1,
		MoveShift:       true,
		MoveGlobalProb:  0.05,
		UseTraceBound:   true,
		MeasureGTau:     true,
		MomentOrder:     4,
		MaxPertOrder:    100,
		G2NFermionic:    10,
		ImagThreshold:   1e-15,
		RegenerateEvery: 100,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c ConstrParams) validate() error {
	if err := validate.Struct(c); err != nil {
		return translateError(err)
	}
	if c.NTau < 2*c.NIw {
		return &ErrMeshSize{NTau: c.NTau, NIw: c.NIw}
	}
	seen := make(map[string]bool, len(c.GFStruct))
	for _, b := range c.GFStruct {
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate block %q", ErrInvalidBlockStructure, b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}

func (p SolveParams) validate(constr ConstrParams) error {
	if err := validate.Struct(p); err != nil {
		return translateError(err)
	}
	switch p.PartitionMethod {
	case PartitionAuto, PartitionNone:
	case PartitionQuantumNumbers:
		if len(p.QuantumNumbers) == 0 {
			return ErrEmptyQuantumNumbers
		}
	default:
		return fmt.Errorf("%w: %q", ErrPartitionMethod, p.PartitionMethod)
	}
	for name := range p.ProposalProb {
		if !hasBlock(constr.GFStruct, name) {
			return fmt.Errorf("%w: proposal probability for unknown block %q", ErrInvalidBlockStructure, name)
		}
	}
	for _, pair := range p.G2Blocks {
		for _, name := range []string{pair.Block1, pair.Block2} {
			if !hasBlock(constr.GFStruct, name) {
				return fmt.Errorf("%w: G2 for unknown block %q", ErrInvalidBlockStructure, name)
			}
		}
	}
	if p.MeasureG2 && p.G2NFermionic < 1 {
		return fmt.Errorf("%w: G2 needs at least one fermionic frequency", ErrInvalidParams)
	}
	return nil
}

func hasBlock(blocks []operator.Block, name string) bool {
	for _, b := range blocks {
		if b.Name == name {
			return true
		}
	}
	return false
}

// partitioner returns the partition service selected by the parameters.
func (p SolveParams) partitioner() hilbert.Partitioner {
	switch p.PartitionMethod {
	case PartitionQuantumNumbers:
		return hilbert.QuantumNumbers{QN: p.QuantumNumbers, ImagThreshold: p.ImagThreshold}
	case PartitionNone:
		return hilbert.Single{ImagThreshold: p.ImagThreshold}
	}
	return hilbert.Autopartition{ImagThreshold: p.ImagThreshold}
}

// substitution resolves a MoveGlobal entry to a permutation of linear
// indices.
func substitution(fops *operator.FundamentalSet, subst map[string]string) ([]int, error) {
	perm := make([]int, fops.Len())
	for i := range perm {
		perm[i] = i
	}
	var errs []error
	for from, to := range subst {
		fi, err := operator.ParseIndex(from)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ti, err := operator.ParseIndex(to)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		f, okf := fops.Position(fi)
		t, okt := fops.Position(ti)
		if !okf || !okt {
			errs = append(errs, fmt.Errorf("substitution %s -> %s uses an unknown operator", strings.TrimSpace(from), strings.TrimSpace(to)))
			continue
		}
		perm[f] = t
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return perm, nil
}
