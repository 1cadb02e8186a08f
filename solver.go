package cthyb

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/hilbert"
	"github.com/hupe1980/cthyb/internal/mc"
	"github.com/hupe1980/cthyb/internal/measure"
	"github.com/hupe1980/cthyb/internal/moves"
	"github.com/hupe1980/cthyb/internal/qmc"
	"github.com/hupe1980/cthyb/internal/trace"
	"github.com/hupe1980/cthyb/operator"
)

// seedStride separates the random streams of parallel chains.
const seedStride = 928374

// Measurement names inside an engine.
const (
	measureGTau          = "g_tau"
	measureGL            = "g_l"
	measurePertOrder     = "pert_order"
	measureDensityMatrix = "density_matrix"
	measureG2            = "g2"
	prefixStatic         = "static:"
	prefixCorrelator     = "correlator:"
	prefixMoments        = "moments:"
)

// Solver samples the hybridization expansion of one impurity problem.
//
// A Solver is not safe for concurrent use; SolveParallel runs its chains
// concurrently on its own.
type Solver struct {
	constr ConstrParams
	mesh   gf.TauMesh
	fops   *operator.FundamentalSet
	delta  []*gf.BlockTau
	opts   options
}

// New returns a solver for the layout constr.
func New(constr ConstrParams, optFns ...Option) (*Solver, error) {
	if err := constr.validate(); err != nil {
		return nil, err
	}
	mesh, err := gf.NewTauMesh(constr.Beta, constr.NTau)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return &Solver{
		constr: constr,
		mesh:   mesh,
		fops:   operator.FromBlocks(constr.GFStruct),
		opts:   applyOptions(optFns),
	}, nil
}

// Mesh returns the imaginary-time mesh of Δ(τ) and G(τ).
func (s *Solver) Mesh() gf.TauMesh { return s.mesh }

// SetDelta sets the hybridization function of every block, in the order of
// ConstrParams.GFStruct.
func (s *Solver) SetDelta(delta []*gf.BlockTau) error {
	if len(delta) != len(s.constr.GFStruct) {
		return fmt.Errorf("%w: %d blocks but %d hybridization functions", ErrInvalidBlockStructure, len(s.constr.GFStruct), len(delta))
	}
	for b, blk := range s.constr.GFStruct {
		g := delta[b]
		if g == nil {
			return fmt.Errorf("%w: block %q has no hybridization function", ErrInvalidBlockStructure, blk.Name)
		}
		if g.Size != len(blk.Indices) {
			return &ErrDimensionMismatch{Block: blk.Name, Expected: len(blk.Indices), Actual: g.Size}
		}
		if g.Mesh != s.mesh {
			return fmt.Errorf("%w: block %q: hybridization mesh %+v differs from %+v", ErrInvalidBlockStructure, blk.Name, g.Mesh, s.mesh)
		}
	}
	s.delta = slices.Clone(delta)
	return nil
}

// SetBath sets Δ(τ) from discrete bath levels per block.
func (s *Solver) SetBath(levels [][]gf.BathLevel) error {
	if len(levels) != len(s.constr.GFStruct) {
		return fmt.Errorf("%w: %d blocks but %d bath descriptions", ErrInvalidBlockStructure, len(s.constr.GFStruct), len(levels))
	}
	delta := make([]*gf.BlockTau, len(levels))
	for b, blk := range s.constr.GFStruct {
		g, err := gf.DiscreteBath(s.mesh, len(blk.Indices), levels[b])
		if err != nil {
			return fmt.Errorf("%w: block %q: %w", ErrInvalidBlockStructure, blk.Name, err)
		}
		delta[b] = g
	}
	return s.SetDelta(delta)
}

// Structure partitions the local Hamiltonian of params without sampling.
func (s *Solver) Structure(params SolveParams) (*hilbert.Structure, error) {
	part := s.opts.partitioner
	if part == nil {
		part = params.partitioner()
	}
	st, err := part.Partition(params.HLoc, s.fops)
	if err != nil {
		return nil, translateError(err)
	}
	return st, nil
}

// Solve runs a single chain.
func (s *Solver) Solve(ctx context.Context, params SolveParams) (*Result, error) {
	return s.SolveParallel(ctx, params, 1)
}

// SolveParallel runs independent chains and sums their accumulators. Chain
// r is seeded with RandomSeed + 928374·r. Cancelling ctx stops every chain
// at its next cycle boundary; the samples taken so far are still reduced.
func (s *Solver) SolveParallel(ctx context.Context, params SolveParams, chains int) (*Result, error) {
	start := time.Now()
	chains = max(chains, 1)
	if err := params.validate(s.constr); err != nil {
		return nil, err
	}
	if s.delta == nil {
		return nil, fmt.Errorf("%w: hybridization function not set", ErrInvalidBlockStructure)
	}
	st, err := s.Structure(params)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := s.opts.logger.WithRun(runID)
	res := &Result{
		RunID:       runID,
		AverageSign: 1,
		Structure:   st.Summary(),
		Stats:       Stats{Chains: chains},
	}
	if params.NWarmupCycles == 0 && params.NCycles == 0 {
		logger.InfoContext(ctx, "no cycles requested, returning the atomic structure only",
			"subspaces", st.NSubspaces(),
		)
		s.writeDiagnostics(ctx, logger, res, params)
		return res, nil
	}
	logger.LogSolveStart(ctx, chains, params.NWarmupCycles, params.NCycles, st.NSubspaces())

	engines := make([]*mc.Engine, chains)
	g, gctx := errgroup.WithContext(ctx)
	limit := s.opts.concurrency
	if limit < 1 || limit > chains {
		limit = chains
	}
	g.SetLimit(limit)
	for rank := range chains {
		g.Go(func() error {
			chainLog := logger.WithChain(rank)
			e, err := s.newChain(st, params, rank, chainLog)
			if err != nil {
				return err
			}
			stats, err := e.Run(gctx)
			chainLog.LogChainDone(gctx, stats.MeasureCycles, e.AverageSign(), stats.Interrupted, err)
			if err != nil {
				return fmt.Errorf("chain %d: %w", rank, err)
			}
			engines[rank] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.LogSolveDone(ctx, 0, 0, time.Since(start), err)
		return nil, err
	}

	root := engines[0]
	for _, e := range engines[1:] {
		if err := root.Merge(e); err != nil {
			return nil, err
		}
	}
	if root.Samples() > 0 {
		root.Finalize()
		s.collect(res, root)
	}
	res.AverageSign = root.AverageSign()
	res.Stats = statsOf(root.Stats(), chains)
	res.Stats.Duration = time.Since(start)

	s.writeDiagnostics(ctx, logger, res, params)
	logger.LogSolveDone(ctx, res.Stats.MeasureCycles, res.AverageSign, res.Stats.Duration, nil)
	return res, nil
}

func (s *Solver) newChain(st *hilbert.Structure, params SolveParams, rank int, logger *Logger) (*mc.Engine, error) {
	rng, err := qmc.NewRand(params.RandomName, params.RandomSeed+seedStride*uint64(rank))
	if err != nil {
		return nil, translateError(err)
	}
	d, err := qmc.New(st, s.constr.GFStruct, s.delta, rng, trace.Options{
		PruneThreshold:  params.PruneThreshold,
		UseNormAsWeight: params.UseNormAsWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlockStructure, err)
	}
	d.SetRegenerateEvery(params.RegenerateEvery)

	cfg := mc.DefaultConfig()
	cfg.LengthCycle = params.LengthCycle
	cfg.NWarmupCycles = params.NWarmupCycles
	cfg.NCycles = params.NCycles
	cfg.NAnnealingSteps = params.NAnnealingSteps
	cfg.MaxTime = params.MaxTime
	e := mc.New(d, cfg,
		mc.WithLogger(logger.Logger),
		mc.WithRecorder(s.opts.metricsCollector),
	)
	if err := s.addMoves(e, d, params); err != nil {
		return nil, err
	}
	if err := s.addMeasures(e, d, params); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Solver) proposalProb(params SolveParams, b int) float64 {
	if p, ok := params.ProposalProb[s.constr.GFStruct[b].Name]; ok {
		return p
	}
	return 1
}

func (s *Solver) addMoves(e *mc.Engine, d *qmc.Data, params SolveParams) error {
	bound := params.UseTraceBound
	insert, remove := mc.NewMoveSet(d.Rand), mc.NewMoveSet(d.Rand)
	for b := range d.Blocks {
		p := s.proposalProb(params, b)
		insert.Add(moves.NewInsert(d, b, bound), p)
		remove.Add(moves.NewRemove(d, b, bound), p)
	}
	if insert.Len() == 0 {
		return fmt.Errorf("%w: every block has proposal probability 0", ErrInvalidParams)
	}
	e.AddMove(insert, "insert", 1)
	e.AddMove(remove, "remove", 1)

	if params.MoveDouble {
		insert4, remove4 := mc.NewMoveSet(d.Rand), mc.NewMoveSet(d.Rand)
		for b1 := range d.Blocks {
			for b2 := range d.Blocks {
				p := s.proposalProb(params, b1) * s.proposalProb(params, b2)
				insert4.Add(moves.NewInsert2(d, b1, b2, bound), p)
				remove4.Add(moves.NewRemove2(d, b1, b2, bound), p)
			}
		}
		e.AddMove(insert4, "insert4", 1)
		e.AddMove(remove4, "remove4", 1)
	}
	if params.MoveShift {
		e.AddMove(moves.NewShift(d, bound), "shift", 1)
	}
	if len(params.MoveGlobal) > 0 && params.MoveGlobalProb > 0 {
		global := mc.NewMoveSet(d.Rand)
		names := make([]string, 0, len(params.MoveGlobal))
		for name := range params.MoveGlobal {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			perm, err := substitution(s.fops, params.MoveGlobal[name])
			if err != nil {
				return fmt.Errorf("global move %q: %w", name, err)
			}
			m, err := moves.NewGlobal(d, perm, bound)
			if err != nil {
				return fmt.Errorf("%w: global move %q: %w", ErrInvalidParams, name, err)
			}
			global.Add(m, 1)
		}
		// The global group takes MoveGlobalProb of all proposals.
		rest := 2.0
		if params.MoveDouble {
			rest += 2
		}
		if params.MoveShift {
			rest++
		}
		e.AddMove(global, "global", rest*params.MoveGlobalProb/(1-params.MoveGlobalProb))
	}
	return nil
}

// blockIndex returns the position of a validated block name.
func (s *Solver) blockIndex(name string) int {
	return slices.IndexFunc(s.constr.GFStruct, func(b operator.Block) bool { return b.Name == name })
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *Solver) addMeasures(e *mc.Engine, d *qmc.Data, params SolveParams) error {
	if params.MeasureGTau {
		g, err := measure.NewGTau(d, s.constr.NTau)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		e.AddMeasure(g, measureGTau)
	}
	if params.MeasureGL {
		e.AddMeasure(measure.NewGLegendre(d, s.constr.NL), measureGL)
	}
	if params.MeasurePertOrder || params.MakeHistograms {
		e.AddMeasure(measure.NewPertOrder(d, params.MaxPertOrder), measurePertOrder)
	}
	if params.MeasureDensityMatrix {
		e.AddMeasure(measure.NewDensityMatrix(d), measureDensityMatrix)
	}
	if params.MeasureG2 {
		pairs := make([][2]int, 0, len(params.G2Blocks))
		for _, p := range params.G2Blocks {
			pairs = append(pairs, [2]int{s.blockIndex(p.Block1), s.blockIndex(p.Block2)})
		}
		g2, err := measure.NewG2(d, pairs, params.G2NFermionic)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		e.AddMeasure(g2, measureG2)
	}
	for _, name := range sortedKeys(params.StaticObservables) {
		newObs := measure.NewInstantObservable
		if params.UseTraceEstimator {
			newObs = measure.NewStaticObservable
		}
		m, err := newObs(d, params.StaticObservables[name])
		if err != nil {
			return fmt.Errorf("%w: static observable %q: %w", ErrInvalidParams, name, translateError(err))
		}
		e.AddMeasure(m, prefixStatic+name)
	}
	for _, c := range params.Correlators {
		m, err := measure.NewCorrelator(d, c.A, c.B, c.NOmega)
		if err != nil {
			return fmt.Errorf("%w: correlator %q: %w", ErrInvalidParams, c.Name, translateError(err))
		}
		e.AddMeasure(m, prefixCorrelator+c.Name)
	}
	for _, name := range sortedKeys(params.Moments) {
		m, err := measure.NewMoments(d, params.Moments[name], params.MomentOrder)
		if err != nil {
			return fmt.Errorf("%w: moments %q: %w", ErrInvalidParams, name, translateError(err))
		}
		e.AddMeasure(m, prefixMoments+name)
	}
	return nil
}

// collect copies the finalized measurements of e into res.
func (s *Solver) collect(res *Result, e *mc.Engine) {
	if m, ok := e.Measure(measureGTau).(*measure.GTau); ok {
		res.GTau = m.Result
	}
	if m, ok := e.Measure(measureGL).(*measure.GLegendre); ok {
		res.GL = m.Result
	}
	if m, ok := e.Measure(measurePertOrder).(*measure.PertOrder); ok {
		res.PertOrder = make(map[string][]float64, len(m.Blocks))
		for b, h := range m.Blocks {
			res.PertOrder[s.constr.GFStruct[b].Name] = h
		}
		res.PertOrderTotal = m.Total
	}
	if m, ok := e.Measure(measureDensityMatrix).(*measure.DensityMatrix); ok {
		res.DensityMatrix = m.Result
	}
	if m, ok := e.Measure(measureG2).(*measure.G2); ok {
		for k, p := range m.Pairs() {
			res.G2 = append(res.G2, G2Block{
				Block1:  s.constr.GFStruct[p[0]].Name,
				Block2:  s.constr.GFStruct[p[1]].Name,
				BlockG2: m.Result[k],
			})
		}
	}
	for _, name := range e.MeasureNames() {
		switch m := e.Measure(name).(type) {
		case *measure.StaticObservable:
			if res.StaticObservables == nil {
				res.StaticObservables = map[string]float64{}
			}
			res.StaticObservables[name[len(prefixStatic):]] = m.Value
		case *measure.Correlator:
			if res.Correlators == nil {
				res.Correlators = map[string][]complex128{}
			}
			res.Correlators[name[len(prefixCorrelator):]] = m.Result
		case *measure.Moments:
			if res.Moments == nil {
				res.Moments = map[string][]float64{}
			}
			res.Moments[name[len(prefixMoments):]] = m.Values
		}
	}
}

func statsOf(st mc.Stats, chains int) Stats {
	return Stats{
		Chains:         chains,
		WarmupCycles:   st.WarmupCycles,
		MeasureCycles:  st.MeasureCycles,
		Interrupted:    st.Interrupted,
		Duration:       st.Duration,
		AcceptanceRate: st.AcceptanceRate,
		Attempted:      st.Attempted,
		Regenerations:  st.Regenerations,
		MaxDrift:       st.MaxDrift,
	}
}
