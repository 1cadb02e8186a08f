package mc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/cthyb/gf"
	"github.com/hupe1980/cthyb/internal/moves"
	"github.com/hupe1980/cthyb/internal/qmc"
)

// ErrMergeMismatch is returned when merging engines with different moves or
// measures.
var ErrMergeMismatch = errors.New("engines do not have the same layout")

// State is the phase of a run.
type State int

const (
	StateInit State = iota
	StateWarmup
	StateMeasure
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateWarmup:
		return "warmup"
	case StateMeasure:
		return "measure"
	default:
		return "done"
	}
}

// Measure accumulates one observable.
type Measure interface {
	// Accumulate adds the current configuration with weight sign.
	Accumulate(sign float64)
	// Buffer returns the raw sums. Merging chains adds buffers elementwise.
	Buffer() []float64
	// Finalize normalises the buffer by z, the summed sign of all samples.
	Finalize(z float64)
}

// Recorder receives run metrics.
type Recorder interface {
	RecordMove(name string, accepted bool)
	RecordCycle(phase string)
	RecordRegeneration(drift float64)
}

type noopRecorder struct{}

func (noopRecorder) RecordMove(string, bool) {}
func (noopRecorder) RecordCycle(string) {}
func (noopRecorder) RecordRegeneration(float64) {}

// Config controls the schedule of a run.
type Config struct {
	LengthCycle     int
	NWarmupCycles   int
	NCycles         int
	NAnnealingSteps int
	// MaxTime is the wall-clock budget. Negative disables it.
	MaxTime time.Duration
	// DriftTolerance is the relative regeneration drift above which a
	// warning is logged.
	DriftTolerance float64
	// ProgressInterval throttles progress logging.
	ProgressInterval time.Duration
}

// DefaultConfig returns the default schedule.
func DefaultConfig() Config {
	return Config{
		LengthCycle:      50,
		NWarmupCycles:    5000,
		MaxTime:          -1,
		DriftTolerance:   1e-5,
		ProgressInterval: 5 * time.Second,
	}
}

type moveEntry struct {
	name      string
	move      moves.Move
	attempted int64
	accepted  int64
}

type measureEntry struct {
	name    string
	measure Measure
}

// Stats summarises a run.
type Stats struct {
	WarmupCycles   int
	MeasureCycles  int
	Interrupted    bool
	Duration       time.Duration
	AcceptanceRate map[string]float64
	Attempted      map[string]int64
	Regenerations  int
	MaxDrift       float64
}

// Engine runs one chain.
type Engine struct {
	d        *qmc.Data
	cfg      Config
	logger   *slog.Logger
	recorder Recorder

	moves    []moveEntry
	cum      []float64
	measures []measureEntry
	after    func()

	target  []*gf.BlockTau
	state   State
	sumSign float64
	samples float64
	stats   Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// New returns an engine for the chain d.
func New(d *qmc.Data, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		d:        d,
		cfg:      cfg,
		logger:   slog.New(slog.DiscardHandler),
		recorder: noopRecorder{},
		stats: Stats{
			AcceptanceRate: map[string]float64{},
			Attempted:      map[string]int64{},
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Data returns the chain state.
func (e *Engine) Data() *qmc.Data { return e.d }

// State returns the current phase.
func (e *Engine) State() State { return e.state }

// AddMove registers a move with relative probability prob.
func (e *Engine) AddMove(m moves.Move, name string, prob float64) {
	if prob <= 0 {
		return
	}
	var total float64
	if n := len(e.cum); n > 0 {
		total = e.cum[n-1]
	}
	e.moves = append(e.moves, moveEntry{name: name, move: m})
	e.cum = append(e.cum, total+prob)
}

// AddMeasure registers a measurement.
func (e *Engine) AddMeasure(m Measure, name string) {
	e.measures = append(e.measures, measureEntry{name: name, measure: m})
}

// Measure returns the measurement registered under name, or nil.
func (e *Engine) Measure(name string) Measure {
	for _, m := range e.measures {
		if m.name == name {
			return m.measure
		}
	}
	return nil
}

// MeasureNames returns the names of all measurements in registration order.
func (e *Engine) MeasureNames() []string {
	names := make([]string, len(e.measures))
	for i, m := range e.measures {
		names[i] = m.name
	}
	return names
}

// SetAfterCycleDuty sets a function run after every cycle.
func (e *Engine) SetAfterCycleDuty(fn func()) { e.after = fn }

// Run executes warmup and measurement. Cancellation of ctx and the
// wall-clock budget end the run early without error; the accumulated data
// stays valid.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	if len(e.moves) == 0 && e.cfg.NWarmupCycles+e.cfg.NCycles > 0 {
		return e.stats, errors.New("mc: no moves registered")
	}
	start := time.Now()
	var deadline time.Time
	if e.cfg.MaxTime >= 0 {
		deadline = start.Add(e.cfg.MaxTime)
	}
	stop := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return !deadline.IsZero() && !time.Now().Before(deadline)
	}
	progress := rate.Sometimes{Interval: e.cfg.ProgressInterval}

	e.state = StateWarmup
	schedule, err := e.startAnnealing()
	if err != nil {
		return e.stats, err
	}
	for c := 0; c < e.cfg.NWarmupCycles; c++ {
		if stop() {
			e.stats.Interrupted = true
			break
		}
		if frac, ok := schedule[c]; ok {
			if err := e.anneal(frac); err != nil {
				return e.stats, err
			}
		}
		if err := e.cycle(); err != nil {
			return e.stats, err
		}
		e.stats.WarmupCycles++
		progress.Do(func() {
			e.logger.InfoContext(ctx, "warmup progress",
				slog.Int("cycle", c+1),
				slog.Int("of", e.cfg.NWarmupCycles),
				slog.Int("order", e.d.TotalOrder()),
			)
		})
	}
	if len(schedule) > 0 && !e.stats.Interrupted {
		// The final step restores the true hybridization even if it fell
		// on a cycle that was never reached.
		if err := e.anneal(1); err != nil {
			return e.stats, err
		}
	}

	e.state = StateMeasure
	for c := 0; c < e.cfg.NCycles && !e.stats.Interrupted; c++ {
		if stop() {
			e.stats.Interrupted = true
			break
		}
		if err := e.cycle(); err != nil {
			return e.stats, err
		}
		s := e.d.MeasureSign()
		e.sumSign += s
		e.samples++
		for _, m := range e.measures {
			m.measure.Accumulate(s)
		}
		e.stats.MeasureCycles++
		progress.Do(func() {
			e.logger.InfoContext(ctx, "measure progress",
				slog.Int("cycle", c+1),
				slog.Int("of", e.cfg.NCycles),
				slog.Float64("average_sign", e.AverageSign()),
			)
		})
	}
	e.state = StateDone
	e.stats.Duration = time.Since(start)
	e.updateRates()
	return e.stats, nil
}

// startAnnealing replaces Δ by its flat average and returns the warmup
// cycles at which the interpolation advances, with their fractions.
func (e *Engine) startAnnealing() (map[int]float64, error) {
	steps, warm := e.cfg.NAnnealingSteps, e.cfg.NWarmupCycles
	if steps <= 0 || warm <= 0 {
		return nil, nil
	}
	e.target = make([]*gf.BlockTau, len(e.d.Blocks))
	for b := range e.d.Blocks {
		e.target[b] = e.d.Delta(b)
	}
	if err := e.anneal(0); err != nil {
		return nil, err
	}
	schedule := make(map[int]float64, steps)
	for k := 1; k <= steps; k++ {
		schedule[k*warm/(steps+1)] = float64(k) / float64(steps)
	}
	return schedule, nil
}

func (e *Engine) anneal(frac float64) error {
	delta := make([]*gf.BlockTau, len(e.target))
	for b, g := range e.target {
		if frac >= 1 {
			delta[b] = g
			continue
		}
		mixed, err := gf.Interpolate(gf.Average(g), g, frac)
		if err != nil {
			return err
		}
		delta[b] = mixed
	}
	if _, err := e.d.SetDelta(delta); err != nil {
		return fmt.Errorf("mc: annealing step %.3f: %w", frac, err)
	}
	e.logger.Debug("annealing step", slog.Float64("fraction", frac))
	return nil
}

func (e *Engine) cycle() error {
	n := max(e.cfg.LengthCycle, 1)
	for range n {
		i := pick(e.d.Rand, e.cum)
		mv := &e.moves[i]
		u := e.d.Rand.Float64()
		mv.attempted++
		r := mv.move.Attempt(u)
		if u < math.Abs(r) {
			mv.move.Accept()
			mv.accepted++
			e.recorder.RecordMove(mv.name, true)
		} else {
			mv.move.Reject()
			e.recorder.RecordMove(mv.name, false)
		}
	}
	drift, regens, err := e.d.TakeHealth()
	if err != nil {
		return fmt.Errorf("mc: determinant update: %w", err)
	}
	if regens > 0 {
		e.stats.Regenerations += regens
		e.stats.MaxDrift = max(e.stats.MaxDrift, drift)
		e.recorder.RecordRegeneration(drift)
		if drift > e.cfg.DriftTolerance {
			e.logger.Warn("determinant drift above tolerance",
				slog.Float64("drift", drift),
				slog.Float64("tolerance", e.cfg.DriftTolerance),
			)
		}
	}
	e.recorder.RecordCycle(e.state.String())
	if e.after != nil {
		e.after()
	}
	return nil
}

func (e *Engine) updateRates() {
	for _, m := range e.moves {
		e.stats.Attempted[m.name] = m.attempted
		if m.attempted > 0 {
			e.stats.AcceptanceRate[m.name] = float64(m.accepted) / float64(m.attempted)
		}
	}
}

// SumSign returns the summed measurement sign.
func (e *Engine) SumSign() float64 { return e.sumSign }

// Samples returns the number of measured cycles.
func (e *Engine) Samples() float64 { return e.samples }

// AverageSign returns SumSign/Samples, or 1 before the first sample.
func (e *Engine) AverageSign() float64 {
	if e.samples == 0 {
		return 1
	}
	return e.sumSign / e.samples
}

// Stats returns the statistics of the last run.
func (e *Engine) Stats() Stats { return e.stats }

// Merge adds the accumulators and statistics of other to e.
func (e *Engine) Merge(other *Engine) error {
	if len(e.measures) != len(other.measures) || len(e.moves) != len(other.moves) {
		return ErrMergeMismatch
	}
	for i, m := range e.measures {
		if m.name != other.measures[i].name {
			return ErrMergeMismatch
		}
		dst, src := m.measure.Buffer(), other.measures[i].measure.Buffer()
		if len(dst) != len(src) {
			return fmt.Errorf("%w: measure %q", ErrMergeMismatch, m.name)
		}
		for k, v := range src {
			dst[k] += v
		}
	}
	for i := range e.moves {
		e.moves[i].attempted += other.moves[i].attempted
		e.moves[i].accepted += other.moves[i].accepted
	}
	e.sumSign += other.sumSign
	e.samples += other.samples
	e.stats.WarmupCycles += other.stats.WarmupCycles
	e.stats.MeasureCycles += other.stats.MeasureCycles
	e.stats.Interrupted = e.stats.Interrupted || other.stats.Interrupted
	e.stats.Duration = max(e.stats.Duration, other.stats.Duration)
	e.stats.Regenerations += other.stats.Regenerations
	e.stats.MaxDrift = max(e.stats.MaxDrift, other.stats.MaxDrift)
	e.updateRates()
	return nil
}

// Finalize normalises all measurements by the summed sign.
func (e *Engine) Finalize() {
	for _, m := range e.measures {
		m.measure.Finalize(e.sumSign)
	}
}
