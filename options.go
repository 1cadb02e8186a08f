package cthyb

import (
	"log/slog"

	"github.com/hupe1980/cthyb/blobstore"
	"github.com/hupe1980/cthyb/hilbert"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	diagnostics      blobstore.BlobStore
	compression      Compression
	partitioner      hilbert.Partitioner
	concurrency      int
}

// Option configures Solver construction.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for sampling.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &cthyb.BasicMetricsCollector{}
//	s, _ := cthyb.New(constr, cthyb.WithMetricsCollector(metrics))
//	// ... solve ...
//	stats := metrics.GetStats()
//	fmt.Printf("Acceptance: %.3f\n", stats.AcceptanceRate)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := cthyb.NewJSONLogger(slog.LevelInfo)
//	s, _ := cthyb.New(constr, cthyb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithDiagnostics sets the blob store that receives the perturbation
// histograms and the subspace summary when MakeHistograms is set.
func WithDiagnostics(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.diagnostics = store
	}
}

// WithCompression selects the compression of diagnostic blobs.
func WithCompression(a Compression) Option {
	return func(o *options) {
		o.compression = a
	}
}

// WithPartitioner overrides the partition method of SolveParams with a
// custom partition service.
func WithPartitioner(p hilbert.Partitioner) Option {
	return func(o *options) {
		o.partitioner = p
	}
}

// WithConcurrency limits the number of chains SolveParallel runs at the
// same time. Values below 1 run all chains at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		compression:      CompressionZstd,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
