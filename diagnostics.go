package cthyb

import (
	"context"
	"encoding/json"
	"path"

	"github.com/hupe1980/cthyb/blobstore"
	"github.com/hupe1980/cthyb/internal/compress"
	"github.com/hupe1980/cthyb/internal/measure"
)

// Diagnostic files written below runs/<run id>/.
const (
	DiagnosticsBlocks     = "impurity_blocks.json"
	DiagnosticsHistograms = "histograms.json"
)

// Compression selects the encoding of diagnostic blobs.
type Compression = compress.Algorithm

// Compression algorithms.
const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZstd = compress.Zstd
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return compress.ParseAlgorithm(s)
}

type histograms struct {
	RunID   string               `json:"run_id"`
	Blocks  map[string][]float64 `json:"blocks"`
	Total   []float64            `json:"total"`
	Average map[string]float64   `json:"average"`
	Cycles  int                  `json:"cycles"`
	AvgSign float64              `json:"average_sign"`
}

// DiagnosticsPath returns the blob name of a diagnostics file of run id
// written with algorithm a.
func DiagnosticsPath(id, file string, a Compression) string {
	return path.Join("runs", id, file+a.Ext())
}

// writeDiagnostics dumps the subspace summary and the perturbation order
// histograms when MakeHistograms is set. Failures are logged and do not
// fail the solve.
func (s *Solver) writeDiagnostics(ctx context.Context, logger *Logger, res *Result, params SolveParams) {
	if !params.MakeHistograms {
		return
	}
	if s.opts.diagnostics == nil {
		logger.WarnContext(ctx, "histograms requested without a diagnostics store")
		return
	}
	s.putJSON(ctx, logger, res.RunID, DiagnosticsBlocks, res.Structure)
	if res.PertOrderTotal == nil {
		return
	}
	h := histograms{
		RunID:   res.RunID,
		Blocks:  res.PertOrder,
		Total:   res.PertOrderTotal,
		Average: make(map[string]float64, len(res.PertOrder)+1),
		Cycles:  res.Stats.MeasureCycles,
		AvgSign: res.AverageSign,
	}
	for name, hist := range res.PertOrder {
		h.Average[name] = measure.Average(hist)
	}
	h.Average["total"] = measure.Average(res.PertOrderTotal)
	s.putJSON(ctx, logger, res.RunID, DiagnosticsHistograms, h)
}

func (s *Solver) putJSON(ctx context.Context, logger *Logger, id, file string, v any) {
	name := DiagnosticsPath(id, file, s.opts.compression)
	raw, err := json.Marshal(v)
	if err == nil {
		raw, err = compress.Encode(raw, s.opts.compression)
	}
	if err == nil {
		err = s.opts.diagnostics.Put(ctx, name, raw)
	}
	logger.LogDiagnostics(ctx, name, len(raw), err)
}

// ReadDiagnostics reads and decompresses a diagnostics blob.
func ReadDiagnostics(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	raw, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return compress.Decode(raw)
}
