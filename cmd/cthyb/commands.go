package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/cthyb"
	"github.com/hupe1980/cthyb/blobstore"
	miniostore "github.com/hupe1980/cthyb/blobstore/minio"
	s3store "github.com/hupe1980/cthyb/blobstore/s3"
	"github.com/hupe1980/cthyb/metrics"
)

type globalFlags struct {
	logLevel    string
	jsonLogs    bool
	diagnostics string
	compression string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "cthyb",
		Short:         "Continuous-time hybridization-expansion impurity solver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&g.jsonLogs, "json-logs", false, "log as JSON")
	root.PersistentFlags().StringVar(&g.diagnostics, "diagnostics", "",
		"diagnostics store: a directory, s3://bucket/prefix or minio://host:port/bucket/prefix")
	root.PersistentFlags().StringVar(&g.compression, "compression", "zstd", "diagnostics compression (none, lz4, zstd)")

	root.AddCommand(newRunCmd(g), newStructureCmd(g), newDiagnosticsCmd(g))
	return root
}

func (g *globalFlags) logger() (*cthyb.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	if g.jsonLogs {
		return cthyb.NewJSONLogger(level), nil
	}
	return cthyb.NewTextLogger(level), nil
}

// store opens the diagnostics store named by --diagnostics, or nil.
func (g *globalFlags) store(ctx context.Context) (blobstore.BlobStore, error) {
	target := g.diagnostics
	switch {
	case target == "":
		return nil, nil
	case strings.HasPrefix(target, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(target, "s3://"), "/")
		return s3store.New(ctx, bucket, s3store.WithPrefix(prefix))
	case strings.HasPrefix(target, "minio://"):
		rest := strings.TrimPrefix(target, "minio://")
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 2 || parts[1] == "" {
			return nil, fmt.Errorf("--diagnostics %q: want minio://host:port/bucket[/prefix]", target)
		}
		client, err := minio.New(parts[0], &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: os.Getenv("MINIO_SECURE") == "true",
		})
		if err != nil {
			return nil, err
		}
		var prefix string
		if len(parts) == 3 {
			prefix = parts[2]
		}
		return miniostore.NewStore(client, parts[1], prefix), nil
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, err
	}
	return blobstore.NewLocalStore(target), nil
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		chains      int
		concurrency int
		metricsAddr string
		out         string
		maxTime     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <run-file.yaml>",
		Short: "Sample the impurity problem of a run file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			rf, err := loadRunFile(args[0])
			if err != nil {
				return err
			}
			params, err := rf.params()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("chains") {
				rf.Chains = chains
			}
			if cmd.Flags().Changed("max-time") {
				params.MaxTime = maxTime
			}

			logger, err := g.logger()
			if err != nil {
				return err
			}
			opts := []cthyb.Option{cthyb.WithLogger(logger), cthyb.WithConcurrency(concurrency)}
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector())
				opts = append(opts, cthyb.WithMetricsCollector(metrics.NewPrometheusCollector(reg)))
				srv := serveMetrics(metricsAddr, reg, logger)
				defer srv.Shutdown(context.Background()) //nolint:errcheck
			}
			store, err := g.store(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				algo, err := cthyb.ParseCompression(g.compression)
				if err != nil {
					return err
				}
				opts = append(opts, cthyb.WithDiagnostics(store), cthyb.WithCompression(algo))
			}

			s, err := cthyb.New(rf.ConstrParams, opts...)
			if err != nil {
				return err
			}
			bath, err := rf.bath()
			if err != nil {
				return err
			}
			if err := s.SetBath(bath); err != nil {
				return err
			}
			res, err := s.SolveParallel(ctx, params, rf.Chains)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), res)
			if out == "" {
				return nil
			}
			return writeResult(out, res)
		},
	}
	cmd.Flags().IntVar(&chains, "chains", 1, "number of independent Markov chains (overrides the run file)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "chains sampled at the same time (0 = all)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result as JSON to this file")
	cmd.Flags().DurationVar(&maxTime, "max-time", -1, "wall-clock budget per chain (overrides the run file)")
	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *cthyb.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

func newStructureCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "structure <run-file.yaml>",
		Short: "Print the invariant subspaces of the local Hamiltonian",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := loadRunFile(args[0])
			if err != nil {
				return err
			}
			params, err := rf.params()
			if err != nil {
				return err
			}
			s, err := cthyb.New(rf.ConstrParams)
			if err != nil {
				return err
			}
			st, err := s.Structure(params)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d subspaces, ground state energy %.6g\n", st.NSubspaces(), st.GroundEnergy())
			for _, info := range st.Summary() {
				fmt.Fprintf(w, "  #%-4d dim %-4d E_min %-12.6g %s\n", info.Index, info.Dim, info.MinEnergy, strings.Join(info.States, " "))
			}
			return nil
		},
	}
}

func newDiagnosticsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics [blob]",
		Short: "List diagnostic blobs, or print one decompressed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := g.store(ctx)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("--diagnostics is required")
			}
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				names, err := store.List(ctx, "runs/")
				if err != nil {
					return err
				}
				for _, name := range names {
					size := "?"
					if b, err := store.Open(ctx, name); err == nil {
						size = humanize.Bytes(uint64(b.Size()))
						_ = b.Close()
					}
					fmt.Fprintf(w, "%-10s %s\n", size, name)
				}
				return nil
			}
			raw, err := cthyb.ReadDiagnostics(ctx, store, args[0])
			if err != nil {
				return err
			}
			_, err = w.Write(append(raw, '\n'))
			return err
		},
	}
}

func printSummary(w io.Writer, res *cthyb.Result) {
	st := res.Stats
	fmt.Fprintf(w, "run %s: %s measured cycles on %d chains in %s\n",
		res.RunID, humanize.Comma(int64(st.MeasureCycles)), st.Chains, st.Duration.Round(time.Millisecond))
	if st.Interrupted {
		fmt.Fprintln(w, "  interrupted before all cycles were done")
	}
	fmt.Fprintf(w, "  average sign %.6f\n", res.AverageSign)
	for name, rate := range st.AcceptanceRate {
		fmt.Fprintf(w, "  %-8s acceptance %.4f of %s\n", name, rate, humanize.Comma(st.Attempted[name]))
	}
	if st.Regenerations > 0 {
		fmt.Fprintf(w, "  %s regenerations, max drift %.2g\n", humanize.Comma(int64(st.Regenerations)), st.MaxDrift)
	}
	for name, v := range res.StaticObservables {
		fmt.Fprintf(w, "  <%s> = %.6f\n", name, v)
	}
}

// jsonResult is the serialisable view of a result.
type jsonResult struct {
	RunID             string                  `json:"run_id"`
	AverageSign       float64                 `json:"average_sign"`
	Stats             cthyb.Stats             `json:"stats"`
	GTau              [][]float64             `json:"g_tau,omitempty"`
	GL                [][]float64             `json:"g_l,omitempty"`
	PertOrder         map[string][]float64    `json:"pert_order,omitempty"`
	PertOrderTotal    []float64               `json:"pert_order_total,omitempty"`
	StaticObservables map[string]float64      `json:"static_observables,omitempty"`
	Correlators       map[string][][2]float64 `json:"correlators,omitempty"`
	Moments           map[string][]float64    `json:"moments,omitempty"`
	G2                []jsonG2                `json:"g2,omitempty"`
}

type jsonG2 struct {
	Block1     string       `json:"block1"`
	Block2     string       `json:"block2"`
	NFermionic int          `json:"n_fermionic"`
	Data       [][2]float64 `json:"data"`
}

func complexPairs(v []complex128) [][2]float64 {
	out := make([][2]float64, len(v))
	for n, z := range v {
		out[n] = [2]float64{real(z), imag(z)}
	}
	return out
}

func writeResult(path string, res *cthyb.Result) error {
	out := jsonResult{
		RunID:             res.RunID,
		AverageSign:       res.AverageSign,
		Stats:             res.Stats,
		PertOrder:         res.PertOrder,
		PertOrderTotal:    res.PertOrderTotal,
		StaticObservables: res.StaticObservables,
		Moments:           res.Moments,
	}
	for _, g := range res.GTau {
		out.GTau = append(out.GTau, g.Data)
	}
	for _, g := range res.GL {
		out.GL = append(out.GL, g.Data)
	}
	if len(res.Correlators) > 0 {
		out.Correlators = make(map[string][][2]float64, len(res.Correlators))
		for name, chi := range res.Correlators {
			out.Correlators[name] = complexPairs(chi)
		}
	}
	for _, g := range res.G2 {
		out.G2 = append(out.G2, jsonG2{Block1: g.Block1, Block2: g.Block2, NFermionic: g.NFermionic, Data: complexPairs(g.Data)})
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
