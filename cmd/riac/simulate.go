package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/TrevorS/riac"
	"github.com/TrevorS/riac/internal/config"
	"github.com/TrevorS/riac/internal/metrics"
	"github.com/TrevorS/riac/internal/runlog"
	"github.com/TrevorS/riac/internal/synth"
)

// statsEvery is the number of steps between progress logs and gauge updates.
const statsEvery = 100

// summary is the report printed at the end of simulate and replay.
type summary struct {
	RunID   string             `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Preset  string             `json:"preset" yaml:"preset"`
	Stats   riac.Stats         `json:"stats" yaml:"stats"`
	Metrics map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Leaves  []riac.RegionInfo  `json:"leaves,omitempty" yaml:"leaves,omitempty"`
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		steps       int
		dbPath      string
		metricsAddr string
		output      string
		leaves      bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Explore the synthetic learner's goal space",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.file
			if cmd.Flags().Changed("steps") {
				f.Simulation.Steps = steps
			}
			if dbPath != "" {
				f.Storage.DBPath = dbPath
			}
			if metricsAddr != "" {
				f.Metrics.Addr = metricsAddr
			}
			// A recorded run must replay with the same seed.
			if f.Tree.Seed == 0 {
				f.Tree.Seed = rand.Uint64()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := simulate(ctx, f, opts.logger, leaves)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, sum)
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "number of exploration steps (overrides simulation.steps)")
	cmd.Flags().StringVar(&dbPath, "db", "", "record the run in this SQLite database")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "summary format (yaml, json)")
	cmd.Flags().BoolVar(&leaves, "leaves", false, "include leaf regions in the summary")
	return cmd
}

func simulate(ctx context.Context, f config.File, logger *slog.Logger, withLeaves bool) (summary, error) {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	measure, err := f.Competence.Func(f.Preset)
	if err != nil {
		return summary{}, err
	}
	cfg := f.TreeConfig()
	cfg.Logger = logger
	cfg.Observer = riac.Observers(riac.LogObserver(logger, slog.LevelDebug), collector)

	space := synth.SpaceBounds(f.Space.Bounds, f.Simulation.OutcomeDims)
	explDims := make([]int, f.Space.Bounds.Dims())
	for i := range explDims {
		explDims[i] = i
	}
	model, err := riac.NewInterestModel(space, explDims, measure, cfg)
	if err != nil {
		return summary{}, err
	}
	sim := f.Simulation
	learner, err := synth.New(synth.Config{
		GoalBounds:  f.Space.Bounds,
		Learnable:   sim.Learnable,
		OutcomeDims: sim.OutcomeDims,
		Noise:       sim.Noise,
		Decay:       sim.Decay,
		Radius:      sim.Radius,
		Neighbors:   sim.Neighbors,
		Seed:        sim.Seed,
	}, model)
	if err != nil {
		return summary{}, err
	}

	var rec *recorder
	if f.Storage.DBPath != "" {
		rec, err = newRecorder(ctx, f, space, explDims)
		if err != nil {
			return summary{}, err
		}
		defer rec.close()
		logger.Info("riac: recording run", "run_id", rec.run.ID, "db", f.Storage.DBPath)
	}

	if f.Metrics.Addr != "" {
		srv := serveMetrics(f.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("riac: simulate", "preset", f.Preset, "steps", sim.Steps, "seed", f.Tree.Seed)
	for step := 0; step < sim.Steps; step++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("riac: simulation interrupted", "step", step)
			break
		}
		goal := model.Sample()
		target, reached, err := learner.Step(goal)
		if err != nil {
			return summary{}, fmt.Errorf("step %d: %w", step, err)
		}
		if _, err := model.Update(target, reached); err != nil {
			return summary{}, fmt.Errorf("step %d: %w", step, err)
		}
		if rec != nil {
			if err := rec.add(ctx, model, step); err != nil {
				return summary{}, err
			}
		}
		if (step+1)%statsEvery == 0 {
			st := model.Stats()
			collector.Update(st)
			logger.Info("riac: progress", "step", step+1, "leaves", st.Leaves,
				"progress_all", st.ProgressAll, "model", model)
		}
	}
	if rec != nil {
		if err := rec.flush(ctx); err != nil {
			return summary{}, err
		}
	}

	st := model.Stats()
	collector.Update(st)
	snap, err := collector.Snapshot()
	if err != nil {
		return summary{}, fmt.Errorf("gather metrics: %w", err)
	}
	sum := summary{Preset: f.Preset, Stats: st, Metrics: snap}
	if rec != nil {
		sum.RunID = rec.run.ID
	}
	if withLeaves {
		sum.Leaves = model.Leaves()
	}
	return sum, nil
}

// recorder batches observations into the run log.
type recorder struct {
	store *runlog.Store
	run   runlog.Run
	batch []runlog.Observation
	size  int
}

func newRecorder(ctx context.Context, f config.File, space riac.Bounds, explDims []int) (*recorder, error) {
	store, err := runlog.Open(f.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	data, err := f.Marshal()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	run, err := store.CreateRun(ctx, f.Preset, string(data), space, explDims)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &recorder{store: store, run: run, size: f.Storage.BatchSize}, nil
}

func (r *recorder) add(ctx context.Context, m *riac.InterestModel, idx int) error {
	goal, outcome, c, err := m.Observation(idx)
	if err != nil {
		return err
	}
	r.batch = append(r.batch, runlog.Observation{Index: idx, Goal: goal, Outcome: outcome, Competence: c})
	if len(r.batch) >= r.size {
		return r.flush(ctx)
	}
	return nil
}

func (r *recorder) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	// Flush even when ctx is cancelled so an interrupted run keeps its tail.
	if err := r.store.AppendBatch(context.WithoutCancel(ctx), r.run.ID, r.batch); err != nil {
		return err
	}
	r.batch = r.batch[:0]
	return nil
}

func (r *recorder) close() error {
	return r.store.Close()
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("riac: metrics server", "addr", addr, "err", err)
		}
	}()
	logger.Info("riac: serving metrics", "addr", addr)
	return srv
}
