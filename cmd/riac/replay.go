package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TrevorS/riac"
	"github.com/TrevorS/riac/internal/config"
	"github.com/TrevorS/riac/internal/runlog"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var (
		dbPath string
		output string
		leaves bool
	)
	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Rebuild the interest model of a recorded run",
		Long:  "replay rebuilds the region tree of a recorded run from its observations\nand prints its statistics. Without a run id the newest run is replayed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = opts.file.Storage.DBPath
			}
			if dbPath == "" {
				return errors.New("no database: pass --db or set storage.db_path")
			}
			store, err := runlog.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var runID string
			if len(args) == 1 {
				runID = args[0]
			}
			sum, err := replay(cmd.Context(), store, runID, opts, leaves)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, sum)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database holding the run (default storage.db_path)")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "summary format (yaml, json)")
	cmd.Flags().BoolVar(&leaves, "leaves", true, "include leaf regions in the summary")
	return cmd
}

func replay(ctx context.Context, store *runlog.Store, runID string, opts *rootOptions, withLeaves bool) (summary, error) {
	run, err := findRun(ctx, store, runID)
	if err != nil {
		return summary{}, err
	}
	f, err := config.Parse([]byte(run.Config))
	if err != nil {
		return summary{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	measure, err := f.Competence.Func(f.Preset)
	if err != nil {
		return summary{}, err
	}
	cfg := f.TreeConfig()
	cfg.Logger = opts.logger

	model, err := riac.NewInterestModel(run.Bounds, run.ExplDims, measure, cfg)
	if err != nil {
		return summary{}, err
	}
	n, err := store.Replay(ctx, run.ID, model)
	if err != nil {
		return summary{}, err
	}
	opts.logger.Info("riac: replayed run", "run_id", run.ID, "observations", n)

	sum := summary{RunID: run.ID, Preset: run.Preset, Stats: model.Stats()}
	if withLeaves {
		sum.Leaves = model.Leaves()
	}
	return sum, nil
}

func findRun(ctx context.Context, store *runlog.Store, runID string) (runlog.Run, error) {
	if runID != "" {
		return store.GetRun(ctx, runID)
	}
	runs, err := store.ListRuns(ctx, 1)
	if err != nil {
		return runlog.Run{}, err
	}
	if len(runs) == 0 {
		return runlog.Run{}, fmt.Errorf("%w: database holds no runs", runlog.ErrRunNotFound)
	}
	return runs[0], nil
}
