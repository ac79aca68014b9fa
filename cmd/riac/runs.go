package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/TrevorS/riac/internal/runlog"
)

type runEntry struct {
	runlog.Run   `yaml:",inline"`
	Observations int `json:"observations" yaml:"observations"`
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var (
		dbPath string
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
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

			ctx := cmd.Context()
			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			entries := make([]runEntry, 0, len(runs))
			for _, run := range runs {
				n, err := store.Count(ctx, run.ID)
				if err != nil {
					return err
				}
				entries = append(entries, runEntry{Run: run, Observations: n})
			}
			return writeOutput(cmd.OutOrStdout(), output, entries)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database holding the runs (default storage.db_path)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml, json)")
	return cmd
}
