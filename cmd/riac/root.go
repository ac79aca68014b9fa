package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TrevorS/riac/internal/config"
)

// rootOptions holds the state shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	file   config.File
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "riac",
		Short:         "Competence-progress goal exploration",
		Long:          "riac drives goal exploration with a competence-progress region tree.\nIt simulates runs against a synthetic learner, records them and replays them.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML run configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(
		newSimulateCmd(opts),
		newReplayCmd(opts),
		newRunsCmd(opts),
		newPresetsCmd(),
	)
	return cmd
}

func (o *rootOptions) load(logOut io.Writer) error {
	f, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		f.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		f.Logging.Format = o.logFormat
	}
	logger, err := f.Logging.NewLogger(logOut)
	if err != nil {
		return err
	}
	o.file = f
	o.logger = logger
	return nil
}

// writeOutput encodes v to w as YAML or JSON.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}
