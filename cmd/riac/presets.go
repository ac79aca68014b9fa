package main

import (
	"github.com/spf13/cobra"

	"github.com/TrevorS/riac"
	"github.com/TrevorS/riac/internal/config"
)

func newPresetsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Print the tree configuration of every preset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make(map[string]config.TreeConfig)
			for _, name := range riac.Presets() {
				f, err := config.Default(name)
				if err != nil {
					return err
				}
				out[name] = f.Tree
			}
			return writeOutput(cmd.OutOrStdout(), output, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml, json)")
	return cmd
}
