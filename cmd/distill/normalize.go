package main

import (
	"github.com/spf13/cobra"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Resolve aliases and collect raw per-type files",
	Long: `Apply the alias table to every extraction artifact and write one raw
collection per entity type to merged_raw/. Entries are tagged with their
source and session id. No model calls are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		return withLock("normalize", func(string) error {
			return stageNormalize(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
