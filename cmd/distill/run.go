package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vthunder/distill/internal/extract"
	"github.com/vthunder/distill/internal/graph"
	"github.com/vthunder/distill/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all four stages in order",
	Long: `Run extract, normalize, merge and import. A stage only starts when the
previous one succeeded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		return withLock("run", func(runID string) error {
			logging.Info("distill", "=== extract ===")
			if err := stageExtract(ctx, runID, extractParams{source: extract.SourceAll}); err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			logging.Info("distill", "=== normalize ===")
			if err := stageNormalize(ctx); err != nil {
				return fmt.Errorf("normalize: %w", err)
			}
			logging.Info("distill", "=== merge ===")
			if err := stageMerge(ctx, nil); err != nil {
				return fmt.Errorf("merge: %w", err)
			}
			logging.Info("distill", "=== import ===")
			if err := stageImport(ctx, graph.Options{}); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
