package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vthunder/distill/internal/graph"
)

var (
	importDryRun     bool
	importBackupOnly bool
	importNoClear    bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Rebuild the graph from the merged collections",
	Long: `Back up the current graph, clear it and rebuild it from merged/.

The rebuild is not atomic. If it fails half way, restore the backup named
in the error with "distill restore".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		return withLock("import", func(string) error {
			return stageImport(ctx, graph.Options{
				DryRun:     importDryRun,
				BackupOnly: importBackupOnly,
				NoClear:    importNoClear,
			})
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot.json>",
	Short: "Replace the graph with a backup snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		return withLock("restore", func(string) error {
			store, err := openGraph(ctx)
			if err != nil {
				return err
			}
			defer store.Close(context.WithoutCancel(ctx))
			_, err = graph.Restore(ctx, store, args[0])
			return err
		})
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Report planned node and relationship counts without writing")
	importCmd.Flags().BoolVar(&importBackupOnly, "backup-only", false, "Only write a backup snapshot")
	importCmd.Flags().BoolVar(&importNoClear, "no-clear", false, "Do not clear the graph before importing")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(restoreCmd)
}
