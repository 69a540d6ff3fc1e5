package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vthunder/distill/internal/extract"
	"github.com/vthunder/distill/internal/sources"
)

var (
	extractSource    string
	extractSessionID string
	extractDryRun    bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract entities from transcripts",
	Long: `Extract entities from every transcript the manifest does not mark as done.

Sessions come from the session archive; the parsed group chat and the
reflection collection are extracted as one transcript each. Progress is
saved after every transcript, so an interrupted run resumes where it
stopped. The run ends early when the budget's hard stop is reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch extractSource {
		case extract.SourceAll, extract.SourceSession, sources.ChatLabel, sources.ReflectionsLabel:
		default:
			return fmt.Errorf("unknown source %q", extractSource)
		}
		ctx, stop := signalContext(cmd)
		defer stop()
		return withLock("extract", func(runID string) error {
			return stageExtract(ctx, runID, extractParams{
				source:    extractSource,
				sessionID: extractSessionID,
				dryRun:    extractDryRun,
			})
		})
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSource, "source", extract.SourceAll, "Source to extract: session, telegram, stimme or all")
	extractCmd.Flags().StringVar(&extractSessionID, "session-id", "", "Only sessions whose id starts with this prefix")
	extractCmd.Flags().BoolVar(&extractDryRun, "dry-run", false, "List what would be extracted without calling the model")
	rootCmd.AddCommand(extractCmd)
}
