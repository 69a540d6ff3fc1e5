package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/status"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show extraction progress and artifact counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := status.Collect(cfg)
		if err != nil {
			return err
		}
		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		printStatus(s)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(statusCmd)
}

func printStatus(s *status.Summary) {
	fmt.Printf("Data directory: %s\n", s.DataDir)
	if s.LastUpdated != "" {
		fmt.Printf("Manifest updated: %s\n", s.LastUpdated)
	}
	fmt.Printf("Sessions: %d done, %d failed\n", s.SessionsOK, len(s.Failed))
	for _, id := range s.Failed {
		fmt.Printf("  failed: %s\n", id)
	}

	labels := make([]string, 0, len(s.Sources))
	for l := range s.Sources {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Printf("Source %s: %s\n", l, s.Sources[l].Status)
	}
	fmt.Printf("Chunks: %d, extraction cost: $%.2f\n", s.Totals.ChunksProcessed, s.Totals.TotalCostUSD)
	fmt.Printf("Extraction files: %d\n", s.Extractions)

	fmt.Printf("\n%-20s %8s %8s\n", "type", "raw", "merged")
	for _, t := range entity.All {
		fmt.Printf("%-20s %8d %8d\n", t, s.Raw[t], s.Merged[t])
	}

	if n := len(s.Backups); n > 0 {
		fmt.Printf("\nLatest backup: %s (%d total)\n", s.Backups[n-1], n)
	}
	if s.Lock != nil {
		fmt.Printf("\nRunning: %s (pid %d, run %s) since %s\n",
			s.Lock.Command, s.Lock.PID, s.Lock.RunID, s.Lock.Started.Format("2006-01-02 15:04:05"))
	}
}
