// Command distill runs the knowledge-distillation pipeline: extract,
// normalize, merge and graph import.
package main

import (
	"os"

	"github.com/vthunder/distill/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error("distill", "%v", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}
