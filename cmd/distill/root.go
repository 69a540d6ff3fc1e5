package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vthunder/distill/internal/config"
	"github.com/vthunder/distill/internal/lock"
	"github.com/vthunder/distill/internal/logging"
)

var (
	configPath string
	dataDir    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Distill conversation archives into a knowledge graph",
	Long: `distill turns conversation transcripts into a property graph in four stages:

  extract    per-transcript entity extraction with a completion model
  normalize  alias resolution and provenance tagging
  merge      semantic deduplication per entity type
  import     graph rebuild from the merged collections

Each stage reads the previous stage's files under the data directory, so
stages can be rerun independently.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			c.DataDir = dataDir
		}
		logging.Init(c.LogFormat, c.Debug)
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides DATA_DIR)")
}

// signalContext is cancelled on SIGINT or SIGTERM. Stages only observe it
// between units of work.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// withLock runs fn while holding the data directory's run lock.
func withLock(command string, fn func(runID string) error) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	l, err := lock.Acquire(cfg.LockPath(), command)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			logging.Warn("distill", "release lock: %v", err)
		}
	}()
	logging.Debug("distill", "run %s", l.RunID())
	return fn(l.RunID())
}
