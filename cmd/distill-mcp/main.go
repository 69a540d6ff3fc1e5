// distill-mcp exposes the pipeline's artifacts as read-only MCP tools over
// stdio: progress, alias lookups and the canonical entity files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/distill/internal/config"
	"github.com/vthunder/distill/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Config file (default: distill.yaml if present)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides DATA_DIR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	// stdout carries the protocol; zap writes to stderr
	logging.Init(cfg.LogFormat, cfg.Debug)
	defer logging.Sync()

	s := server.NewMCPServer(
		"distill-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	register(s, &tools{cfg: cfg})

	logging.Info("mcp", "serving %s", cfg.DataDir)
	if err := server.ServeStdio(s); err != nil {
		logging.Error("mcp", "server error: %v", err)
		logging.Sync()
		os.Exit(1)
	}
}
