// Package backend opens the graph store named by a URI.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/distill/internal/graph"
	"github.com/vthunder/distill/internal/graph/neo4jstore"
	"github.com/vthunder/distill/internal/graph/sqlitestore"
)

// Config is what Open needs to reach a store.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

// Open selects the backend by URI scheme: bolt and neo4j schemes (with
// their +s/+ssc variants) go to Neo4j, sqlite://path to an SQLite file.
func Open(ctx context.Context, cfg Config) (graph.Store, error) {
	scheme, rest, ok := strings.Cut(cfg.URI, "://")
	if !ok {
		return nil, fmt.Errorf("graph URI %q has no scheme", cfg.URI)
	}
	switch scheme {
	case "sqlite":
		if rest == "" {
			return nil, fmt.Errorf("graph URI %q has no path", cfg.URI)
		}
		return sqlitestore.Open(rest)
	case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
		return neo4jstore.Open(ctx, neo4jstore.Config{
			URI:      cfg.URI,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			Timeout:  cfg.Timeout,
		})
	}
	return nil, fmt.Errorf("unsupported graph URI scheme %q", scheme)
}
