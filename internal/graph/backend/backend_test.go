package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vthunder/distill/internal/graph/sqlitestore"
)

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := Open(context.Background(), Config{URI: "sqlite://" + path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close(context.Background())
	if _, ok := s.(*sqlitestore.Store); !ok {
		t.Errorf("expected *sqlitestore.Store, got %T", s)
	}
}

func TestOpenRejectsBadURIs(t *testing.T) {
	for _, uri := range []string{"", "localhost:7687", "sqlite://", "http://localhost:7474"} {
		if _, err := Open(context.Background(), Config{URI: uri}); err == nil {
			t.Errorf("Open(%q) should fail", uri)
		}
	}
}
