package sessions

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

const testSchema = `
CREATE TABLE sessions (
	id TEXT PRIMARY KEY,
	title TEXT,
	first_ts TEXT,
	last_ts TEXT,
	msg_count INTEGER,
	file_hash TEXT,
	user_id TEXT,
	summary TEXT,
	tags TEXT,
	graph_data TEXT
);
CREATE TABLE messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT,
	role TEXT,
	text TEXT,
	timestamp TEXT,
	user_id TEXT
);
`

// setupArchive creates a session archive with two sessions.
func setupArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer db.Close()

	stmts := []string{
		testSchema,
		`INSERT INTO sessions (id, title, msg_count, user_id) VALUES ('abc12345-small', 'Kleine Session', 2, 'anton')`,
		`INSERT INTO sessions (id, title, msg_count, user_id) VALUES ('def67890-large', 'Große Session', 3, NULL)`,
		`INSERT INTO messages (session_id, role, text, timestamp) VALUES
			('abc12345-small', 'assistant', 'Hallo Anton', '2026-01-01T10:00:01'),
			('abc12345-small', 'user', 'Hallo Eli', '2026-01-01T10:00:00'),
			('def67890-large', 'user', 'eins', '2026-01-02T10:00:00'),
			('def67890-large', 'assistant', 'zwei', '2026-01-02T10:00:01'),
			('def67890-large', 'user', 'drei', '2026-01-02T10:00:02')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("Failed to seed archive: %v", err)
		}
	}
	return path
}

func TestListOrdersByMessageCount(t *testing.T) {
	store, err := Open(setupArchive(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	list, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "def67890-large" {
		t.Errorf("unexpected order: %+v", list)
	}

	list, err = store.List(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Title != "Kleine Session" {
		t.Errorf("prefix filter failed: %+v", list)
	}
}

func TestGetOrdersMessages(t *testing.T) {
	store, err := Open(setupArchive(t))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tr, err := store.Get(context.Background(), "abc12345-small")
	if err != nil {
		t.Fatal(err)
	}
	if tr.UserID != "anton" || len(tr.Messages) != 2 {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
	if tr.Messages[0].Text != "Hallo Eli" {
		t.Errorf("messages not in timestamp order: %+v", tr.Messages)
	}

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Error("expected error for missing archive")
	}
}

func TestShortID(t *testing.T) {
	if ShortID("abcdefghijk") != "abcdefgh" || ShortID("abc") != "abc" {
		t.Error("ShortID wrong")
	}
}
