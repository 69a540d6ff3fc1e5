// Package sessions reads transcripts from the session archive database that
// the indexer maintains. The pipeline never writes to it.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// Message is one role-tagged line of a transcript.
type Message struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Transcript is an ordered conversation ready for extraction.
type Transcript struct {
	ID       string
	Title    string
	UserID   string
	Source   string // "session", "telegram", "stimme"
	Messages []Message

	// Describe is shown to the model as the source line of the prompt.
	Describe string
	// DocCount is set for document collections instead of chats.
	DocCount int
}

// ShortID is the 8-character id used in artifact names and provenance.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Summary is a row of the session listing.
type Summary struct {
	ID       string
	Title    string
	MsgCount int
}

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Store is a read-only handle on archive.db.
type Store struct {
	db *sql.DB
}

// Open opens the archive read-only. A missing file is an error rather than
// an empty database.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("session archive: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open session archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping session archive: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// List returns sessions whose id starts with prefix (all when empty),
// largest first.
func (s *Store) List(ctx context.Context, prefix string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(title, ''), COALESCE(msg_count, 0)
		FROM sessions
		WHERE id LIKE ? || '%'
		ORDER BY msg_count DESC, id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.MsgCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get loads one session with its messages in chronological order.
func (s *Store) Get(ctx context.Context, id string) (*Transcript, error) {
	t := &Transcript{ID: id, Source: "session", Describe: "session"}
	var userID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(title, ''), user_id FROM sessions WHERE id = ?`, id,
	).Scan(&t.Title, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", ShortID(id), err)
	}
	t.UserID = userID.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(role, ''), COALESCE(text, ''), COALESCE(timestamp, '')
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		t.Messages = append(t.Messages, m)
	}
	return t, rows.Err()
}
