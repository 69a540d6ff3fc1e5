// Package manifest persists extraction progress so that reruns skip what is
// already done.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/vthunder/distill/internal/entity"
)

const SchemaVersion = "v2"

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type Session struct {
	Status      string  `json:"status"`
	Chunks      int     `json:"chunks,omitempty"`
	CostUSD     float64 `json:"cost_usd,omitempty"`
	ExtractedAt string  `json:"extracted_at,omitempty"`
}

type Source struct {
	Status  string  `json:"status"`
	CostUSD float64 `json:"cost_usd,omitempty"`
}

type Totals struct {
	SessionsProcessed int     `json:"sessions_processed"`
	ChunksProcessed   int     `json:"chunks_processed"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
}

// Manifest is the on-disk progress record of the extraction stage.
type Manifest struct {
	SchemaVersion string             `json:"schema_version"`
	Created       string             `json:"created"`
	LastUpdated   *string            `json:"last_updated"`
	RunID         string             `json:"run_id,omitempty"`
	Sessions      map[string]Session `json:"sessions"`
	Sources       map[string]Source  `json:"sources"`
	Totals        Totals             `json:"totals"`

	path string
	now  func() time.Time
}

// New returns an empty manifest that will be saved to path.
func New(path string) *Manifest {
	m := &Manifest{
		SchemaVersion: SchemaVersion,
		Sessions:      map[string]Session{},
		Sources:       map[string]Source{},
		path:          path,
		now:           time.Now,
	}
	m.Created = m.timestamp()
	return m
}

// Load reads the manifest at path, or returns a fresh one if none exists.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m := New(path)
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Sessions == nil {
		m.Sessions = map[string]Session{}
	}
	if m.Sources == nil {
		m.Sources = map[string]Source{}
	}
	return m, nil
}

// Path is where Save writes.
func (m *Manifest) Path() string { return m.path }

// Save stamps last_updated and writes the manifest atomically.
func (m *Manifest) Save() error {
	ts := m.timestamp()
	m.LastUpdated = &ts
	if err := entity.WriteJSON(m.path, m); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// SessionDone reports whether a session was already extracted successfully.
func (m *Manifest) SessionDone(id string) bool {
	return m.Sessions[id].Status == StatusOK
}

// SourceDone reports whether an auxiliary source was already extracted.
func (m *Manifest) SourceDone(label string) bool {
	return m.Sources[label].Status == StatusOK
}

// MarkSession records the outcome of one session.
func (m *Manifest) MarkSession(id string, s Session) {
	m.Sessions[id] = s
}

// MarkSource records the outcome of one auxiliary source.
func (m *Manifest) MarkSource(label string, s Source) {
	m.Sources[label] = s
}

// SetSpend copies the budget tracker's totals into the manifest.
func (m *Manifest) SetSpend(totalCost float64, chunks int) {
	m.Totals.TotalCostUSD = totalCost
	m.Totals.ChunksProcessed = chunks
}

// RecountSessions recomputes sessions_processed from the session entries.
func (m *Manifest) RecountSessions() {
	n := 0
	for _, s := range m.Sessions {
		if s.Status == StatusOK {
			n++
		}
	}
	m.Totals.SessionsProcessed = n
}

// Failed lists session ids whose last attempt failed, sorted.
func (m *Manifest) Failed() []string {
	var ids []string
	for id, s := range m.Sessions {
		if s.Status == StatusFailed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Manifest) timestamp() string {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	return now().Format("2006-01-02T15:04:05.000000")
}
