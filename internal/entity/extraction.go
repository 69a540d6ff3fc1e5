package entity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Meta describes where an extraction came from.
type Meta struct {
	SessionID   string  `json:"session_id,omitempty"`
	Title       string  `json:"title,omitempty"`
	Source      string  `json:"quelle"`
	MsgCount    int     `json:"msg_count,omitempty"`
	DocCount    int     `json:"doc_count,omitempty"`
	Chunks      int     `json:"chunks,omitempty"`
	CostUSD     float64 `json:"cost_usd"`
	ExtractedAt string  `json:"extracted_at"`
}

// Extraction is the result of one chunk, or of all chunks of one transcript
// once merged. Themes live apart from Records because they are plain strings.
type Extraction struct {
	Records map[Type][]Entity
	Themes  []string
	Meta    *Meta

	// Skipped counts items dropped during decoding.
	Skipped int
}

// NewExtraction returns an empty extraction.
func NewExtraction() *Extraction {
	return &Extraction{Records: map[Type][]Entity{}}
}

// Count returns the number of items of type t.
func (x *Extraction) Count(t Type) int {
	if t == Themes {
		return len(x.Themes)
	}
	return len(x.Records[t])
}

// Total returns the number of items across all types.
func (x *Extraction) Total() int {
	n := 0
	for _, t := range All {
		n += x.Count(t)
	}
	return n
}

// Append concatenates other's items onto x without deduplication.
func (x *Extraction) Append(other *Extraction) {
	for t, recs := range other.Records {
		x.Records[t] = append(x.Records[t], recs...)
	}
	x.Themes = append(x.Themes, other.Themes...)
	x.Skipped += other.Skipped
}

func (x *Extraction) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(All)+1)
	for _, t := range Mergeable {
		if recs := x.Records[t]; len(recs) > 0 {
			m[string(t)] = recs
		}
	}
	if len(x.Themes) > 0 {
		m[string(Themes)] = x.Themes
	}
	if x.Meta != nil {
		m["_meta"] = x.Meta
	}
	return json.Marshal(m)
}

func (x *Extraction) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("extraction is not an object")
	}
	*x = Extraction{Records: map[Type][]Entity{}}
	for _, t := range All {
		raw, ok := m[string(t)]
		if !ok || string(raw) == "null" {
			continue
		}
		if t == Themes {
			themes, err := DecodeThemes(raw)
			if err != nil {
				x.Skipped++
				continue
			}
			x.Themes = themes
			continue
		}
		recs, skipped, err := DecodeList(t, raw)
		if err != nil {
			x.Skipped++
			continue
		}
		x.Skipped += skipped
		if len(recs) > 0 {
			x.Records[t] = recs
		}
	}
	if raw, ok := m["_meta"]; ok {
		var meta Meta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("decode _meta: %w", err)
		}
		x.Meta = &meta
	}
	return nil
}

// ReadExtraction loads an extraction artifact.
func ReadExtraction(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var x Extraction
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &x, nil
}

// WriteJSON writes v as indented JSON through a temp file and rename, so a
// crash never leaves a half-written artifact behind.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadRecords loads a per-type artifact (raw or canonical). It also returns
// how many invalid records were dropped.
func ReadRecords(t Type, path string) ([]Entity, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	recs, skipped, err := DecodeList(t, data)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return recs, skipped, nil
}

// ReadThemes loads a theme artifact.
func ReadThemes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeThemes(data)
}
