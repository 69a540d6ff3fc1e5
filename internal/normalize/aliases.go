// Package normalize maps raw entity names onto canonical ones using a
// hand-maintained alias table, and collects every extraction artifact into
// one raw collection per entity type.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/vthunder/distill/internal/logging"
)

// Kind selects one of the independent alias tables.
type Kind string

const (
	KindPerson       Kind = "persons"
	KindOrganization Kind = "organisations"
	KindProject      Kind = "projects"
)

var kinds = []Kind{KindPerson, KindOrganization, KindProject}

// Table is a loaded alias table. A nil target means the name is a
// pseudo-entity and is dropped wherever it appears.
type Table struct {
	aliases map[Kind]map[string]*string
}

// Identity returns a table without aliases: names are only lowercased and
// trimmed.
func Identity() *Table {
	return NewTable(nil)
}

// NewTable builds a table from raw entries. Keys and targets are lowercased
// and trimmed, and chains are collapsed so that every target is itself
// stable. A person target that PersonList would split again, such as
// "anton, timo", is skipped with a warning.
func NewTable(raw map[Kind]map[string]*string) *Table {
	t := &Table{aliases: make(map[Kind]map[string]*string, len(kinds))}
	for _, k := range kinds {
		m := make(map[string]*string, len(raw[k]))
		for name, target := range raw[k] {
			key := clean(name)
			if key == "" {
				continue
			}
			if target == nil {
				m[key] = nil
				continue
			}
			v := clean(*target)
			if k == KindPerson && compoundSep.MatchString(v) {
				logging.Warn("normalize", "ignoring person alias %q: target %q names more than one person", key, v)
				continue
			}
			m[key] = &v
		}
		t.aliases[k] = resolveChains(m)
	}
	return t
}

// resolveChains rewrites a->b, b->c into a->c, b->c so that every target
// maps to itself or is absent from the table.
func resolveChains(m map[string]*string) map[string]*string {
	out := make(map[string]*string, len(m))
	for k := range m {
		out[k] = resolve(m, k)
	}
	return out
}

// resolve follows the chain starting at k. A chain that runs into a cycle
// ends at the smallest name on the cycle.
func resolve(m map[string]*string, k string) *string {
	var path []string
	pos := map[string]int{}
	cur := k
	for {
		if i, ok := pos[cur]; ok {
			smallest := cur
			for _, p := range path[i:] {
				if p < smallest {
					smallest = p
				}
			}
			return &smallest
		}
		pos[cur] = len(path)
		path = append(path, cur)

		target, ok := m[cur]
		switch {
		case !ok:
			return &cur
		case target == nil:
			return nil
		case *target == cur:
			return &cur
		}
		cur = *target
	}
}

// LoadAliases reads an alias file. A missing file gives the identity table
// and a warning; a malformed one is an error.
func LoadAliases(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Warn("normalize", "%s not found, names are only lowercased", path)
		return Identity(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read aliases: %w", err)
	}
	var raw map[Kind]map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse aliases %s: %w", path, err)
	}
	t := NewTable(raw)
	logging.Debug("normalize", "aliases: %d persons, %d organisations, %d projects",
		len(t.aliases[KindPerson]), len(t.aliases[KindOrganization]), len(t.aliases[KindProject]))
	return t, nil
}

// Len returns the number of entries for kind.
func (t *Table) Len(kind Kind) int {
	return len(t.aliases[kind])
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name maps one name. ok is false when the name is to be dropped, either
// because the table says so or because it is empty.
func (t *Table) Name(kind Kind, name string) (canonical string, ok bool) {
	key := clean(name)
	if key == "" {
		return "", false
	}
	target, found := t.aliases[kind][key]
	if !found {
		return key, true
	}
	if target == nil || *target == "" {
		return "", false
	}
	return *target, true
}

// List maps every name and removes drops and duplicates, keeping the first
// occurrence.
func (t *Table) List(kind Kind, names []string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if c, ok := t.Name(kind, n); ok && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

var compoundSep = regexp.MustCompile(`(?i),|\s+(?:und|and)\s+`)

// PersonList maps a list of person references. Each item is first looked up
// whole, so a compound like "anton, timo" can be aliased or dropped as a
// unit; otherwise it is split on commas and "und"/"and" and every part is
// mapped on its own.
func (t *Table) PersonList(names []string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	add := func(n string) {
		if c, ok := t.Name(KindPerson, n); ok && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, n := range names {
		key := clean(n)
		if target, found := t.aliases[KindPerson][key]; found {
			if target != nil {
				add(*target)
			}
			continue
		}
		if compoundSep.MatchString(key) {
			for _, part := range compoundSep.Split(key, -1) {
				add(part)
			}
			continue
		}
		add(key)
	}
	return out
}
