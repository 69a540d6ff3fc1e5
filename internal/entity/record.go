package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingKey is returned for a record without a usable name or text.
var ErrMissingKey = errors.New("record has no key")

// Entity is one record of any type. Which fields are populated depends on
// the type; Decode clears everything the type's schema does not declare.
type Entity struct {
	Name        string `json:"name,omitempty"`
	Text        string `json:"text,omitempty"`
	Role        string `json:"rolle,omitempty"`
	Description string `json:"beschreibung,omitempty"`
	Status      string `json:"status,omitempty"`
	Context     string `json:"kontext,omitempty"`
	Date        string `json:"datum,omitempty"`
	Rationale   string `json:"begründung,omitempty"`

	Project OneOrMany `json:"projekt,omitempty"`

	Knows           []string `json:"kennt,omitempty"`
	WorksWith       []string `json:"arbeitet_mit,omitempty"`
	MemberOf        []string `json:"mitglied_von,omitempty"`
	InterestedIn    []string `json:"interessiert_an,omitempty"`
	Offers          []string `json:"angebote,omitempty"`
	Needs           []string `json:"bedürfnisse,omitempty"`
	Members         []string `json:"mitglieder,omitempty"`
	Commissioned    []string `json:"beauftragt,omitempty"`
	Funds           []string `json:"foerdert,omitempty"`
	People          []string `json:"personen,omitempty"`
	FundedBy        []string `json:"gefoerdert_von,omitempty"`
	BelongsTo       []string `json:"gehoert_zu,omitempty"`
	BetweenPeople   []string `json:"zwischen_personen,omitempty"`
	BetweenConcepts []string `json:"zwischen_konzepte,omitempty"`
	Themes          []string `json:"themen,omitempty"`

	// provenance
	MsgRefs    []int    `json:"msg_refs,omitempty"`
	SessionIDs []string `json:"session_ids,omitempty"`
	Source     string   `json:"_quelle,omitempty"`
}

// OneOrMany is a reference field that the schema declares as a scalar but
// that models sometimes fill with a list. A single value is written back as
// a plain string.
type OneOrMany []string

func (o OneOrMany) MarshalJSON() ([]byte, error) {
	if len(o) == 1 {
		return json.Marshal(o[0])
	}
	return json.Marshal([]string(o))
}

func (o *OneOrMany) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = toList(raw)
	return nil
}

// UnmarshalJSON reads a record leniently: scalars may arrive as numbers,
// lists as bare strings, and list items that are not strings are dropped.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		return errors.New("record is null")
	}
	*e = Entity{
		Name:            toString(m["name"]),
		Text:            toString(m["text"]),
		Role:            toString(m["rolle"]),
		Description:     toString(m["beschreibung"]),
		Status:          toString(m["status"]),
		Context:         toString(m["kontext"]),
		Date:            toString(m["datum"]),
		Rationale:       toString(m["begründung"]),
		Project:         toList(m["projekt"]),
		Knows:           toList(m["kennt"]),
		WorksWith:       toList(m["arbeitet_mit"]),
		MemberOf:        toList(m["mitglied_von"]),
		InterestedIn:    toList(m["interessiert_an"]),
		Offers:          toList(m["angebote"]),
		Needs:           toList(m["bedürfnisse"]),
		Members:         toList(m["mitglieder"]),
		Commissioned:    toList(m["beauftragt"]),
		Funds:           toList(m["foerdert"]),
		People:          toList(m["personen"]),
		FundedBy:        toList(m["gefoerdert_von"]),
		BelongsTo:       toList(m["gehoert_zu"]),
		BetweenPeople:   toList(m["zwischen_personen"]),
		BetweenConcepts: toList(m["zwischen_konzepte"]),
		Themes:          toList(m["themen"]),
		MsgRefs:         toInts(m["msg_refs"]),
		SessionIDs:      toList(m["session_ids"]),
		Source:          toString(m["_quelle"]),
	}
	return nil
}

// Decode parses one record of type t and validates it against the schema.
func Decode(t Type, raw json.RawMessage) (Entity, error) {
	if !t.HasRecords() {
		return Entity{}, fmt.Errorf("%s items are not records", t)
	}
	var e Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entity{}, fmt.Errorf("decode %s: %w", t, err)
	}
	if t == Questions && e.Text == "" {
		e.Text = e.Name
	}
	e = e.Restrict(t)
	if e.Key(t) == "" {
		return Entity{}, ErrMissingKey
	}
	return e, nil
}

// DecodeList parses an array of records, skipping invalid items. It returns
// the number of skipped items alongside the records.
func DecodeList(t Type, raw json.RawMessage) ([]Entity, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, fmt.Errorf("decode %s list: %w", t, err)
	}
	out := make([]Entity, 0, len(items))
	skipped := 0
	for _, item := range items {
		e, err := Decode(t, item)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

// DecodeThemes parses a theme array. Items may be strings or {"name": ...}.
func DecodeThemes(raw json.RawMessage) ([]string, error) {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode themen list: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch v := item.(type) {
		case string:
			s = v
		case map[string]any:
			s = toString(v["name"])
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Key returns the canonical key of the record.
func (e Entity) Key(t Type) string {
	if t == Questions {
		return e.Text
	}
	return e.Name
}

// SetKey replaces the canonical key.
func (e *Entity) SetKey(t Type, key string) {
	if t == Questions {
		e.Text = key
		return
	}
	e.Name = key
}

// Restrict returns a copy carrying only the fields declared for t.
func (e Entity) Restrict(t Type) Entity {
	r := Entity{
		MsgRefs:    e.MsgRefs,
		SessionIDs: e.SessionIDs,
		Source:     e.Source,
	}
	switch t {
	case Persons:
		r.Name, r.Role, r.Context = e.Name, e.Role, e.Context
		r.Knows, r.WorksWith, r.MemberOf = e.Knows, e.WorksWith, e.MemberOf
		r.InterestedIn, r.Offers, r.Needs = e.InterestedIn, e.Offers, e.Needs
		r.MsgRefs = nil
	case Organizations:
		r.Name, r.Description = e.Name, e.Description
		r.Members, r.Commissioned, r.Funds, r.Themes = e.Members, e.Commissioned, e.Funds, e.Themes
		r.MsgRefs = nil
	case Projects:
		r.Name, r.Description, r.Status = e.Name, e.Description, e.Status
		r.People, r.FundedBy, r.BelongsTo, r.Themes = e.People, e.FundedBy, e.BelongsTo, e.Themes
		r.MsgRefs = nil
	case Insights:
		r.Name, r.Date, r.Context = e.Name, e.Date, e.Context
		r.People, r.Themes = e.People, e.Themes
	case Decisions:
		r.Name, r.Rationale, r.Date, r.Project = e.Name, e.Rationale, e.Date, e.Project
		r.People, r.Themes = e.People, e.Themes
	case Milestones:
		r.Name, r.Date, r.Project = e.Name, e.Date, e.Project
		r.People, r.Themes = e.People, e.Themes
	case Challenges:
		r.Name, r.Status, r.Project = e.Name, e.Status, e.Project
		r.People, r.Themes = e.People, e.Themes
	case Tensions:
		r.Name = e.Name
		r.BetweenPeople, r.BetweenConcepts, r.Themes = e.BetweenPeople, e.BetweenConcepts, e.Themes
	case Questions:
		r.Text, r.Status, r.Project = e.Text, e.Status, e.Project
		r.People, r.Themes = e.People, e.Themes
	}
	return r
}

// Fields returns every populated field keyed by its wire name.
func (e Entity) Fields() map[string]any {
	m := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	putList := func(k string, v []string) {
		if len(v) > 0 {
			m[k] = append([]string(nil), v...)
		}
	}
	put("name", e.Name)
	put("text", e.Text)
	put("rolle", e.Role)
	put("beschreibung", e.Description)
	put("status", e.Status)
	put("kontext", e.Context)
	put("datum", e.Date)
	put("begründung", e.Rationale)
	put("_quelle", e.Source)
	putList("projekt", e.Project)
	putList("kennt", e.Knows)
	putList("arbeitet_mit", e.WorksWith)
	putList("mitglied_von", e.MemberOf)
	putList("interessiert_an", e.InterestedIn)
	putList("angebote", e.Offers)
	putList("bedürfnisse", e.Needs)
	putList("mitglieder", e.Members)
	putList("beauftragt", e.Commissioned)
	putList("foerdert", e.Funds)
	putList("personen", e.People)
	putList("gefoerdert_von", e.FundedBy)
	putList("gehoert_zu", e.BelongsTo)
	putList("zwischen_personen", e.BetweenPeople)
	putList("zwischen_konzepte", e.BetweenConcepts)
	putList("themen", e.Themes)
	putList("session_ids", e.SessionIDs)
	if len(e.MsgRefs) > 0 {
		m["msg_refs"] = append([]int(nil), e.MsgRefs...)
	}
	return m
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := toString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func toList(v any) []string {
	switch x := v.(type) {
	case string:
		if s := strings.TrimSpace(x); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range x {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

func toInts(v any) []int {
	items, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil
		}
		items = []any{v}
	}
	var out []int
	for _, item := range items {
		switch x := item.(type) {
		case float64:
			if x == math.Trunc(x) && x >= 0 {
				out = append(out, int(x))
			}
		case string:
			s := strings.Trim(strings.TrimSpace(x), "[]")
			if n, err := strconv.Atoi(s); err == nil && n >= 0 {
				out = append(out, n)
			}
		}
	}
	return out
}
