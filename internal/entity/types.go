// Package entity defines the extraction taxonomy: one record shape per entity
// type, validated when decoded from model output or pipeline artifacts.
//
// Wire keys and field names are German to stay readable against artifacts
// already on disk. Go identifiers are English.
package entity

import "fmt"

// Type is an entity type, identified by its wire key.
type Type string

const (
	Persons       Type = "personen"
	Organizations Type = "organisationen"
	Projects      Type = "projekte"
	Milestones    Type = "meilensteine"
	Insights      Type = "erkenntnisse"
	Decisions     Type = "entscheidungen"
	Challenges    Type = "herausforderungen"
	Tensions      Type = "spannungen"
	Questions     Type = "fragen"
	Themes        Type = "themen"
)

// All lists every type in artifact order.
var All = []Type{
	Persons, Organizations, Projects, Milestones, Insights,
	Decisions, Challenges, Tensions, Questions, Themes,
}

// Mergeable lists the types that carry records. Themes are plain strings.
var Mergeable = []Type{
	Persons, Organizations, Projects,
	Insights, Decisions, Milestones,
	Challenges, Tensions, Questions,
}

// Status values.
const (
	StatusOpen     = "offen"
	StatusResolved = "gelöst"
	StatusAnswered = "beantwortet"
)

// ParseType resolves a wire key.
func ParseType(s string) (Type, error) {
	for _, t := range All {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// KeyField is the property that identifies a record of this type.
func (t Type) KeyField() string {
	if t == Questions {
		return "text"
	}
	return "name"
}

// HasRecords reports whether items of this type are objects rather than strings.
func (t Type) HasRecords() bool {
	return t != Themes
}

// closedStatus is the terminal status for types that track one.
func (t Type) closedStatus() string {
	switch t {
	case Challenges:
		return StatusResolved
	case Questions:
		return StatusAnswered
	}
	return ""
}
