package normalize

import (
	"strings"

	"github.com/vthunder/distill/internal/entity"
)

// keyKind is the alias table used for the key of each named type. Other
// types only get their key trimmed and lowercased.
var keyKind = map[entity.Type]Kind{
	entity.Persons:       KindPerson,
	entity.Organizations: KindOrganization,
	entity.Projects:      KindProject,
}

// Entity normalizes one record of type t. ok is false when the record's key
// maps to the drop marker.
func (tb *Table) Entity(t entity.Type, e entity.Entity) (entity.Entity, bool) {
	switch {
	case t == entity.Questions:
		e.Text = strings.TrimSpace(e.Text)
		if e.Text == "" {
			return e, false
		}
	case keyKind[t] != "":
		name, ok := tb.Name(keyKind[t], e.Name)
		if !ok {
			return e, false
		}
		e.Name = name
	default:
		e.Name = clean(e.Name)
		if e.Name == "" {
			return e, false
		}
	}

	e.People = tb.PersonList(e.People)
	e.Knows = tb.PersonList(e.Knows)
	e.WorksWith = tb.PersonList(e.WorksWith)
	e.BetweenPeople = tb.PersonList(e.BetweenPeople)
	e.Members = tb.PersonList(e.Members)
	e.Commissioned = tb.PersonList(e.Commissioned)

	e.MemberOf = tb.List(KindOrganization, e.MemberOf)
	e.FundedBy = tb.List(KindOrganization, e.FundedBy)
	e.BelongsTo = tb.List(KindOrganization, e.BelongsTo)

	e.Project = tb.List(KindProject, e.Project)
	e.Funds = tb.List(KindProject, e.Funds)

	e.Themes = Themes(e.Themes)
	e.InterestedIn = Themes(e.InterestedIn)
	return e, true
}

// Themes lowercases and trims free-text labels and drops empty and repeated
// ones. Themes are never alias-mapped.
func Themes(items []string) []string {
	var out []string
	seen := make(map[string]bool, len(items))
	for _, s := range items {
		if c := clean(s); c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
