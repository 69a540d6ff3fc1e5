package entity

// FoldSameKey collapses records of type t that share an identical key.
// Records are expected oldest first: list fields are unioned in first-seen
// order, later non-empty scalars win, and provenance is unioned. A status
// that reached its terminal value stays there.
func FoldSameKey(t Type, records []Entity) []Entity {
	index := make(map[string]int, len(records))
	out := make([]Entity, 0, len(records))
	for _, r := range records {
		key := r.Key(t)
		if i, ok := index[key]; ok {
			out[i] = Combine(t, out[i], r)
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}

// Combine merges b into a. b is treated as the newer record.
func Combine(t Type, a, b Entity) Entity {
	c := a
	c.Role = newer(a.Role, b.Role)
	c.Description = longer(a.Description, b.Description)
	c.Context = newer(a.Context, b.Context)
	c.Date = newer(a.Date, b.Date)
	c.Rationale = longer(a.Rationale, b.Rationale)
	c.Status = mergeStatus(t, a.Status, b.Status)
	c.Source = first(a.Source, b.Source)

	c.Project = Union(a.Project, b.Project)
	c.Knows = Union(a.Knows, b.Knows)
	c.WorksWith = Union(a.WorksWith, b.WorksWith)
	c.MemberOf = Union(a.MemberOf, b.MemberOf)
	c.InterestedIn = Union(a.InterestedIn, b.InterestedIn)
	c.Offers = Union(a.Offers, b.Offers)
	c.Needs = Union(a.Needs, b.Needs)
	c.Members = Union(a.Members, b.Members)
	c.Commissioned = Union(a.Commissioned, b.Commissioned)
	c.Funds = Union(a.Funds, b.Funds)
	c.People = Union(a.People, b.People)
	c.FundedBy = Union(a.FundedBy, b.FundedBy)
	c.BelongsTo = Union(a.BelongsTo, b.BelongsTo)
	c.BetweenPeople = Union(a.BetweenPeople, b.BetweenPeople)
	c.BetweenConcepts = Union(a.BetweenConcepts, b.BetweenConcepts)
	c.Themes = Union(a.Themes, b.Themes)

	c.MsgRefs = unionInts(a.MsgRefs, b.MsgRefs)
	c.SessionIDs = Union(a.SessionIDs, b.SessionIDs)
	return c
}

// AddProvenance unions src's provenance into dst.
func AddProvenance(dst *Entity, src Entity) {
	dst.SessionIDs = Union(dst.SessionIDs, src.SessionIDs)
	dst.MsgRefs = unionInts(dst.MsgRefs, src.MsgRefs)
}

// Union appends the items of b missing from a, preserving order.
func Union[S ~[]string](a, b S) S {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make(S, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func unionInts(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, n := range append(append([]int(nil), a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func mergeStatus(t Type, a, b string) string {
	closed := t.closedStatus()
	if closed != "" && (a == closed || b == closed) {
		return closed
	}
	return newer(a, b)
}

func newer(a, b string) string {
	if b != "" {
		return b
	}
	return a
}

func first(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func longer(a, b string) string {
	if len([]rune(b)) > len([]rune(a)) {
		return b
	}
	return a
}
