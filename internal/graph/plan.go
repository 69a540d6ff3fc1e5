package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vthunder/distill/internal/entity"
	"github.com/vthunder/distill/internal/logging"
)

// Merged is the content of the merged/ directory.
type Merged struct {
	Records map[entity.Type][]entity.Entity
	Themes  []string
}

// LoadMerged reads every canonical collection in dir. A missing type file
// counts as empty; a missing dir is an error.
func LoadMerged(dir string) (*Merged, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%s not found (run merge first): %w", dir, err)
	}
	m := &Merged{Records: map[entity.Type][]entity.Entity{}}
	for _, t := range entity.Mergeable {
		recs, skipped, err := entity.ReadRecords(t, filepath.Join(dir, string(t)+".json"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			logging.Warn("graph", "%s: %d invalid records ignored", t, skipped)
		}
		m.Records[t] = recs
	}
	themes, err := entity.ReadThemes(filepath.Join(dir, string(entity.Themes)+".json"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	m.Themes = themes
	return m, nil
}

// edgeFields become relationships and are kept out of node properties.
var edgeFields = map[string]bool{
	"kennt":             true,
	"arbeitet_mit":      true,
	"mitglied_von":      true,
	"interessiert_an":   true,
	"foerdert":          true,
	"mitglieder":        true,
	"personen":          true,
	"gefoerdert_von":    true,
	"gehoert_zu":        true,
	"projekt":           true,
	"zwischen_personen": true,
	"themen":            true,
	"_quelle":           true,
}

// personRel is the relationship from a content node to the people it names.
var personRel = map[entity.Type]RelType{
	entity.Insights:   RelRecognizedBy,
	entity.Decisions:  RelDecidedBy,
	entity.Milestones: RelAchievedBy,
	entity.Challenges: RelConcernsPerson,
	entity.Questions:  RelConcernsPerson,
	entity.Tensions:   RelBetween,
}

// Plan is the full set of writes for one rebuild.
type Plan struct {
	Nodes []Node
	Edges []EdgeSpec
}

// NodeCounts returns the planned nodes per label.
func (p *Plan) NodeCounts() map[Label]int {
	counts := map[Label]int{}
	for _, n := range p.Nodes {
		counts[n.Label]++
	}
	return counts
}

type planner struct {
	plan      Plan
	nodeIndex map[Label]map[string]int
	edgeSeen  map[EdgeSpec]bool
}

// BuildPlan derives nodes and relationships from the merged collections.
// The result depends only on m: nodes follow Labels order, then file order.
func BuildPlan(m *Merged) *Plan {
	p := &planner{nodeIndex: map[Label]map[string]int{}, edgeSeen: map[EdgeSpec]bool{}}

	for _, th := range m.Themes {
		p.node(LabelTheme, th, map[string]any{"name": th})
	}
	for _, l := range Labels {
		t, _ := TypeFor(l)
		if t == entity.Themes {
			continue
		}
		for _, e := range m.Records[t] {
			p.node(l, e.Key(t), properties(e))
		}
	}

	for _, e := range m.Records[entity.Persons] {
		p.edges(LabelPerson, e.Name, RelKnows, LabelPerson, e.Knows)
		p.edges(LabelPerson, e.Name, RelWorksWith, LabelPerson, e.WorksWith)
		p.edges(LabelPerson, e.Name, RelMemberOf, LabelOrganization, e.MemberOf)
		p.edges(LabelPerson, e.Name, RelInterestedIn, LabelTheme, e.InterestedIn)
	}
	for _, e := range m.Records[entity.Organizations] {
		p.edges(LabelOrganization, e.Name, RelFunds, LabelProject, e.Funds)
		p.edges(LabelOrganization, e.Name, RelHasTheme, LabelTheme, e.Themes)
		p.reverse(LabelPerson, e.Members, RelMemberOf, LabelOrganization, e.Name)
	}
	for _, e := range m.Records[entity.Projects] {
		p.reverse(LabelPerson, e.People, RelWorksOn, LabelProject, e.Name)
		p.reverse(LabelOrganization, e.FundedBy, RelFunds, LabelProject, e.Name)
		p.edges(LabelProject, e.Name, RelBelongsTo, LabelOrganization, e.BelongsTo)
		p.edges(LabelProject, e.Name, RelHasTheme, LabelTheme, e.Themes)
	}
	for _, t := range []entity.Type{entity.Insights, entity.Decisions, entity.Milestones, entity.Challenges, entity.Questions, entity.Tensions} {
		l := LabelFor(t)
		for _, e := range m.Records[t] {
			key := e.Key(t)
			people := e.People
			if t == entity.Tensions {
				people = e.BetweenPeople
			}
			p.edges(l, key, personRel[t], LabelPerson, people)
			p.edges(l, key, RelConcernsTheme, LabelTheme, e.Themes)
			if len(e.Project) > 0 {
				p.edges(l, key, RelInProject, LabelProject, e.Project)
			}
		}
	}
	return &p.plan
}

func (p *planner) node(l Label, key string, props map[string]any) {
	if key == "" {
		return
	}
	idx, ok := p.nodeIndex[l]
	if !ok {
		idx = map[string]int{}
		p.nodeIndex[l] = idx
	}
	if i, dup := idx[key]; dup {
		for k, v := range props {
			p.plan.Nodes[i].Props[k] = v
		}
		return
	}
	idx[key] = len(p.plan.Nodes)
	p.plan.Nodes = append(p.plan.Nodes, Node{Label: l, Key: key, Props: props})
}

func (p *planner) edges(from Label, fromKey string, t RelType, to Label, targets []string) {
	for _, target := range targets {
		p.edge(EdgeSpec{Relation: rel(from, t, to), FromKey: fromKey, ToKey: target})
	}
}

func (p *planner) reverse(from Label, sources []string, t RelType, to Label, toKey string) {
	for _, src := range sources {
		p.edge(EdgeSpec{Relation: rel(from, t, to), FromKey: src, ToKey: toKey})
	}
}

func (p *planner) edge(e EdgeSpec) {
	if e.FromKey == "" || e.ToKey == "" || p.edgeSeen[e] {
		return
	}
	if !e.Relation.Valid() {
		logging.Warn("graph", "skipping %s: %v", e, ErrUnknownRelation)
		return
	}
	p.edgeSeen[e] = true
	p.plan.Edges = append(p.plan.Edges, e)
}

// properties returns the node properties of e: every populated field that
// is not turned into a relationship, provenance included.
func properties(e entity.Entity) map[string]any {
	props := e.Fields()
	for k := range props {
		if edgeFields[k] {
			delete(props, k)
		}
	}
	return props
}
