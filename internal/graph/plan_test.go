package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/distill/internal/entity"
)

func edgeSet(p *Plan) map[string]bool {
	set := map[string]bool{}
	for _, e := range p.Edges {
		set[e.String()] = true
	}
	return set
}

func TestBuildPlanReversesReferences(t *testing.T) {
	m := &Merged{
		Records: map[entity.Type][]entity.Entity{
			entity.Organizations: {{Name: "yoga vidya", Members: []string{"timo"}}},
			entity.Projects:      {{Name: "web-of-trust", People: []string{"anton"}, FundedBy: []string{"yoga vidya"}}},
		},
	}
	edges := edgeSet(BuildPlan(m))

	assert.True(t, edges[`(Person "timo")-[MEMBER_OF]->(Organization "yoga vidya")`])
	assert.True(t, edges[`(Person "anton")-[WORKS_ON]->(Project "web-of-trust")`])
	assert.True(t, edges[`(Organization "yoga vidya")-[FUNDS]->(Project "web-of-trust")`])
}

func TestBuildPlanContentEdges(t *testing.T) {
	m := &Merged{
		Records: map[entity.Type][]entity.Entity{
			entity.Tensions:  {{Name: "nähe vs. distanz", BetweenPeople: []string{"anton", "timo"}, Themes: []string{"vertrauen"}}},
			entity.Questions: {{Text: "wie finanzieren wir das?", People: []string{"anton"}, Project: entity.OneOrMany{"web-of-trust"}}},
			entity.Decisions: {{Name: "monatliches treffen", People: []string{"kuno"}}},
		},
		Themes: []string{"vertrauen"},
	}
	p := BuildPlan(m)
	edges := edgeSet(p)

	assert.True(t, edges[`(Tension "nähe vs. distanz")-[BETWEEN]->(Person "anton")`])
	assert.True(t, edges[`(Tension "nähe vs. distanz")-[CONCERNS_THEME]->(Theme "vertrauen")`])
	assert.True(t, edges[`(Question "wie finanzieren wir das?")-[CONCERNS_PERSON]->(Person "anton")`])
	assert.True(t, edges[`(Question "wie finanzieren wir das?")-[IN_PROJECT]->(Project "web-of-trust")`])
	assert.True(t, edges[`(Decision "monatliches treffen")-[DECIDED_BY]->(Person "kuno")`])
	assert.Len(t, p.Edges, 5)

	counts := p.NodeCounts()
	assert.Equal(t, 1, counts[LabelTheme])
	assert.Equal(t, 1, counts[LabelQuestion])
}

func TestBuildPlanProperties(t *testing.T) {
	m := &Merged{
		Records: map[entity.Type][]entity.Entity{
			entity.Persons: {
				{Name: "anton", Role: "gründer", Knows: []string{"timo"}, Offers: []string{"yoga"}, SessionIDs: []string{"a1"}},
				{Name: "anton", Context: "später ergänzt"},
			},
			entity.Insights: {{Name: "vertrauen braucht zeit", People: []string{"timo"}, MsgRefs: []int{3, 9}}},
		},
	}
	p := BuildPlan(m)
	require.Len(t, p.Nodes, 2, "duplicate keys collapse into one node")

	anton := p.Nodes[0]
	assert.Equal(t, LabelPerson, anton.Label)
	assert.Equal(t, "gründer", anton.Props["rolle"])
	assert.Equal(t, "später ergänzt", anton.Props["kontext"])
	assert.Equal(t, []string{"yoga"}, anton.Props["angebote"])
	assert.Equal(t, []string{"a1"}, anton.Props["session_ids"])
	assert.NotContains(t, anton.Props, "kennt")

	insight := p.Nodes[1]
	assert.Equal(t, []int{3, 9}, insight.Props["msg_refs"])
	assert.NotContains(t, insight.Props, "personen")
}

func TestTaxonomyClosed(t *testing.T) {
	for _, r := range Relations {
		assert.True(t, r.From.Valid() && r.To.Valid(), "relation %s uses unknown label", r)
	}
	assert.False(t, Relation{From: LabelPerson, Type: "KENNT", To: LabelPerson}.Valid())
	assert.Equal(t, "text", LabelQuestion.KeyProp())
	for _, typ := range entity.All {
		l := LabelFor(typ)
		require.True(t, l.Valid(), "%s has no label", typ)
		back, ok := TypeFor(l)
		assert.True(t, ok)
		assert.Equal(t, typ, back)
	}
}
