package graph

import (
	"fmt"

	"github.com/vthunder/distill/internal/entity"
)

// TaxonomyVersion is written into every backup so snapshots taken under an
// older label set can be told apart.
const TaxonomyVersion = "v2"

// Label is a node label.
type Label string

const (
	LabelPerson       Label = "Person"
	LabelOrganization Label = "Organization"
	LabelProject      Label = "Project"
	LabelTheme        Label = "Theme"
	LabelInsight      Label = "Insight"
	LabelDecision     Label = "Decision"
	LabelMilestone    Label = "Milestone"
	LabelChallenge    Label = "Challenge"
	LabelTension      Label = "Tension"
	LabelQuestion     Label = "Question"
)

// Labels lists every label in import order. Themes go first so that the
// reference edges of every later node find their targets.
var Labels = []Label{
	LabelTheme, LabelPerson, LabelOrganization, LabelProject,
	LabelInsight, LabelDecision, LabelMilestone,
	LabelChallenge, LabelTension, LabelQuestion,
}

// RelType is a relationship type.
type RelType string

const (
	RelKnows          RelType = "KNOWS"
	RelWorksWith      RelType = "WORKS_WITH"
	RelMemberOf       RelType = "MEMBER_OF"
	RelInterestedIn   RelType = "INTERESTED_IN"
	RelFunds          RelType = "FUNDS"
	RelHasTheme       RelType = "HAS_THEME"
	RelWorksOn        RelType = "WORKS_ON"
	RelBelongsTo      RelType = "BELONGS_TO"
	RelRecognizedBy   RelType = "RECOGNIZED_BY"
	RelDecidedBy      RelType = "DECIDED_BY"
	RelAchievedBy     RelType = "ACHIEVED_BY"
	RelConcernsPerson RelType = "CONCERNS_PERSON"
	RelConcernsTheme  RelType = "CONCERNS_THEME"
	RelInProject      RelType = "IN_PROJECT"
	RelBetween        RelType = "BETWEEN"
)

// Relation is one allowed (from, type, to) combination.
type Relation struct {
	From Label   `json:"from_label"`
	Type RelType `json:"type"`
	To   Label   `json:"to_label"`
}

func (r Relation) String() string {
	return fmt.Sprintf("(%s)-[%s]->(%s)", r.From, r.Type, r.To)
}

func rel(from Label, t RelType, to Label) Relation {
	return Relation{From: from, Type: t, To: to}
}

// Relations is the closed set of relationships the builder may create.
// Backends prepare one statement per entry and refuse anything else.
var Relations = []Relation{
	rel(LabelPerson, RelKnows, LabelPerson),
	rel(LabelPerson, RelWorksWith, LabelPerson),
	rel(LabelPerson, RelMemberOf, LabelOrganization),
	rel(LabelPerson, RelInterestedIn, LabelTheme),
	rel(LabelPerson, RelWorksOn, LabelProject),
	rel(LabelOrganization, RelFunds, LabelProject),
	rel(LabelOrganization, RelHasTheme, LabelTheme),
	rel(LabelProject, RelBelongsTo, LabelOrganization),
	rel(LabelProject, RelHasTheme, LabelTheme),

	rel(LabelInsight, RelRecognizedBy, LabelPerson),
	rel(LabelDecision, RelDecidedBy, LabelPerson),
	rel(LabelMilestone, RelAchievedBy, LabelPerson),
	rel(LabelChallenge, RelConcernsPerson, LabelPerson),
	rel(LabelQuestion, RelConcernsPerson, LabelPerson),
	rel(LabelTension, RelBetween, LabelPerson),

	rel(LabelInsight, RelConcernsTheme, LabelTheme),
	rel(LabelDecision, RelConcernsTheme, LabelTheme),
	rel(LabelMilestone, RelConcernsTheme, LabelTheme),
	rel(LabelChallenge, RelConcernsTheme, LabelTheme),
	rel(LabelQuestion, RelConcernsTheme, LabelTheme),
	rel(LabelTension, RelConcernsTheme, LabelTheme),

	rel(LabelDecision, RelInProject, LabelProject),
	rel(LabelMilestone, RelInProject, LabelProject),
	rel(LabelChallenge, RelInProject, LabelProject),
	rel(LabelQuestion, RelInProject, LabelProject),
}

var (
	knownLabels    = map[Label]bool{}
	knownRelations = map[Relation]bool{}
)

func init() {
	for _, l := range Labels {
		knownLabels[l] = true
	}
	for _, r := range Relations {
		knownRelations[r] = true
	}
}

// Valid reports whether l is part of the taxonomy.
func (l Label) Valid() bool { return knownLabels[l] }

// Valid reports whether r is part of the taxonomy.
func (r Relation) Valid() bool { return knownRelations[r] }

// KeyProp is the unique property identifying a node with this label.
func (l Label) KeyProp() string {
	if l == LabelQuestion {
		return "text"
	}
	return "name"
}

var labelsByType = map[entity.Type]Label{
	entity.Persons:       LabelPerson,
	entity.Organizations: LabelOrganization,
	entity.Projects:      LabelProject,
	entity.Themes:        LabelTheme,
	entity.Insights:      LabelInsight,
	entity.Decisions:     LabelDecision,
	entity.Milestones:    LabelMilestone,
	entity.Challenges:    LabelChallenge,
	entity.Tensions:      LabelTension,
	entity.Questions:     LabelQuestion,
}

// LabelFor maps an entity type to its node label.
func LabelFor(t entity.Type) Label {
	return labelsByType[t]
}

// TypeFor is the inverse of LabelFor.
func TypeFor(l Label) (entity.Type, bool) {
	for t, lbl := range labelsByType {
		if lbl == l {
			return t, true
		}
	}
	return "", false
}
