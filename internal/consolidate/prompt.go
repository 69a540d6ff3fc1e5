package consolidate

import (
	"encoding/json"
	"fmt"

	"github.com/vthunder/distill/internal/entity"
)

// hintKey marks the optional trailing element in which the model reports
// duplicates and aliases it noticed.
const hintKey = "_duplikate_hinweis"

// policies are the per-type merge instructions.
var policies = map[entity.Type]string{
	entity.Persons: `Merge all entries with the same name into ONE rich profile.
Combine: rolle, kennt, arbeitet_mit, mitglied_von, interessiert_an, angebote, bedürfnisse, kontext.
session_ids: union of all session_ids.
On conflicting information prefer the newer one (later session_ids are newer).
Remove duplicates within lists.`,

	entity.Organizations: `Merge all entries with the same name into ONE complete profile.
Combine: beschreibung (keep the best version), mitglieder, beauftragt, foerdert, themen.
session_ids: union.`,

	entity.Projects: `Merge all entries with the same project name.
Combine: personen, gefoerdert_von, gehoert_zu, themen.
session_ids: union.`,

	entity.Insights: `Deduplicate insights that mean the same thing.
Two insights are "the same" when they describe the same realisation, even in different words.
Keep the richer wording. Combine msg_refs and session_ids.
Do NOT merge insights that sound alike but describe different situations.`,

	entity.Decisions: `Deduplicate identical decisions.
Identical = the same decision in the same project. Combine begründung, msg_refs, session_ids.`,

	entity.Milestones: `Deduplicate identical milestones.
Identical = the same result in the same project. Combine msg_refs, session_ids.`,

	entity.Challenges: `Deduplicate identical challenges.
If a challenge is "offen" in one session and "gelöst" in a later one, the status is "gelöst".
Combine msg_refs, session_ids.`,

	entity.Tensions: `Deduplicate tensions that mean the same thing.
Identical = the same field of tension between the same poles.
Combine msg_refs, session_ids.`,

	entity.Questions: `Deduplicate questions that mean the same thing.
If a question was answered in a later session, the status is "beantwortet".
Combine msg_refs, session_ids.`,
}

const mergeTemplate = `You merge data for a knowledge graph.

**Task:** %s

**Important:**
- Return ONLY a JSON array, no explanation.
- Remove the _quelle field from the results.
- Keep every other field.
- Never invent entries; only merge what is there.
- At the end, report duplicates or aliases you noticed as a final element with the key "%s".

**Type:** %s
**Entries:** %d

` + "```json\n%s\n```" + `

Answer ONLY with the merged JSON array:`

// buildPrompt renders the merge request for one batch.
func buildPrompt(t entity.Type, batch []entity.Entity) (string, error) {
	data, err := json.MarshalIndent(batch, "", " ")
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	policy, ok := policies[t]
	if !ok {
		policy = "Deduplicate and merge identical entries."
	}
	return fmt.Sprintf(mergeTemplate, policy, hintKey, t, len(batch), data), nil
}
