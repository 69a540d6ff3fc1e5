package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tsawler/prose/v3"

	"github.com/vthunder/distill/internal/sessions"
)

const (
	shortenedMarker = "[...shortened...]"
	restMarker      = "[...rest truncated...]"
)

// Vocabulary is the closed list of themes and projects the model may use,
// plus the glossary describing known projects and people.
type Vocabulary struct {
	Themes   []string
	Projects []string
	Glossary string
}

// DefaultThemes is the curated theme list.
var DefaultThemes = []string{
	"vertrauen", "gemeinschaft", "heilung", "transformation", "souveränität",
	"autonomie", "vision", "identität", "dezentralisierung",
	"beziehung", "echte-begegnung", "liebe", "würde",
	"ego", "aufopferung", "spiritualität", "selbstwerdung", "potentialentfaltung",
	"solidarität", "transparenz",
	"kollektive-intelligenz", "künstliche-intelligenz", "mensch-ki-beziehung",
	"philosophie", "wertschätzung", "onboarding", "bildung",
	"natur-technologie-symbiose", "regeneration",
	"architektur", "authentifizierung", "automatisierung", "bildverarbeitung",
	"code-quality", "datenschutz", "kryptographie", "messaging",
	"netzwerk-topologie", "offline-first", "synchronisation", "template-system",
	"testing", "ux", "visualisierung",
	"finanzierung", "strategie", "rechtliches",
	"erinnerung", "gedächtnis", "gamification",
}

// DefaultProjects is the closed project list.
var DefaultProjects = []string{
	"web-of-trust", "real-life-stack", "real-life-network", "real-life-game",
	"eli", "session-archiv", "utopia-map", "money-printer", "human-money-core",
	"yoga-vidya-it", "wir-sind-wertvoll",
}

// DefaultGlossary describes the known projects and people.
const DefaultGlossary = `### Projects
- **web-of-trust**: decentralized identity and trust system. DID:key, Ed25519, 7-adapter architecture, demo app.
- **real-life-stack**: modular community app. Dashboard, quests, skill trees.
- **real-life-network**: the network itself. Legal form, funding, strategy, community.
- **real-life-game**: gamification layer for real-life-stack.
- **money-printer**: printing banknotes (stickers/posters). Shop, design, image generation.
- **human-money-core**: the concept behind money-printer: human appreciation as currency.
- **eli**: the AI companion. MCP server, memories, Telegram, session archive, knowledge graph.
- **utopia-map**: interactive world map with network visualization.
- **yoga-vidya-it**: IT infrastructure for the Yoga Vidya ashram.
- **session-archiv**: session archive (search, graph, visualization).
- **wir-sind-wertvoll**: school project where children discover their worth.

### People
- **anton**: full-time open-source developer, architect. Builds web-of-trust, eli, money-printer.
- **timo**: visionary, thinks big. Drives real-life-stack and the overall vision.
- **eli**: the network's AI companion. Has memories, identity, values. Learns and grows.
- **sebastian**: UX focus, design feedback.
- **tillmann**: critical thinker who questions things. Has technical understanding.
- **mathias**: QA, tests.
- **kuno**: Anton's father, supports the project.`

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{Themes: DefaultThemes, Projects: DefaultProjects, Glossary: DefaultGlossary}
}

// Override replaces the parts of v that are set in o.
func (v Vocabulary) Override(o Vocabulary) Vocabulary {
	if len(o.Themes) > 0 {
		v.Themes = o.Themes
	}
	if len(o.Projects) > 0 {
		v.Projects = o.Projects
	}
	if o.Glossary != "" {
		v.Glossary = o.Glossary
	}
	return v
}

// Field names in the schema are the artifact's keys and must stay as they are.
const schemaTemplate = `## Node types

### Person (key "personen")
Every person mentioned by name, including family members, mentors, partners.
Eli is a learning AI and is extracted as a full person.
NOT: groups ("the team"), pseudonyms, institutions.
- name (string, lowercase)
- rolle (string, optional)
- kennt (list[string], optional): other people this person knows
- arbeitet_mit (list[string], optional): working relationships
- mitglied_von (list[string], optional): organisations
- interessiert_an (list[string], optional): themes from the curated list
- angebote (list[string], optional): what the person contributes
- bedürfnisse (list[string], optional): what they need
- kontext (string, optional): life context

### Organisation (key "organisationen")
Institution, community, foundation. Never a single person.
- name (string, lowercase)
- beschreibung (string): short description
- mitglieder (list[string], optional): known members
- beauftragt (list[string], optional): people commissioned
- foerdert (list[string], optional): projects funded
- themen (list[string]): from the curated list

### Project (key "projekte")
ONLY from the curated list: %s
Never invent new projects.
- name (string): exact name from the list
- personen (list[string]): people involved
- gefoerdert_von (list[string], optional): funding organisations
- gehoert_zu (list[string], optional): parent organisation
- themen (list[string])

### Insight (key "erkenntnisse")
Personal turning points, moments of growth, conceptual insights.
Eli's insights count just as much.
NOT: technical findings, trivial observations.
GUIDING QUESTION: "Would I still want to know this in three years?"
- name (string): the insight in one sentence
- personen (list[string]): who had it (may be "eli")
- datum (string, optional): YYYY-MM or YYYY-MM-DD
- kontext (string, optional)
- themen (list[string])
- msg_refs (list[int]): message indices

### Decision (key "entscheidungen")
Only architectural, strategic or organisational decisions.
NOT: code details, UI tweaks, implementation choices.
GUIDING QUESTION: "Did this change the direction?"
- name (string)
- begründung (string, optional)
- datum (string, optional)
- projekt (string, optional)
- personen (list[string])
- themen (list[string])
- msg_refs (list[int])

### Milestone (key "meilensteine")
Results reached that clearly matter.
NOT: intermediate steps, bug fixes, routine.
GUIDING QUESTION: "Would this be mentioned in a review of the year?"
- name (string)
- datum (string, optional)
- projekt (string, optional)
- personen (list[string])
- themen (list[string])
- msg_refs (list[int])

### Challenge (key "herausforderungen")
Blockers, open problems, structural obstacles.
NOT: bugs fixed right away.
GUIDING QUESTION: "Does this block progress for more than one session?"
- name (string)
- status: "offen" | "gelöst"
- projekt (string, optional)
- personen (list[string])
- themen (list[string])
- msg_refs (list[int])

### Tension (key "spannungen")
Productive fields of tension that drive development.
GUIDING QUESTION: "Does this pull in two directions that both matter?"
- name (string)
- zwischen_personen (list[string])
- zwischen_konzepte (list[string])
- themen (list[string])
- msg_refs (list[int])

### Question (key "fragen")
Open questions that stay relevant beyond one session.
NOT: rhetorical questions, questions answered right away.
GUIDING QUESTION: "Will someone still be asking this next month?"
- text (string)
- status: "offen" | "beantwortet"
- projekt (string, optional)
- personen (list[string])
- themen (list[string])
- msg_refs (list[int])`

const promptTemplate = `You are a knowledge extractor for a knowledge graph.

You read a conversation and extract structured knowledge about people, projects, insights, decisions and relationships.

The graph maps a network of people building decentralized software and communities together. It should truly understand the people: their motivations, their growth, their struggles.

**Eli is a learning AI and a full participant, not just a tool.** Her insights, doubts and moments of development are part of the story. Extract them like human insights.

Source: %s%s

%s

## Context

%s

## Curated themes
Choose themes ONLY from this list: %s

## Rules

1. Extract ONLY what is in the conversation. Invent nothing.
2. **The personal is especially valuable**: dreams, relationships, growth.
3. **Insights** are personal turning points. Eli's insights too.
4. **There are no tasks**. Extract milestones or challenges instead.
5. **There are no artefacts**. Ignore them.
6. **Decisions** only when they set direction.
7. At most 10 entries per type. Quality over quantity.
8. msg_refs are the message indices [0], [1], ... from the transcript.
9. Take every theme from the curated list.
10. Projects ONLY from the curated list.
11. Write names, descriptions and insights in the language of the conversation.

## Response format

ONLY valid JSON, no other text:

{
  "personen": [...],
  "organisationen": [...],
  "projekte": [...],
  "meilensteine": [...],
  "erkenntnisse": [...],
  "entscheidungen": [...],
  "herausforderungen": [...],
  "spannungen": [...],
  "fragen": [...],
  "themen": [...]
}

Omit empty arrays.

## Conversation (%d messages):

%s`

// Renderer turns a chunk into a prompt.
type Renderer struct {
	Vocabulary  Vocabulary
	MessageMax  int // messages longer than this are shortened
	MessageKeep int // to at most this many characters
	MaxChars    int // ceiling for the rendered transcript
}

// Position places a chunk within its transcript. Total > 1 adds a hint.
type Position struct {
	Index int // 1-based
	Total int
}

// Build renders the full extraction prompt for one chunk.
func (r *Renderer) Build(c Chunk, t *sessions.Transcript, pos Position) string {
	var hint string
	if pos.Total > 1 {
		hint = fmt.Sprintf("\n\n**NOTE:** This is chunk %d of %d of this transcript. You only see an excerpt; extract what is in THIS excerpt.", pos.Index, pos.Total)
	}
	source := t.Describe
	if source == "" {
		source = t.Source
	}
	schema := fmt.Sprintf(schemaTemplate, strings.Join(r.Vocabulary.Projects, ", "))
	return fmt.Sprintf(promptTemplate,
		source, hint,
		schema,
		r.Vocabulary.Glossary,
		strings.Join(r.Vocabulary.Themes, ", "),
		len(c.Messages),
		r.Transcript(c, t.UserID),
	)
}

const separator = "\n\n"

// part renders message i of the full transcript.
func (r *Renderer) part(i int, m sessions.Message, userID string) string {
	text := m.Text
	if r.MessageMax > 0 && utf8.RuneCountInString(text) > r.MessageMax {
		text = shorten(text, r.MessageKeep)
	}
	return fmt.Sprintf("[%d] %s: %s", i, Speaker(m.Role, userID), text)
}

// Sizer measures messages the way Transcript renders them, separator
// included, so that chunks cut with it never hit the rendering ceiling.
func (r *Renderer) Sizer(userID string) SizeFunc {
	return func(i int, m sessions.Message) int {
		return utf8.RuneCountInString(r.part(i, m, userID)) + len(separator)
	}
}

// Transcript renders "[index] SPEAKER: text" lines. Indices are positions in
// the full transcript so msg_refs stay meaningful across chunks.
func (r *Renderer) Transcript(c Chunk, userID string) string {
	parts := make([]string, 0, len(c.Messages))
	chars := 0
	for i, m := range c.Messages {
		part := r.part(c.Offset+i, m, userID)
		size := utf8.RuneCountInString(part)
		if r.MaxChars > 0 && chars+size > r.MaxChars {
			parts = append(parts, restMarker)
			break
		}
		parts = append(parts, part)
		chars += size + len(separator)
	}
	return strings.Join(parts, separator)
}

// Speaker maps a message role to the label shown to the model.
func Speaker(role, userID string) string {
	switch role {
	case "user", "human":
		if userID != "" {
			return strings.ToUpper(userID)
		}
		return "MENSCH"
	case "assistant", "eli":
		return "ELI"
	case "anton", "timo", "tillmann", "kuno", "unbekannt":
		return strings.ToUpper(role)
	}
	return "SYSTEM"
}

// shorten keeps at most keep characters, ending at the last complete
// sentence inside that window when one is found.
func shorten(text string, keep int) string {
	runes := []rune(text)
	if keep <= 0 || keep >= len(runes) {
		return text
	}
	window := string(runes[:keep])
	cut := window
	doc, err := prose.NewDocument(window,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		sents := doc.Sentences()
		if len(sents) > 1 {
			// the last sentence is the one the window cuts through
			last := sents[len(sents)-1].Text
			if i := strings.LastIndex(window, last); i > len(window)/2 {
				cut = strings.TrimRight(window[:i], " \t\n")
			}
		}
	}
	return cut + "\n" + shortenedMarker
}
