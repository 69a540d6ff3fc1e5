// Package sources turns the auxiliary inputs (a group-chat export and a
// directory of authored reflections) into transcripts for extraction.
package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/vthunder/distill/internal/sessions"
)

const (
	ChatLabel        = "telegram"
	ReflectionsLabel = "stimme"
)

// DefaultSenders maps export display names to participant ids. Names not
// listed are lowercased.
var DefaultSenders = map[string]string{
	"Anton ✨":        "anton",
	"Anton":           "anton",
	"Eli":             "eli",
	"Tillmann":        "tillmann",
	"Kuno":            "kuno",
	"Deleted Account": "unbekannt",
}

// minChatText drops reactions, stickers and one-word acknowledgements.
const minChatText = 5

// ChatExport is the parsed form of a group-chat export, as stored in
// telegram_parsed.json.
type ChatExport struct {
	Source   string             `json:"quelle"`
	Group    string             `json:"gruppe"`
	Period   Period             `json:"zeitraum"`
	Total    int                `json:"nachrichten_gesamt"`
	Authors  map[string]int     `json:"autoren"`
	Messages []sessions.Message `json:"messages"`
}

type Period struct {
	From string `json:"von"`
	To   string `json:"bis"`
}

var (
	exportTimeRe = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})\s+(\d{2}):(\d{2}):(\d{2})`)
	senderDateRe = regexp.MustCompile(`\s+\d{2}\.\d{2}\.\d{4}\s+\d{2}:\d{2}:\d{2}$`)
)

// ParseChatExport reads a Telegram Desktop HTML export (messages.html).
// Joined messages inherit the previous sender.
func ParseChatExport(r io.Reader, senders map[string]string) (*ChatExport, error) {
	if senders == nil {
		senders = DefaultSenders
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chat export: %w", err)
	}

	export := &ChatExport{Source: ChatLabel, Authors: map[string]int{}}
	var current string
	for _, msg := range findAll(doc, func(n *html.Node) bool {
		return hasClass(n, "message") && hasClass(n, "default")
	}) {
		if from := findFirst(msg, func(n *html.Node) bool { return hasClass(n, "from_name") }); from != nil {
			current = senderDateRe.ReplaceAllString(strings.TrimSpace(textOf(from)), "")
		}
		if current == "" {
			continue
		}
		body := findFirst(msg, func(n *html.Node) bool { return hasClass(n, "text") })
		if body == nil {
			continue
		}
		text := strings.TrimSpace(textOf(body))
		if utf8.RuneCountInString(text) <= minChatText {
			continue
		}
		var ts string
		if d := findFirst(msg, func(n *html.Node) bool { return hasClass(n, "date") && hasClass(n, "details") }); d != nil {
			ts = convertExportTime(attr(d, "title"))
		}
		role := normalizeSender(current, senders)
		export.Messages = append(export.Messages, sessions.Message{Role: role, Text: text, Timestamp: ts})
		export.Authors[role]++
	}

	export.Total = len(export.Messages)
	export.Period = period(export.Messages)
	export.Group = groupName(export.Authors)
	return export, nil
}

// ParseChatExportFile is ParseChatExport on a file path.
func ParseChatExportFile(path string, senders map[string]string) (*ChatExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseChatExport(f, senders)
}

func normalizeSender(name string, senders map[string]string) string {
	name = strings.TrimSpace(name)
	if id, ok := senders[name]; ok {
		return id
	}
	return strings.ToLower(name)
}

// convertExportTime turns "28.07.2025 01:29:21 UTC+01:00" into
// "2025-07-28T01:29:21". Unknown formats pass through unchanged.
func convertExportTime(s string) string {
	m := exportTimeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return s
	}
	return fmt.Sprintf("%s-%s-%sT%s:%s:%s", m[3], m[2], m[1], m[4], m[5], m[6])
}

func period(msgs []sessions.Message) Period {
	var dates []string
	for _, m := range msgs {
		if len(m.Timestamp) >= 10 {
			dates = append(dates, m.Timestamp[:10])
		}
	}
	if len(dates) == 0 {
		return Period{From: "?", To: "?"}
	}
	sort.Strings(dates)
	return Period{From: dates[0], To: dates[len(dates)-1]}
}

// groupName lists participants by message count, most active first.
func groupName(authors map[string]int) string {
	names := make([]string, 0, len(authors))
	for a := range authors {
		names = append(names, a)
	}
	sort.Slice(names, func(i, j int) bool {
		if authors[names[i]] != authors[names[j]] {
			return authors[names[i]] > authors[names[j]]
		}
		return names[i] < names[j]
	})
	for i, n := range names {
		r, size := utf8.DecodeRuneInString(n)
		names[i] = string(unicode.ToUpper(r)) + n[size:]
	}
	return strings.Join(names, ", ")
}

// LoadChat reads telegram_parsed.json as a transcript.
func LoadChat(path string) (*sessions.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var export ChatExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	describe := ChatLabel
	if export.Group != "" {
		describe = fmt.Sprintf("%s (group chat: %s)", ChatLabel, export.Group)
	}
	return &sessions.Transcript{
		ID:       ChatLabel,
		Title:    "group chat",
		Source:   ChatLabel,
		Describe: describe,
		Messages: export.Messages,
	}, nil
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findAll returns matching nodes in document order without descending into matches.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// findFirst returns the first matching descendant, skipping forwarded and
// quoted blocks that carry their own sender and text.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasClass(c, "forwarded") || hasClass(c, "reply_to") {
			continue
		}
		if match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// textOf renders a node's text, turning <br> into newlines.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
