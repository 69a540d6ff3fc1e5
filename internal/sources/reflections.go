package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vthunder/distill/internal/sessions"
)

// Document is one authored markdown file.
type Document struct {
	Kind  string `json:"typ"`
	File  string `json:"datei"`
	Title string `json:"titel"`
	Date  string `json:"datum,omitempty"`
	Text  string `json:"text"`
	Chars int    `json:"zeichen"`
}

// Reflections is the parsed reflection directory, as stored in
// stimme_parsed.json.
type Reflections struct {
	Source     string     `json:"quelle"`
	Author     string     `json:"person"`
	Total      int        `json:"dokumente_gesamt"`
	TotalChars int        `json:"zeichen_gesamt"`
	Documents  []Document `json:"documents"`
}

// reflectionDirs maps subdirectories to document kinds, in reading order.
var reflectionDirs = []struct{ dir, kind string }{
	{"reflexionen", "reflexion"},
	{"briefe", "brief"},
	{"geschichte", "geschichte"},
}

// foundationFiles sit at the directory root.
var foundationFiles = []string{"anker.md", "auftrag.md", "manifest.md", "fragen.md"}

var (
	titleRe      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	fileDateRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	headerDateRe = regexp.MustCompile(`\*(\d{1,2})\.\s*(January|February|March|April|May|June|July|August|September|October|November|December|Januar|Februar|März|Mai|Juni|Juli|Oktober|Dezember)\s+(\d{4})`)
)

var months = map[string]string{
	"January": "01", "February": "02", "March": "03", "April": "04",
	"May": "05", "June": "06", "July": "07", "August": "08",
	"September": "09", "October": "10", "November": "11", "December": "12",
	"Januar": "01", "Februar": "02", "März": "03",
	"Mai": "05", "Juni": "06", "Juli": "07",
	"Oktober": "10", "Dezember": "12",
}

// ParseReflectionsDir reads the reflection, letter and history
// subdirectories plus the foundation documents at the root.
func ParseReflectionsDir(root, author string) (*Reflections, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	base := filepath.Base(filepath.Clean(root))

	out := &Reflections{Source: ReflectionsLabel, Author: author}
	for _, d := range reflectionDirs {
		files, err := filepath.Glob(filepath.Join(root, d.dir, "*.md"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, path := range files {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			name := filepath.Base(path)
			text := string(content)
			date := dateFromFilename(name)
			if date == "" {
				date = dateFromHeader(text)
			}
			out.add(Document{
				Kind:  d.kind,
				File:  filepath.ToSlash(filepath.Join(base, d.dir, name)),
				Title: titleOr(text, strings.TrimSuffix(name, ".md")),
				Date:  date,
				Text:  text,
			})
		}
	}

	for _, name := range foundationFiles {
		content, err := os.ReadFile(filepath.Join(root, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		text := string(content)
		out.add(Document{
			Kind:  "grundlage",
			File:  filepath.ToSlash(filepath.Join(base, name)),
			Title: titleOr(text, strings.TrimSuffix(name, ".md")),
			Text:  text,
		})
	}
	return out, nil
}

func (r *Reflections) add(d Document) {
	d.Chars = utf8.RuneCountInString(d.Text)
	r.Documents = append(r.Documents, d)
	r.Total++
	r.TotalChars += d.Chars
}

func titleOr(text, fallback string) string {
	if m := titleRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return fallback
}

func dateFromFilename(name string) string {
	if m := fileDateRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// dateFromHeader finds "*12. February 2026, 20:01 Uhr*" style headers.
func dateFromHeader(text string) string {
	m := headerDateRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	day := m[1]
	if len(day) == 1 {
		day = "0" + day
	}
	return fmt.Sprintf("%s-%s-%s", m[3], months[m[2]], day)
}

// LoadReflections reads stimme_parsed.json as a transcript in which every
// document is one message by the author.
func LoadReflections(path string) (*sessions.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var refl Reflections
	if err := json.Unmarshal(data, &refl); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	author := refl.Author
	if author == "" {
		author = "eli"
	}

	msgs := make([]sessions.Message, 0, len(refl.Documents))
	for _, d := range refl.Documents {
		header := d.Kind + ": " + d.Title
		if d.Date != "" {
			header += " (" + d.Date + ")"
		}
		msgs = append(msgs, sessions.Message{
			Role:      author,
			Text:      "[" + header + "]\n\n" + d.Text,
			Timestamp: d.Date,
		})
	}
	return &sessions.Transcript{
		ID:       ReflectionsLabel,
		Title:    "reflections",
		Source:   ReflectionsLabel,
		Describe: fmt.Sprintf("%s (reflections, letters and foundation documents written by %s)", ReflectionsLabel, author),
		Messages: msgs,
		DocCount: len(msgs),
	}, nil
}
