package completion

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// Payload returns the JSON document inside a model reply: the body of the
// first code fence if there is one, otherwise the text from the first of the
// given opening characters on. Text without either is returned trimmed.
func Payload(text string, openers ...string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, open := range openers {
		if i := strings.Index(text, open); i >= 0 {
			return strings.TrimSpace(text[i:])
		}
	}
	return strings.TrimSpace(text)
}
