package extract

import (
	"strings"

	"github.com/tidwall/gjson"
)

const eventDataPrefix = "data:"

// fromText handles text/plain and text/event-stream bodies. Lines are scanned
// last to first so the final event wins; if no line carries a usable JSON
// reply the text is returned untouched.
func fromText(text string) string {
	lines := payloadLines(text)
	for i := len(lines) - 1; i >= 0; i-- {
		if s, ok := fromLine(lines[i]); ok {
			return s
		}
	}
	return text
}

func payloadLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(l, eventDataPrefix); ok {
			l = strings.TrimSpace(rest)
		}
		lines = append(lines, l)
	}
	return lines
}

func fromLine(line string) (string, bool) {
	if !gjson.Valid(line) {
		return "", false
	}
	return search([]byte(line))
}
