package extract

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Path is one candidate location of the assistant reply inside a JSON
// document. Name is the human form (choices[0].message.content); expr is the
// equivalent gjson path.
type Path struct {
	Name string
	expr string
}

var flatFields = []string{"message", "reply", "content", "answer", "response", "output_text", "result"}

// candidatePaths is evaluated in order; the first non-blank string wins.
var candidatePaths = buildPaths()

func buildPaths() []Path {
	paths := make([]Path, 0, 2*len(flatFields)+5)
	for _, f := range flatFields {
		paths = append(paths, Path{Name: f, expr: f})
	}
	for _, f := range flatFields {
		paths = append(paths, Path{Name: "data." + f, expr: "data." + f})
	}
	return append(paths,
		Path{Name: "choices[0].message.content", expr: "choices.0.message.content"},
		Path{Name: "output.text", expr: "output.text"},
		Path{Name: "output[0].content", expr: "output.0.content"},
		Path{Name: "outputs[0].content", expr: "outputs.0.content"},
		Path{Name: "results[0].content", expr: "results.0.content"},
	)
}

// Paths returns the candidate paths in priority order.
func Paths() []Path {
	return append([]Path(nil), candidatePaths...)
}

// lookup resolves p against doc. Only strings with visible content count.
func (p Path) lookup(doc []byte) (string, bool) {
	res := gjson.GetBytes(doc, p.expr)
	if res.Type != gjson.String || strings.TrimSpace(res.Str) == "" {
		return "", false
	}
	return res.Str, true
}

// search returns the reply found at the highest-priority path. doc must be
// valid JSON.
func search(doc []byte) (string, bool) {
	for _, p := range candidatePaths {
		if s, ok := p.lookup(doc); ok {
			return s, true
		}
	}
	return "", false
}
