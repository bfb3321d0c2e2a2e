package dispatch

import (
	"encoding/json"
	"strings"
)

const directiveType = "mcp_tool_call"

// Directive is a tool invocation the model requested via a fenced JSON block.
type Directive struct {
	Type       string         `json:"type"`
	ServerName string         `json:"server_name"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
}

func (d *Directive) valid() bool {
	return d.Type == directiveType && d.ServerName != "" && d.ToolName != ""
}

// directiveScanner accumulates visible model output and extracts directives
// as their fenced blocks close. Token boundaries are arbitrary: a fence or
// JSON body may be split across any number of feeds.
type directiveScanner struct {
	buf strings.Builder
	off int
}

// feed appends delta and returns the directives whose blocks closed, in
// order. Closed blocks are consumed whether or not they parse, so malformed
// or unrelated code blocks are scanned exactly once.
func (s *directiveScanner) feed(delta string) []Directive {
	s.buf.WriteString(delta)

	var out []Directive
	text := s.buf.String()
	for {
		rest := text[s.off:]
		open := strings.Index(rest, "```")
		if open < 0 {
			return out
		}
		body := rest[open+3:]
		closing := strings.Index(body, "```")
		if closing < 0 {
			// Block still streaming.
			return out
		}
		inner := body[:closing]
		s.off += open + 3 + closing + 3

		if d, ok := parseDirective(inner); ok {
			out = append(out, d)
		}
	}
}

// parseDirective strips an optional language tag and tries to decode a
// well-formed directive object.
func parseDirective(inner string) (Directive, bool) {
	inner = strings.TrimSpace(inner)
	if rest, ok := strings.CutPrefix(inner, "json"); ok {
		inner = strings.TrimSpace(rest)
	}
	if !strings.HasPrefix(inner, "{") {
		return Directive{}, false
	}
	var d Directive
	if err := json.Unmarshal([]byte(inner), &d); err != nil {
		return Directive{}, false
	}
	if !d.valid() {
		return Directive{}, false
	}
	return d, true
}
