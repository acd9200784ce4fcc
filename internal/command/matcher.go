package command

import (
	"path/filepath"
	"strings"
)

// Match is the result of a successful command-table lookup: the topic to
// publish to and the fully-expanded payload.
type Match struct {
	Topic   string
	Payload string
}

// Find scans the compiled table in compilation order and returns the first
// entry whose WildcardPattern matches commandText, case-sensitively, per
// §4.3's "first match wins" rule.
func (t *Table) Find(commandText string) (*Match, bool) {
	for _, e := range t.Entries {
		ok, err := filepath.Match(e.WildcardPattern, commandText)
		if err != nil || !ok {
			continue
		}

		value := extractValue(e.ExtractionPattern, commandText)
		payload := ExpandDatetime(strings.Replace(e.CommandTemplate, "%s", value, 1))

		return &Match{Topic: e.Topic, Payload: payload}, true
	}
	return nil, false
}

// extractValue pulls the spoken value out of commandText using
// extractionPattern, mirroring extract_remaining_after_substring in
// original_source/text_to_command_nuevo.c: if the pattern's last two bytes
// are the literal "%s", the value is everything in commandText following the
// pattern's literal prefix (the text before "%s"). Otherwise falls back to a
// prefix-then-remainder heuristic equivalent to a single sscanf("%s") call.
func extractValue(extractionPattern, commandText string) string {
	const placeholder = "%s"

	if strings.HasSuffix(extractionPattern, placeholder) {
		prefix := strings.TrimSuffix(extractionPattern, placeholder)
		idx := strings.Index(commandText, prefix)
		if idx == -1 {
			return ""
		}
		return strings.TrimSpace(commandText[idx+len(prefix):])
	}

	idx := strings.Index(extractionPattern, placeholder)
	if idx == -1 {
		return ""
	}
	prefix := extractionPattern[:idx]
	pos := strings.Index(commandText, prefix)
	if pos == -1 {
		return ""
	}
	rest := commandText[pos+len(prefix):]
	// sscanf("%s") semantics: stop at the first whitespace run.
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
