// Package issueref extracts issue references from time-entry text fields.
//
// The convention is a trailing bracketed token carrying query-string style
// fields, e.g. "review feedback [i=ABC-1&t=Bug]": "i" is the issue id, "t" is
// the optional work-item type name.
package issueref

import (
	"net/url"
	"regexp"
	"strings"
)

// bracketPattern captures the content of the last bracket anchored at the
// end of the string.
var bracketPattern = regexp.MustCompile(`(?:.*?\[(.*?)\].*?)+$`)

// trailingBracket matches a bracket token sitting at the very end of a
// description, so it can be stripped before the text is stored. The match
// runs from the leftmost bracket to the closing one at the end, so any text
// between multiple brackets is stripped along with them.
var trailingBracket = regexp.MustCompile(`\[.*?\]$`)

// Ref is an issue reference resolved from a time entry.
type Ref struct {
	ID   string
	Type string
}

// Extract resolves an issue reference from the description, task name, or
// project name, in that priority order. Only the first field that yields a
// bracket is consulted; lower-priority fields are ignored even when the
// winning bracket carries no "i" field.
//
// The returned description has the bracket suffix stripped when the
// description itself was the winning field. The boolean reports whether any
// bracket matched at all.
func Extract(description, task, project string) (Ref, string, bool) {
	if description != "" {
		if match := bracketPattern.FindStringSubmatch(description); match != nil {
			cleaned := strings.TrimSpace(trailingBracket.ReplaceAllString(description, ""))
			return parsePayload(match[1]), cleaned, true
		}
	}

	if task != "" {
		if match := bracketPattern.FindStringSubmatch(task); match != nil {
			return parsePayload(match[1]), description, true
		}
	}

	if project != "" {
		if match := bracketPattern.FindStringSubmatch(project); match != nil {
			return parsePayload(match[1]), description, true
		}
	}

	return Ref{}, description, false
}

func parsePayload(payload string) Ref {
	// ParseQuery can fail on stray percent signs but still returns what it
	// could parse, which matches the forgiving behavior we want here.
	values, _ := url.ParseQuery(payload)
	return Ref{
		ID:   values.Get("i"),
		Type: values.Get("t"),
	}
}
