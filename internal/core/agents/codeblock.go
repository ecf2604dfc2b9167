// Package agents holds the single-purpose LLM agents of the chat pipeline:
// the SQL generator and the chart builder.
package agents

import "strings"

const fence = "```"

// ExtractFencedBlock returns the body of the last fenced block tagged lang,
// cut at the first closing fence after it and trimmed. When no such block
// exists the trimmed text is returned as is and ok is false.
func ExtractFencedBlock(text, lang string) (body string, ok bool) {
	open := fence + lang
	i := strings.LastIndex(text, open)
	if i < 0 {
		return strings.TrimSpace(text), false
	}

	rest := text[i+len(open):]
	if j := strings.Index(rest, fence); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}
