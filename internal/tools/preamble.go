// Package tools - preamble.go renders the system message that teaches the
// model which keywords are available.
package tools

import "strings"

const preambleHeader = "There is (are) backend keyword(s) below you can use to access real world.\n" +
	"Put keyword as first word in reply to receive real world information\n" +
	"Prepend keyword with any words or symbols to send it to user.\n"

const preambleTerminator = "List of keywords is ended.\n\n"

// BuildPreamble renders the system tool-preamble: header, one instruction
// block per command with ${KEYWORD} substituted, and a terminator line.
func BuildPreamble(r *Registry) string {
	var b strings.Builder
	b.WriteString(preambleHeader)
	b.WriteString("\n\n")
	for _, c := range r.Commands() {
		b.WriteString(strings.ReplaceAll(c.Instruction, "${KEYWORD}", c.Keyword))
		b.WriteString("\n\n")
	}
	b.WriteString(preambleTerminator)
	return b.String()
}
