// Package tools defines backend tool commands and their registry.
//
// DESIGN: A Command binds a keyword to an instruction for the model and a
// handler. The model invokes a tool by opening its turn with the keyword;
// the handler then classifies the collected turn text and produces either
// a payload to feed back upstream or the original text to hand to the user.
// The registry is built once at startup and read-only afterwards.
package tools

import (
	"fmt"
	"sort"
	"strings"
)

// VerdictKind classifies a handler's decision about collected model text.
type VerdictKind int

const (
	// UserReply: the model was talking to the user, not invoking the tool.
	UserReply VerdictKind = iota
	// ToolRequest: the tool ran; Text is the payload to inject upstream.
	ToolRequest
	// MaybeUserReply: ambiguous. Handled like ToolRequest for now; reserved
	// for future policy.
	MaybeUserReply
)

// Verdict is a handler's tagged result.
type Verdict struct {
	Kind VerdictKind
	Text string
}

// Handler inspects the text a model produced after a keyword match.
// Handlers must be pure and idempotent: the detector may consult them
// repeatedly with growing prefixes of the same turn.
type Handler func(keyword, collected string) Verdict

// Command is one registered backend tool.
type Command struct {
	// Keyword the model emits as the first token of a turn. Non-empty
	// ASCII without whitespace.
	Keyword string
	// Instruction is injected into the system preamble. The literal
	// substring ${KEYWORD} is replaced with Keyword.
	Instruction string
	Handler     Handler
}

// Registry maps keyword to Command. Read-only after construction.
type Registry struct {
	commands map[string]Command
}

// NewRegistry validates and indexes the given commands.
func NewRegistry(cmds ...Command) (*Registry, error) {
	m := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		if err := validateKeyword(c.Keyword); err != nil {
			return nil, err
		}
		if c.Handler == nil {
			return nil, fmt.Errorf("tool %q: nil handler", c.Keyword)
		}
		if _, dup := m[c.Keyword]; dup {
			return nil, fmt.Errorf("tool %q: duplicate keyword", c.Keyword)
		}
		m[c.Keyword] = c
	}
	return &Registry{commands: m}, nil
}

func validateKeyword(k string) error {
	if k == "" {
		return fmt.Errorf("tool keyword must not be empty")
	}
	for _, r := range k {
		if r > 0x7f {
			return fmt.Errorf("tool %q: keyword must be ASCII", k)
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return fmt.Errorf("tool %q: keyword must not contain whitespace", k)
		}
	}
	return nil
}

// Lookup returns the command for keyword.
func (r *Registry) Lookup(keyword string) (Command, bool) {
	c, ok := r.commands[keyword]
	return c, ok
}

// Keywords returns all registered keywords sorted ascending by byte length.
// A shorter keyword that prefixes a longer one shadows it; registries that
// need the longer one reachable must not register such pairs.
func (r *Registry) Keywords() []string {
	ks := make([]string, 0, len(r.commands))
	for k := range r.commands {
		ks = append(ks, k)
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if len(ks[i]) != len(ks[j]) {
			return len(ks[i]) < len(ks[j])
		}
		return ks[i] < ks[j]
	})
	return ks
}

// Len returns the number of registered commands.
func (r *Registry) Len() int { return len(r.commands) }

// Commands returns all commands in keyword order.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, k := range r.Keywords() {
		out = append(out, r.commands[k])
	}
	return out
}

// KeywordOnly adapts an answer provider into a Handler for tools whose
// invocation is the bare keyword with no arguments. Collected text that
// trims to exactly the keyword fulfills the tool; anything else is a reply
// meant for the user.
func KeywordOnly(provide func(collected string) string) Handler {
	return func(keyword, collected string) Verdict {
		if strings.TrimSpace(collected) == keyword {
			return Verdict{Kind: ToolRequest, Text: provide(collected)}
		}
		return Verdict{Kind: UserReply, Text: collected}
	}
}
