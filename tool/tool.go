// Package tool implements the Tool Registry (T) of spec.md §4.3: a
// catalog of tool descriptors keyed by name, with per-agent allow-lists,
// JSON-schema argument validation, and timeout/rate-limit enforcement on
// invoke. Generalized from otui's mcp/manager.go GetTools/CallTool
// filtering pattern (MCP-only tools) to the full builtin+MCP disjoint
// namespace spec.md §3 requires.
package tool

import "context"

// Source names where a Descriptor's handler comes from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	// MCP-sourced descriptors use Source "mcp:<server-id>".
)

// Handler invokes a tool's behavior for validated args, returning either
// a result value (string or structured) or an error. Handler errors are
// wrapped into a ToolResult with IsError=true by Registry.Invoke — per
// spec.md §7 "ToolError is never fatal to the turn".
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Descriptor is a Tool Registry entry.
type Descriptor struct {
	Name        string // globally unique; MCP names are "<server-id>.<tool-name>"
	Description string
	InputSchema map[string]any // JSON-schema-like
	Handler     Handler
	Source      Source

	// EnabledForAgents is either a literal agent-name set or the single
	// element "*" meaning every agent.
	EnabledForAgents []string
}

func (d Descriptor) enabledFor(agentName string) bool {
	for _, a := range d.EnabledForAgents {
		if a == "*" || a == agentName {
			return true
		}
	}
	return false
}

// equalDescriptor reports whether two descriptors are identical for the
// purpose of Register's idempotency check (spec.md §4.3: "register is
// idempotent on identical descriptors and fails with DuplicateTool
// otherwise"). Handler identity is deliberately excluded — reuse of an
// equivalent schema/description with a fresh closure (e.g. MCP
// reconnect) is still "identical" for registration purposes.
func equalDescriptor(a, b Descriptor) bool {
	if a.Name != b.Name || a.Description != b.Description || a.Source != b.Source {
		return false
	}
	if len(a.EnabledForAgents) != len(b.EnabledForAgents) {
		return false
	}
	for i := range a.EnabledForAgents {
		if a.EnabledForAgents[i] != b.EnabledForAgents[i] {
			return false
		}
	}
	return schemaEqual(a.InputSchema, b.InputSchema)
}

func schemaEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		// shallow comparison is sufficient: schemas are built from stable
		// static config or MCP tool listings, never hand-mutated in place.
		if av, ok := v.(string); ok {
			if bvs, ok2 := bv.(string); !ok2 || av != bvs {
				return false
			}
		}
	}
	return true
}

// Result is what Registry.Invoke returns: a structured outcome or an
// error wrapper with IsError true, matching message.ToolResultPart's
// shape one level up.
type Result struct {
	Content any
	IsError bool
	Code    string // e.g. "timeout", "unknown_tool" — see errs.ToolCode*
}
