// Package provider implements the Provider Adapter (P) contract of
// spec.md §4.2: one adapter per LLM vendor, translating the uniform
// streaming contract to and from vendor wire format. Shared plumbing
// (history conversion scaffolding, circuit breaking, cost accounting)
// lives here; per-vendor files hold only wire translation and capability
// quirks, per spec.md's "Provider variants share ≥80% of the adapter
// surface" requirement.
package provider

import (
	"context"

	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/registry"
)

// ToolSchema is the provider-facing shape of a Tool Registry descriptor.
// It is intentionally minimal — just enough for an adapter to translate
// into its vendor's function-calling schema — so this package never needs
// to import the tool registry.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ThinkingSpec is the argument to SetThinking: either a token budget
// (budget-based providers, e.g. Anthropic) or an effort level
// (effort-based providers, e.g. OpenAI reasoning models). Zero value
// disables thinking.
type ThinkingSpec struct {
	Budget int    // token budget; minimum 1024 once non-zero, silently raised
	Level  string // one of "", "low", "medium", "high"
}

func (t ThinkingSpec) Disabled() bool { return t.Budget == 0 && t.Level == "" }

// Adapter is the uniform contract every vendor implementation satisfies.
type Adapter interface {
	// Name identifies the adapter's provider, e.g. "anthropic".
	Name() string

	// SetSystemPrompt side-effects the next Stream call.
	SetSystemPrompt(prompt string)

	// RegisterTool and ClearTools adjust the set of tool schemas the next
	// Stream call will carry.
	RegisterTool(schema ToolSchema)
	ClearTools()

	// SetThinking reports whether the adapter's backend supports the
	// requested thinking mode. A false return means thinking stays off.
	SetThinking(spec ThinkingSpec) bool

	// Stream opens a lazy, forward-only sequence of StreamEvents over
	// messages. The returned Handle must be closed on every exit path;
	// Close releases the underlying HTTP connection and any partial
	// decode state.
	Stream(ctx context.Context, messages []message.Message) (Handle, error)
}

// Handle is a scoped stream acquisition per spec.md §4.2's "with-stream"
// redesign note: guaranteed release on every exit path, including
// cancellation.
type Handle interface {
	// Events yields StreamEvents in arrival order. The channel is closed
	// after a Stop event or when the context is cancelled.
	Events() <-chan message.StreamEvent
	// Close releases the connection. Safe to call multiple times.
	Close() error
}

// Config carries the credential and endpoint an Adapter is constructed
// with. NewForModel picks the vendor constructor through the
// provider-name switch in factory.go.
type Config struct {
	APIKey  string
	BaseURL string
}

// NewForModel resolves the correct vendor Adapter for m.Provider. Custom
// OpenAI-compatible entries (m.APIBaseURL set, provider name "openai" or
// any name registered via global config) share the OpenAI adapter.
func NewForModel(m registry.Model, cfg Config) (Adapter, error) {
	return newForModel(m, cfg)
}
