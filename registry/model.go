// Package registry implements the Model Registry (R): a process-wide
// catalog of (provider, model-id, capabilities, price) records with atomic
// "current model" selection, per spec.md §4.1. Entries are pre-seeded from
// a built-in default set and extended with custom OpenAI-compatible
// entries loaded from the global config and persisted in SQLite, adapting
// otui's storage/plugins.go schema-migration pattern from a plugin table
// to a model-catalog table.
package registry

// Capability names a feature a Model may support.
type Capability string

const (
	CapToolUse   Capability = "tool_use"
	CapVision    Capability = "vision"
	CapThinking  Capability = "thinking"
	CapStreaming Capability = "streaming"
)

// Model is the Model Registry's catalog record.
type Model struct {
	ID                  string
	Provider            string
	DisplayName         string
	Capabilities        map[Capability]bool
	InputPricePerMillion  float64
	OutputPricePerMillion float64
	Default             bool

	// APIBaseURL and IsStream carry through a custom_llm_providers entry
	// (spec.md §6) so the openai-compatible adapter knows where to dial and
	// whether the endpoint supports streaming at all.
	APIBaseURL string
	IsStream   bool
}

func (m Model) Has(c Capability) bool { return m.Capabilities[c] }

// CostUSD computes the dollar cost of a turn from this Model's per-million
// token prices, used by Provider Adapters to populate UsageUpdate events
// per spec.md §4.2 responsibility 4.
func (m Model) CostUSD(inputTokens, outputTokens int) float64 {
	in := float64(inputTokens) / 1_000_000 * m.InputPricePerMillion
	out := float64(outputTokens) / 1_000_000 * m.OutputPricePerMillion
	return in + out
}

// defaultCatalog seeds the registry with a representative set of models
// per built-in provider. A real deployment overrides prices/ids via
// global config; this set exists so the registry is never empty at
// process start.
func defaultCatalog() []Model {
	return []Model{
		{
			ID: "anthropic-large", Provider: "anthropic", DisplayName: "Anthropic (large)",
			Capabilities:          map[Capability]bool{CapToolUse: true, CapVision: true, CapThinking: true, CapStreaming: true},
			InputPricePerMillion:  15, OutputPricePerMillion: 75,
		},
		{
			ID: "anthropic-standard", Provider: "anthropic", DisplayName: "Anthropic (standard)",
			Capabilities:          map[Capability]bool{CapToolUse: true, CapVision: true, CapThinking: true, CapStreaming: true},
			InputPricePerMillion:  3, OutputPricePerMillion: 15,
			Default: true,
		},
		{
			ID: "openai-large", Provider: "openai", DisplayName: "OpenAI (large)",
			Capabilities:          map[Capability]bool{CapToolUse: true, CapVision: true, CapThinking: true, CapStreaming: true},
			InputPricePerMillion:  5, OutputPricePerMillion: 20,
		},
		{
			ID: "llama3.1", Provider: "ollama", DisplayName: "Llama 3.1 (local)",
			Capabilities: map[Capability]bool{CapToolUse: true, CapStreaming: true},
		},
	}
}
