package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hkdb/agentcore/registry"
)

// globalLog is the fallback logger used when a caller constructs an
// adapter without threading one through explicitly. SetLogger overrides
// it once at process start; this mirrors the "never a package-level
// implicit global except a safe fallback" rule in SPEC_FULL.md's ambient
// stack section.
var globalLog = zap.NewNop().Sugar()

func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		globalLog = l
	}
}

// newForModel resolves m.Provider to a concrete vendor Adapter. Custom
// OpenAI-compatible providers registered via global config carry their
// own provider name but share the openai adapter's wire shape, so any
// provider name other than "anthropic"/"ollama" falls through to it.
func newForModel(m registry.Model, cfg Config) (Adapter, error) {
	switch m.Provider {
	case "anthropic":
		return newAnthropicAdapter(m, cfg, globalLog)
	case "ollama":
		return newOllamaAdapter(m, cfg, globalLog)
	case "openai":
		return newOpenAIAdapter(m, cfg, globalLog)
	default:
		// openai_compatible custom providers (spec.md §6): same wire
		// shape as openai, different base URL/key.
		return newOpenAIAdapter(m, cfg, globalLog)
	}
}

// KnownProviderNames lists the provider identifiers the factory resolves
// without a custom_llm_providers entry; ValidateProvider checks a name
// against it for spec.md §4.1's "validates that
// provider names a known Provider Adapter constructor or a configured
// OpenAI-compatible endpoint".
func KnownProviderNames() []string { return []string{"anthropic", "ollama", "openai"} }

// ValidateProvider returns an error unless provider is a known built-in
// adapter or isCustom is true (the caller already confirmed a matching
// custom_llm_providers entry exists).
func ValidateProvider(provider string, isCustom bool) error {
	if isCustom {
		return nil
	}
	for _, p := range KnownProviderNames() {
		if p == provider {
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q: not a built-in adapter and no matching custom_llm_providers entry", provider)
}
