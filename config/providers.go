package config

import (
	"fmt"
)

// SetProviderCredential writes a provider's API key into both the
// plaintext global config (the spec.md §6 api_keys map the Provider
// Adapter factory reads at startup) and, when store's security method
// is ssh_key, into the encrypted CredentialStore as a local, non-cleartext
// cache a CLI can read back without round-tripping through global.json —
// adapted from otui's UpdateProviderField, generalized from the
// Ollama-host/provider-enabled fields it toggled to spec.md's
// PROVIDER_KEY credential model.
func SetProviderCredential(dataDir string, store *CredentialStore, providerKey, apiKey string) error {
	g, err := LoadGlobalConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load global config: %w", err)
	}
	g.APIKeys[providerKey] = apiKey
	if err := SaveGlobalConfig(g, dataDir); err != nil {
		return fmt.Errorf("failed to save global config: %w", err)
	}

	if store != nil && store.GetMethod() == SecuritySSHKey {
		if err := store.Set(providerKey, apiKey); err != nil {
			return fmt.Errorf("failed to set credential: %w", err)
		}
		if err := store.Save(dataDir); err != nil {
			return fmt.Errorf("failed to persist encrypted credentials: %w", err)
		}
	}
	return nil
}

// ProviderDisplayName maps a spec.md §6 PROVIDER_KEY environment variable
// name (or its api_keys map key) to a human-readable label for CLI output.
func ProviderDisplayName(providerKey string) string {
	switch providerKey {
	case "ANTHROPIC_API_KEY":
		return "Anthropic"
	case "OPENAI_API_KEY":
		return "OpenAI"
	case "GEMINI_API_KEY":
		return "Gemini"
	case "GROQ_API_KEY":
		return "Groq"
	case "DEEPINFRA_API_KEY":
		return "DeepInfra"
	case "TAVILY_API_KEY":
		return "Tavily"
	case "VOYAGE_API_KEY":
		return "Voyage"
	default:
		return providerKey
	}
}
