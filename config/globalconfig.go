package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hkdb/agentcore/errs"
	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/registry"
)

// GlobalConfig is the JSON document at <data-dir>/global.json, per
// spec.md §6's "Global config": provider credentials plus any
// OpenAI-compatible custom providers and their catalog entries.
type GlobalConfig struct {
	APIKeys            map[string]string     `json:"api_keys"`
	CustomLLMProviders []CustomLLMProvider    `json:"custom_llm_providers"`
}

// CustomLLMProvider describes one OpenAI-compatible endpoint and the
// models it serves.
type CustomLLMProvider struct {
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	APIBaseURL      string          `json:"api_base_url"`
	APIKey          string          `json:"api_key,omitempty"`
	DefaultModelID  string          `json:"default_model_id"`
	IsStream        bool            `json:"is_stream"`
	AvailableModels []CustomModelDef `json:"available_models"`
}

// CustomModelDef is one entry of available_models.
type CustomModelDef struct {
	ID                  string   `json:"id"`
	Provider            string   `json:"provider"`
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Capabilities        []string `json:"capabilities"`
	InputTokenPrice1M   float64  `json:"input_token_price_1m"`
	OutputTokenPrice1M  float64  `json:"output_token_price_1m"`
}

// KnownCredentialEnvVars lists the environment variables spec.md §6
// names as valid credential sources; for each of them the global
// config's api_keys map wins over the environment value.
var KnownCredentialEnvVars = map[string]string{
	"ANTHROPIC_API_KEY":  "ANTHROPIC_API_KEY",
	"OPENAI_API_KEY":     "OPENAI_API_KEY",
	"GEMINI_API_KEY":     "GEMINI_API_KEY",
	"GROQ_API_KEY":       "GROQ_API_KEY",
	"DEEPINFRA_API_KEY":  "DEEPINFRA_API_KEY",
	"TAVILY_API_KEY":     "TAVILY_API_KEY",
	"VOYAGE_API_KEY":     "VOYAGE_API_KEY",
}

// GlobalConfigPath returns <dataDir>/global.json.
func GlobalConfigPath(dataDir string) string {
	return dataDir + "/global.json"
}

// LoadGlobalConfig parses the global config file. A missing file yields
// an empty GlobalConfig rather than an error, since a fresh install has
// no custom providers and relies solely on environment-variable
// credentials, per spec.md §6 "Keys in the global config supersede
// environment values" (implying their absence is the normal case).
func LoadGlobalConfig(dataDir string) (*GlobalConfig, error) {
	path := GlobalConfigPath(dataDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &GlobalConfig{APIKeys: map[string]string{}}, nil
	}
	if err != nil {
		return nil, errs.Config(fmt.Sprintf("failed to read global config %s", path), err)
	}

	var g GlobalConfig
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errs.Config(fmt.Sprintf("failed to parse global config %s", path), err)
	}
	if g.APIKeys == nil {
		g.APIKeys = map[string]string{}
	}
	return &g, nil
}

// SaveGlobalConfig writes g to <dataDir>/global.json with 0600
// permissions, since api_keys may carry plaintext credentials.
func SaveGlobalConfig(g *GlobalConfig, dataDir string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return errs.Config("marshal global config", err)
	}
	if err := os.WriteFile(GlobalConfigPath(dataDir), data, 0600); err != nil {
		return errs.Config("write global config", err)
	}
	return nil
}

// RegisterCustomProviders validates and loads every custom_llm_providers
// entry into the Model Registry, per spec.md §6 and §4.1's "provider
// names a known Provider Adapter constructor or a configured
// OpenAI-compatible endpoint" requirement.
func (g *GlobalConfig) RegisterCustomProviders(models *registry.Registry) error {
	for _, p := range g.CustomLLMProviders {
		if p.Type != "openai_compatible" {
			return errs.Config(fmt.Sprintf("custom provider %q: unsupported type %q", p.Name, p.Type), nil)
		}
		for _, md := range p.AvailableModels {
			caps := map[registry.Capability]bool{}
			for _, c := range md.Capabilities {
				caps[registry.Capability(c)] = true
			}
			displayName := md.Name
			if displayName == "" {
				displayName = provider.StripProviderPrefix(md.ID)
			}
			m := registry.Model{
				ID:                    md.ID,
				Provider:              p.Name,
				DisplayName:           displayName,
				Capabilities:          caps,
				InputPricePerMillion:  md.InputTokenPrice1M,
				OutputPricePerMillion: md.OutputTokenPrice1M,
				APIBaseURL:            p.APIBaseURL,
				IsStream:              p.IsStream,
			}
			if err := models.RegisterCustom(m); err != nil {
				return errs.Config(fmt.Sprintf("custom model %q", md.ID), err)
			}
		}
	}
	return nil
}

// APIKeyFor resolves a provider's credential: the global config's
// api_keys map takes priority over the environment variable named by
// envVar, per spec.md §6 "Keys in the global config supersede
// environment values".
func (g *GlobalConfig) APIKeyFor(providerKey, envVar string) string {
	if v, ok := g.APIKeys[providerKey]; ok && v != "" {
		return v
	}
	return os.Getenv(envVar)
}
