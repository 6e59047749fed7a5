package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkdb/agentcore/registry"
)

func TestLoadGlobalConfigMissingFileIsEmpty(t *testing.T) {
	g, err := LoadGlobalConfig(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, g.APIKeys)
}

func TestSaveLoadGlobalConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	g := &GlobalConfig{
		APIKeys: map[string]string{"ANTHROPIC_API_KEY": "sk-test"},
		CustomLLMProviders: []CustomLLMProvider{
			{
				Name: "local-openai-compatible", Type: "openai_compatible",
				APIBaseURL: "http://localhost:8000/v1", DefaultModelID: "local-model", IsStream: true,
				AvailableModels: []CustomModelDef{
					{ID: "local-model", Provider: "local-openai-compatible", Name: "Local Model", Capabilities: []string{"tool_use"}, InputTokenPrice1M: 0, OutputTokenPrice1M: 0},
				},
			},
		},
	}
	require.NoError(t, SaveGlobalConfig(g, dir))

	loaded, err := LoadGlobalConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", loaded.APIKeys["ANTHROPIC_API_KEY"])
	require.Len(t, loaded.CustomLLMProviders, 1)
	assert.Equal(t, "local-model", loaded.CustomLLMProviders[0].AvailableModels[0].ID)
}

func TestGlobalConfigAPIKeyForPrefersGlobalOverEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	g := &GlobalConfig{APIKeys: map[string]string{"ANTHROPIC_API_KEY": "from-global"}}
	assert.Equal(t, "from-global", g.APIKeyFor("ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"))
}

func TestGlobalConfigAPIKeyForFallsBackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	g := &GlobalConfig{APIKeys: map[string]string{}}
	assert.Equal(t, "from-env", g.APIKeyFor("ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"))
}

func TestRegisterCustomProvidersRejectsUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	r, err := registry.New(dir)
	require.NoError(t, err)
	defer r.Close()

	g := &GlobalConfig{CustomLLMProviders: []CustomLLMProvider{{Name: "weird", Type: "grpc"}}}
	err = g.RegisterCustomProviders(r)
	require.Error(t, err)
}

func TestRegisterCustomProvidersAddsModelsToRegistry(t *testing.T) {
	dir := t.TempDir()
	r, err := registry.New(dir)
	require.NoError(t, err)
	defer r.Close()

	g := &GlobalConfig{CustomLLMProviders: []CustomLLMProvider{
		{
			Name: "local", Type: "openai_compatible", APIBaseURL: "http://localhost:8000/v1", IsStream: true,
			AvailableModels: []CustomModelDef{
				{ID: "local-7b", Provider: "local", Name: "Local 7B", Capabilities: []string{"streaming"}},
			},
		},
	}}
	require.NoError(t, g.RegisterCustomProviders(r))

	m, ok := r.Get("local-7b")
	require.True(t, ok)
	assert.Equal(t, "local", m.Provider)
	assert.True(t, m.Has(registry.Capability("streaming")))
}

func TestRegisterCustomProvidersDerivesDisplayNameWhenUnset(t *testing.T) {
	dir := t.TempDir()
	r, err := registry.New(dir)
	require.NoError(t, err)
	defer r.Close()

	g := &GlobalConfig{CustomLLMProviders: []CustomLLMProvider{
		{
			Name: "openrouter-proxy", Type: "openai_compatible", APIBaseURL: "http://localhost:8000/v1",
			AvailableModels: []CustomModelDef{
				{ID: "meta-llama/llama-3.2-90b-instruct", Provider: "openrouter-proxy"},
			},
		},
	}}
	require.NoError(t, g.RegisterCustomProviders(r))

	m, ok := r.Get("meta-llama/llama-3.2-90b-instruct")
	require.True(t, ok)
	assert.Equal(t, "llama-3.2-90b-instruct", m.DisplayName)
}
