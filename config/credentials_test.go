package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStorePlainTextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.Set("ANTHROPIC_API_KEY", "sk-test"))
	require.NoError(t, store.Save(dir))

	reloaded := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, reloaded.Load(dir))
	assert.Equal(t, "sk-test", reloaded.Get("ANTHROPIC_API_KEY"))
}

func TestCredentialStoreDeleteRemovesKey(t *testing.T) {
	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.Set("OPENAI_API_KEY", "sk-test"))
	require.NoError(t, store.Delete("OPENAI_API_KEY"))
	assert.Empty(t, store.Get("OPENAI_API_KEY"))
}

func TestCredentialStoreMCPServerSecretScoping(t *testing.T) {
	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.SetMCPServerSecret("search", "API_KEY", "secret-1"))
	require.NoError(t, store.SetMCPServerSecret("other", "API_KEY", "secret-2"))

	assert.Equal(t, "secret-1", store.GetMCPServerSecret("search", "API_KEY"))
	require.NoError(t, store.DeleteMCPServerSecrets("search"))
	assert.Empty(t, store.GetMCPServerSecret("search", "API_KEY"))
	assert.Equal(t, "secret-2", store.GetMCPServerSecret("other", "API_KEY"))
}

func TestCredentialStoreLoadMissingFileReturnsEmpty(t *testing.T) {
	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.Load(t.TempDir()))
	assert.Empty(t, store.Get("ANTHROPIC_API_KEY"))
}
