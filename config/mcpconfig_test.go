package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMCPServersFileParsesManifest(t *testing.T) {
	path := writeTemp(t, "mcp.json", `{
		"search": {
			"name": "search",
			"command": "mcp-search",
			"args": ["--mode", "web"],
			"env": {"API_KEY": "x"},
			"enabledForAgents": ["router"]
		}
	}`)

	m, err := LoadMCPServersFile(path)
	require.NoError(t, err)
	require.Contains(t, m, "search")
	assert.Equal(t, "mcp-search", m["search"].Command)
	assert.Equal(t, []string{"router"}, m["search"].EnabledForAgents)
}

func TestLoadMCPServersFileMissingPathIsEmptyNotError(t *testing.T) {
	m, err := LoadMCPServersFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadMCPServersFileEmptyPathIsEmptyNotError(t *testing.T) {
	m, err := LoadMCPServersFile("")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadMCPServersFileRejectsMissingCommand(t *testing.T) {
	path := writeTemp(t, "mcp.json", `{"search": {"name": "search"}}`)
	_, err := LoadMCPServersFile(path)
	require.Error(t, err)
}
