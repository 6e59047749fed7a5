package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadAgentFileParsesRoster(t *testing.T) {
	path := writeTemp(t, "agents.toml", `
[[agents]]
name = "router"
description = "routes user requests"
tools = ["transfer", "search"]
system_prompt = "Today is {current_date}."
temperature = 0.2

[[agents]]
name = "coder"
description = "writes code"
tools = ["transfer"]
system_prompt = "You write code."
`)

	f, err := LoadAgentFile(path)
	require.NoError(t, err)
	require.Len(t, f.Agents, 2)
	assert.Equal(t, "router", f.Agents[0].Name)
	require.NotNil(t, f.Agents[0].Temperature)
	assert.Equal(t, 0.2, *f.Agents[0].Temperature)

	cfgs := f.ToAgentConfigs()
	require.Len(t, cfgs, 2)
	assert.Equal(t, []string{"transfer", "search"}, cfgs[0].ToolNames)
	assert.False(t, cfgs[0].IsRemote)
}

func TestLoadAgentFileRejectsDuplicateNames(t *testing.T) {
	path := writeTemp(t, "agents.toml", `
[[agents]]
name = "router"
description = "a"
system_prompt = "x"

[[agents]]
name = "router"
description = "b"
system_prompt = "y"
`)

	_, err := LoadAgentFile(path)
	require.Error(t, err)
}

func TestLoadAgentFileRejectsEmptyRoster(t *testing.T) {
	path := writeTemp(t, "agents.toml", "")
	_, err := LoadAgentFile(path)
	require.Error(t, err)
}

func TestLoadAgentFileMissingPath(t *testing.T) {
	_, err := LoadAgentFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestAgentRecordRemoteEndpointSetsIsRemote(t *testing.T) {
	path := writeTemp(t, "agents.toml", `
[[agents]]
name = "remote-agent"
description = "a"
system_prompt = "x"
remote_endpoint = "https://example.test/remote-agent"
`)
	f, err := LoadAgentFile(path)
	require.NoError(t, err)
	cfgs := f.ToAgentConfigs()
	require.Len(t, cfgs, 1)
	assert.True(t, cfgs[0].IsRemote)
	assert.Equal(t, "https://example.test/remote-agent", cfgs[0].Endpoint)
}
