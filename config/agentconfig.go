// Package config implements SPEC_FULL.md's three on-disk file formats —
// the agent configuration file, the MCP servers file, and the global
// config — plus the data-directory and credential-store plumbing
// adapted from otui's config/ package. Grounded on otui's settings.go
// TOML load/save pattern for the agent file and on otui's credentials.go/
// encryption.go/sshcrypto.go for the credential store; the MCP servers
// file and global config have no otui counterpart and are new JSON
// loaders in the same defensive-parsing style.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/hkdb/agentcore/agent"
	"github.com/hkdb/agentcore/errs"
)

// AgentFile is the TOML document loaded from --agent-config, per
// spec.md §6's "Agent configuration file": an ordered `[[agents]]` list.
type AgentFile struct {
	Agents []AgentRecord `toml:"agents"`
}

// AgentRecord is one `[[agents]]` entry.
type AgentRecord struct {
	Name           string   `toml:"name"`
	Description    string   `toml:"description"`
	Tools          []string `toml:"tools"`
	SystemPrompt   string   `toml:"system_prompt"`
	Temperature    *float64 `toml:"temperature"`
	RemoteEndpoint string   `toml:"remote_endpoint,omitempty"`
}

// LoadAgentFile parses path into an AgentFile. A missing or malformed
// file is a ConfigError, since an agent roster is required to start the
// Agent Manager at all.
func LoadAgentFile(path string) (*AgentFile, error) {
	var f AgentFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, errs.Config(fmt.Sprintf("failed to parse agent config %s", path), err)
	}
	if len(f.Agents) == 0 {
		return nil, errs.Config(fmt.Sprintf("agent config %s defines no agents", path), nil)
	}
	seen := map[string]bool{}
	for _, a := range f.Agents {
		if a.Name == "" {
			return nil, errs.Config("agent record missing name", nil)
		}
		if seen[a.Name] {
			return nil, errs.Config(fmt.Sprintf("duplicate agent name %q", a.Name), nil)
		}
		seen[a.Name] = true
	}
	return &f, nil
}

// ToAgentConfigs converts the parsed records into agent.Config values,
// ready for agent.New. The {current_date} placeholder substitution named
// in spec.md §6 happens in agent.Agent.RenderSystemPrompt at activation
// time, not here — AgentRecord.SystemPrompt is carried through verbatim
// as the template.
func (f *AgentFile) ToAgentConfigs() []agent.Config {
	out := make([]agent.Config, 0, len(f.Agents))
	for _, a := range f.Agents {
		out = append(out, agent.Config{
			Name:             a.Name,
			Description:      a.Description,
			SystemPromptTmpl: a.SystemPrompt,
			ToolNames:        a.Tools,
			Temperature:      a.Temperature,
			IsRemote:         a.RemoteEndpoint != "",
			Endpoint:         a.RemoteEndpoint,
		})
	}
	return out
}
