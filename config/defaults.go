package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/agentcore",
	}
}

func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		DefaultProvider:  "anthropic",
		DefaultModel:     "anthropic-standard",
		PruneHorizonDays: 30,
		MCPEnabled:       false,
		SecurityMethod:   string(SecurityPlainText),
	}
}

func GenerateSystemConfigTemplate() string {
	return `# agentcore system configuration
# Location: ~/.config/agentcore/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations and the runtime config are stored
data_directory = "~/.local/share/agentcore"
`
}

func GenerateRuntimeConfigTemplate() string {
	return `# agentcore runtime configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider to use when --provider / AGENTCORE_PROVIDER does not override it
default_provider = "anthropic"

# Model id (from the Model Registry) to select at startup
default_model = "anthropic-standard"

# Path to the agent roster file (see --agent-config); leave empty to
# require --agent-config on every invocation
agent_config_path = ""

# Path to the MCP servers file (see --mcp-config); leave empty to run
# with no MCP servers
mcp_config_path = ""

# Days of inactivity after which a conversation is eligible for pruning
prune_horizon_days = 30

# Enable MCP tool discovery
mcp_enabled = false

# How provider API keys are stored at rest: "plaintext" (api_keys map in
# global.json) or "ssh_key" (AES-256-GCM, keyed off an SSH signature, in
# <data_directory>/credentials.enc)
security_method = "plaintext"

# SSH private key used to derive the encryption key when security_method
# is "ssh_key"; empty uses ~/.ssh/agentcore_ed25519
ssh_key_path = ""
`
}
