package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// SystemConfig is the machine-level settings file at
// ~/.config/agentcore/settings.toml: just enough to locate the data
// directory before anything else can load.
type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// RuntimeConfig is the per-data-directory settings file
// (<data_directory>/config.toml): process defaults that don't belong in
// either the agent roster or the global credential file.
type RuntimeConfig struct {
	DefaultProvider string `toml:"default_provider"`
	DefaultModel    string `toml:"default_model"`
	AgentConfigPath string `toml:"agent_config_path,omitempty"`
	MCPConfigPath   string `toml:"mcp_config_path,omitempty"`
	PruneHorizonDays int    `toml:"prune_horizon_days"`
	MCPEnabled      bool   `toml:"mcp_enabled"`
	SecurityMethod  string `toml:"security_method,omitempty"`
	SSHKeyPath      string `toml:"ssh_key_path,omitempty"`
}

// Config is the fully resolved runtime configuration handed to
// cmd/chat and cmd/a2a-server after Load.
type Config struct {
	DataDirectory    string
	DefaultProvider  string
	DefaultModel     string
	AgentConfigPath  string
	MCPConfigPath    string
	PruneHorizonDays int
	MCPEnabled       bool
	SecurityMethod   SecurityMethod
	SSHKeyPath       string
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string { return ExpandPath(c.DataDirectory) }

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("AGENTCORE_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if provider := os.Getenv("AGENTCORE_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if model := os.Getenv("AGENTCORE_MODEL"); model != "" {
		c.DefaultModel = model
	}
}

func CheckDebug() bool {
	debug := os.Getenv("AGENTCORE_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens <dataDir>/debug.log when AGENTCORE_DEBUG is set,
// grounded on otui's config.go InitDebugLog.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (AGENTCORE_DEBUG=%s) ===", os.Getenv("AGENTCORE_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load resolves the full Config: system settings locate the data
// directory, the runtime config under that directory supplies process
// defaults, and AGENTCORE_* environment variables override both — the
// same settings-exist-vs-env-fallback branching as otui's config.go
// Load, generalized past Ollama-only fields.
func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory:    "~/.local/share/agentcore",
		DefaultProvider:  "anthropic",
		DefaultModel:     "anthropic-standard",
		PruneHorizonDays: 30,
		SecurityMethod:   SecurityPlainText,
	}

	settingsPath := GetSettingsFilePath()
	if FileExists(settingsPath) {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory
	}

	dataDir := cfg.DataDir()
	runtimeCfg, err := LoadRuntimeConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load runtime config: %w", err)
	}
	cfg.DefaultProvider = runtimeCfg.DefaultProvider
	cfg.DefaultModel = runtimeCfg.DefaultModel
	cfg.AgentConfigPath = runtimeCfg.AgentConfigPath
	cfg.MCPConfigPath = runtimeCfg.MCPConfigPath
	cfg.PruneHorizonDays = runtimeCfg.PruneHorizonDays
	cfg.MCPEnabled = runtimeCfg.MCPEnabled
	if runtimeCfg.SecurityMethod != "" {
		cfg.SecurityMethod = SecurityMethod(runtimeCfg.SecurityMethod)
	}
	cfg.SSHKeyPath = runtimeCfg.SSHKeyPath
	if cfg.SecurityMethod == SecuritySSHKey && cfg.SSHKeyPath == "" {
		cfg.SSHKeyPath = GetAgentcoreKeyPath()
		if !AgentcoreKeyExists() {
			if _, err := CreateAgentcoreKey(""); err != nil {
				return nil, fmt.Errorf("failed to generate ssh_key credential encryption key: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	dataDir = cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return cfg, nil
}
