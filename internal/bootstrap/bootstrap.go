// Package bootstrap wires together config, registry, provider, tool,
// mcpsup, agent, turn, and persistence into the running App both
// cmd/chat and cmd/a2a-server start from, grounded on otui's main.go
// startup sequence (config load -> debug log -> storage -> process lock)
// generalized from a single bubbletea program launch to SPEC_FULL.md's
// multi-file, multi-provider config model.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hkdb/agentcore/agent"
	"github.com/hkdb/agentcore/config"
	"github.com/hkdb/agentcore/errs"
	"github.com/hkdb/agentcore/internal/builtins"
	"github.com/hkdb/agentcore/mcpsup"
	"github.com/hkdb/agentcore/persistence"
	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/registry"
	"github.com/hkdb/agentcore/tool"
	"github.com/hkdb/agentcore/turn"
)

// ErrMissingCredentials signals spec.md §6 exit code 2: the provider
// selected for the current model has no resolvable API key in either
// the global config's api_keys map or its environment variable.
var ErrMissingCredentials = errors.New("missing provider credentials")

// Overrides carries the CLI flags shared by chat and a2a-server that
// shadow the on-disk runtime config, per spec.md §6.
type Overrides struct {
	Provider        string
	AgentConfigPath string
	MCPConfigPath   string
}

// App bundles every long-lived singleton a front end drives a turn
// through.
type App struct {
	Config       *config.Config
	GlobalConfig *config.GlobalConfig
	Credentials  *config.CredentialStore
	Models       *registry.Registry
	Tools        *tool.Registry
	MCP          *mcpsup.Supervisor
	Manager      *agent.Manager
	Engine       *turn.Engine
	Store        *persistence.Store
	Log          *zap.SugaredLogger
}

// builtinProviderEnvVar maps a built-in Provider Adapter's name to the
// spec.md §6 environment variable carrying its credential. Ollama is
// deliberately absent: a local daemon needs no API key. Custom
// (openai_compatible) providers carry their own api_key in global config
// instead of an environment variable.
var builtinProviderEnvVar = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// credentialsFor builds the Provider Adapter credential resolver
// agent.Manager uses on every SwitchModel, so switching to a model from a
// different provider never reuses another provider's key. When creds is
// configured for ssh_key storage, its encrypted CredentialStore entry for
// a provider's key name wins over the plaintext global config / env var,
// per spec.md §6's at-rest encryption option.
func credentialsFor(g *config.GlobalConfig, creds *config.CredentialStore) func(string) provider.Config {
	encrypted := creds != nil && creds.GetMethod() == config.SecuritySSHKey
	return func(providerName string) provider.Config {
		if envVar, ok := builtinProviderEnvVar[providerName]; ok {
			if encrypted {
				if key := creds.Get(envVar); key != "" {
					return provider.Config{APIKey: key}
				}
			}
			return provider.Config{APIKey: g.APIKeyFor(envVar, envVar)}
		}
		// custom openai_compatible provider: look up its own api_key/base
		// url from the global config entry carrying this provider name.
		for _, p := range g.CustomLLMProviders {
			if p.Name == providerName {
				apiKey := p.APIKey
				if encrypted {
					if key := creds.Get(p.Name); key != "" {
						apiKey = key
					}
				}
				return provider.Config{APIKey: apiKey, BaseURL: p.APIBaseURL}
			}
		}
		return provider.Config{}
	}
}

// checkCredentials resolves m's provider credential and fails with
// ErrMissingCredentials if a network-backed provider has none, per
// spec.md §6 exit code 2 / §7 "ConfigError: ... missing credentials for
// selected provider". Ollama needs no key and is always satisfied.
func checkCredentials(m registry.Model, cfg provider.Config) error {
	if m.Provider == "ollama" {
		return nil
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("%w: provider %q (model %q)", ErrMissingCredentials, m.Provider, m.ID)
	}
	return nil
}

// Start resolves configuration, credentials, and every core registry,
// then builds the Agent Manager (with every configured agent registered
// but inactive) and Turn Engine. The returned App's agent.Manager has no
// agent selected yet — callers select the roster's first agent (or the
// one named by a /agent command) before running a turn.
func Start(ctx context.Context, log *zap.SugaredLogger, ov Overrides) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errs.Config("load runtime config", err)
	}
	config.InitDebugLog(cfg.DataDir())

	if ov.Provider != "" {
		cfg.DefaultProvider = ov.Provider
	}
	if ov.AgentConfigPath != "" {
		cfg.AgentConfigPath = ov.AgentConfigPath
	}
	if ov.MCPConfigPath != "" {
		cfg.MCPConfigPath = ov.MCPConfigPath
	}
	if cfg.AgentConfigPath == "" {
		return nil, errs.Config("no agent config given: pass --agent-config or set agent_config_path in config.toml", nil)
	}

	dataDir := cfg.DataDir()

	globalCfg, err := config.LoadGlobalConfig(dataDir)
	if err != nil {
		return nil, err
	}

	credStore := config.NewCredentialStore(cfg.SecurityMethod, cfg.SSHKeyPath)
	if cfg.SecurityMethod == config.SecuritySSHKey {
		credStore.SetPassphrase(os.Getenv("AGENTCORE_SSH_PASSPHRASE"))
	}
	if err := credStore.Load(dataDir); err != nil {
		return nil, errs.Config("load encrypted credentials", err)
	}

	models, err := registry.New(dataDir)
	if err != nil {
		return nil, errs.Config("open model registry", err)
	}
	provider.SetLogger(log)
	if err := globalCfg.RegisterCustomProviders(models); err != nil {
		models.Close()
		return nil, err
	}

	if err := selectStartupModel(models, cfg); err != nil {
		models.Close()
		return nil, err
	}
	current, _ := models.GetCurrent()

	credFor := credentialsFor(globalCfg, credStore)
	if err := checkCredentials(current, credFor(current.Provider)); err != nil {
		models.Close()
		return nil, err
	}

	agentFile, err := config.LoadAgentFile(cfg.AgentConfigPath)
	if err != nil {
		models.Close()
		return nil, err
	}

	tools := tool.New(log)
	mcp := mcpsup.New(tools, log, credStore)

	if cfg.MCPEnabled {
		manifest, err := config.LoadMCPServersFile(cfg.MCPConfigPath)
		if err != nil {
			models.Close()
			return nil, err
		}
		mcp.StartAll(ctx, manifest)
	}

	if err := builtins.RegisterAll(tools, mcp); err != nil {
		models.Close()
		return nil, errs.Config("register builtin tools", err)
	}

	agentConfigs := agentFile.ToAgentConfigs()
	if err := validateAgentTools(agentConfigs, tools); err != nil {
		models.Close()
		return nil, err
	}

	streaming := func() bool { return false }
	manager := agent.NewManager(tools, models, credFor, func() bool { return streaming() }, log)

	for _, ac := range agentConfigs {
		manager.Register(agent.New(ac))
	}

	adapter, err := provider.NewForModel(current, credFor(current.Provider))
	if err != nil {
		models.Close()
		return nil, errs.Provider(current.Provider, "construct startup adapter", err)
	}
	manager.BindAdapter(adapter)

	engine := turn.New(manager, tools, log)
	streaming = engine.IsStreaming

	store, err := persistence.New(dataDir, log)
	if err != nil {
		models.Close()
		return nil, err
	}
	if err := store.StartPruneSchedule("", daysToDuration(cfg.PruneHorizonDays)); err != nil {
		log.Warnw("failed to start prune schedule", "error", err)
	}

	return &App{
		Config:       cfg,
		GlobalConfig: globalCfg,
		Credentials:  credStore,
		Models:       models,
		Tools:        tools,
		MCP:          mcp,
		Manager:      manager,
		Engine:       engine,
		Store:        store,
		Log:          log,
	}, nil
}

// validateAgentTools cross-checks every agent's tool allow-list against
// the Tool Registry once builtins and MCP servers have finished
// registering, so a typo'd tool name is a load-time spec.md §7
// ConfigError instead of a silent miss in Agent.Activate.
func validateAgentTools(configs []agent.Config, tools *tool.Registry) error {
	for _, ac := range configs {
		for _, name := range ac.ToolNames {
			if _, ok := tools.Get(name); !ok {
				return errs.Config(fmt.Sprintf("agent %q: unknown tool %q", ac.Name, name), nil)
			}
		}
	}
	return nil
}

// selectStartupModel resolves the current model from --provider/
// default_model, preferring a model belonging to the requested provider
// when one was named on the CLI.
func selectStartupModel(models *registry.Registry, cfg *config.Config) error {
	if cfg.DefaultModel != "" {
		if err := models.SetCurrent(cfg.DefaultModel); err == nil {
			m, _ := models.GetCurrent()
			if cfg.DefaultProvider == "" || m.Provider == cfg.DefaultProvider {
				return nil
			}
		}
	}
	if cfg.DefaultProvider != "" {
		byProvider := models.ListByProvider(cfg.DefaultProvider)
		if len(byProvider) == 0 {
			return errs.Config(fmt.Sprintf("no models registered for provider %q", cfg.DefaultProvider), nil)
		}
		for _, m := range byProvider {
			if m.Default {
				return models.SetCurrent(m.ID)
			}
		}
		return models.SetCurrent(byProvider[0].ID)
	}
	if _, ok := models.GetCurrent(); ok {
		return nil
	}
	return errs.Config("no current model resolved and no default_provider configured", nil)
}

func daysToDuration(days int) (d time.Duration) {
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// ExitCode maps err to spec.md §6's process exit codes: 0 normal, 1
// configuration error, 2 missing credentials, 3 internal error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrMissingCredentials) {
		return 2
	}
	var cfgErr *errs.ConfigError
	if errors.As(err, &cfgErr) {
		return 1
	}
	return 3
}

// Shutdown releases every resource Start opened, in reverse order.
func (a *App) Shutdown() {
	a.Store.StopPruneSchedule()
	a.MCP.ShutdownAll()
	if err := a.Models.Close(); err != nil {
		a.Log.Warnw("error closing model registry", "error", err)
	}
}
