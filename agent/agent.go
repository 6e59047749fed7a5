// Package agent implements the Agent (A) and Agent Manager (AM) of
// spec.md §4.4, grounded on AgentCrew's modules/agents/manager.py —
// particularly its select_agent/perform_transfer/get_transfer_system_prompt
// trio — translated from a Python singleton into an explicitly
// constructed Go struct per spec.md §9's "explicit registries" redesign
// note.
package agent

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/tool"
)

// Config is the declarative record an Agent is built from, matching
// spec.md §6's agent configuration file fields.
type Config struct {
	Name             string
	Description      string
	SystemPromptTmpl string
	ToolNames        []string
	Temperature      *float64
	IsRemote         bool
	Endpoint         string
}

// Agent is a (name, system-prompt template, tool allow-list,
// temperature, private history) record with activation lifecycle, per
// spec.md §3.
type Agent struct {
	mu sync.Mutex

	Name             string
	Description      string
	systemPromptTmpl string
	toolNames        map[string]bool
	temperature      *float64
	isRemote         bool
	endpoint         string

	history []message.Message
	active  bool

	adapter provider.Adapter

	// sharedWith tracks, per target agent name, one past the highest
	// source-history index already shared via a prior transfer — SUPPLEMENTED FEATURES
	// item 2 in SPEC_FULL.md, mirroring AgentCrew's shared_context_pool.
	sharedWith map[string]int
}

func New(cfg Config) *Agent {
	names := map[string]bool{}
	for _, n := range cfg.ToolNames {
		names[n] = true
	}
	return &Agent{
		Name:             cfg.Name,
		Description:      cfg.Description,
		systemPromptTmpl: cfg.SystemPromptTmpl,
		toolNames:        names,
		temperature:      cfg.Temperature,
		isRemote:         cfg.IsRemote,
		endpoint:         cfg.Endpoint,
		sharedWith:       map[string]int{},
	}
}

// ToolNames returns the agent's tool allow-list as a slice.
func (a *Agent) ToolNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.toolNames))
	for n := range a.toolNames {
		out = append(out, n)
	}
	return out
}

func (a *Agent) HasTool(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.toolNames[name]
}

// History returns a snapshot copy of the agent's private message
// history. Callers must not rely on mutating the returned slice.
func (a *Agent) History() []message.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]message.Message, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) Append(m message.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
}

// ReplaceHistory overwrites the agent's entire history — used by
// AgentManager.Transfer to install the projected context per spec.md
// §4.4 ("this context replaces the target's history for this turn").
func (a *Agent) ReplaceHistory(h []message.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = h
}

// TruncateHistory keeps only the first n messages; an n at or past the
// history's length leaves it unchanged.
func (a *Agent) TruncateHistory(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < len(a.history) {
		a.history = a.history[:n]
	}
}

// IsRemote reports whether this agent was configured with a
// remote_endpoint (spec.md §6), in which case it activates against a
// provider.RemoteAdapter instead of the locally bound one.
func (a *Agent) IsRemote() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isRemote
}

func (a *Agent) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Adapter returns the Provider Adapter this agent is currently activated
// against, or nil if inactive. The Turn Engine uses this to open streams
// without needing its own reference to the agent.Manager.
func (a *Agent) Adapter() provider.Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.adapter
}

// RenderSystemPrompt substitutes spec.md §6's documented placeholders
// ({current_date}) into the agent's template. A narrow, fixed placeholder
// set is deliberately handled with a plain string replacer rather than
// text/template — see DESIGN.md.
func (a *Agent) RenderSystemPrompt(extra string) string {
	a.mu.Lock()
	tmpl := a.systemPromptTmpl
	a.mu.Unlock()

	replaced := strings.NewReplacer(
		"{current_date}", time.Now().Format("2006-01-02"),
	).Replace(tmpl)

	if extra != "" {
		if replaced != "" {
			replaced += "\n\n" + extra
		} else {
			replaced = extra
		}
	}
	return replaced
}

// Activate implements spec.md §4.4 Agent.activate: installs the
// rendered system prompt, clears and re-registers tools from the
// registry, and marks the agent active against adapter.
func (a *Agent) Activate(adapter provider.Adapter, tools *tool.Registry, transferPrompt string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	extra := ""
	if a.toolNames["transfer"] {
		extra = transferPrompt
	}
	prompt := a.renderSystemPromptLocked(extra)
	adapter.SetSystemPrompt(prompt)
	adapter.ClearTools()

	for name := range a.toolNames {
		d, ok := tools.Get(name)
		if !ok {
			continue // bootstrap.validateAgentTools rejects unknown tool names as a ConfigError before Register/Activate ever runs
		}
		adapter.RegisterTool(provider.ToolSchema{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}

	a.adapter = adapter
	a.active = true
	return nil
}

func (a *Agent) renderSystemPromptLocked(extra string) string {
	replaced := strings.NewReplacer("{current_date}", time.Now().Format("2006-01-02")).Replace(a.systemPromptTmpl)
	if extra != "" {
		if replaced != "" {
			replaced += "\n\n" + extra
		} else {
			replaced = extra
		}
	}
	return replaced
}

// Deactivate implements spec.md §4.4 Agent.deactivate.
func (a *Agent) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adapter != nil {
		a.adapter.ClearTools()
	}
	a.active = false
}

// SharedWith returns one past the highest source-history index already
// shared with target (0 if nothing has been shared), as recorded by
// Manager.Transfer.
func (a *Agent) SharedWith(target string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sharedWith[target]
}

func (a *Agent) markShared(target string, upTo int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if upTo > a.sharedWith[target] {
		a.sharedWith[target] = upTo
	}
}

func (a *Agent) String() string {
	return fmt.Sprintf("Agent(%s, tools=%v, active=%v)", a.Name, a.ToolNames(), a.IsActive())
}
