package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hkdb/agentcore/errs"
	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/registry"
	"github.com/hkdb/agentcore/tool"
)

// Manager is the Agent Manager (AM) singleton: registry of agents,
// current-agent pointer, and orchestrator of transfers. Enforces that
// exactly one agent is active against the current Provider Adapter at a
// time, per spec.md §8 testable property 1.
type Manager struct {
	mu      sync.Mutex
	agents  map[string]*Agent
	current *Agent
	adapter provider.Adapter

	tools  *tool.Registry
	models *registry.Registry
	// credFor resolves a provider's adapter credentials (API key, base
	// URL) by provider name at the moment an adapter is constructed, so
	// SwitchModel across providers never reuses one provider's key for
	// another's adapter.
	credFor func(providerName string) provider.Config

	// streaming reports whether a turn is mid-stream; Select rejects a
	// new selection while true, per spec.md §4.4 "selection during
	// mid-turn is rejected".
	streaming func() bool

	log *zap.SugaredLogger
}

func NewManager(tools *tool.Registry, models *registry.Registry, credFor func(string) provider.Config, streaming func() bool, log *zap.SugaredLogger) *Manager {
	if credFor == nil {
		credFor = func(string) provider.Config { return provider.Config{} }
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		agents:    map[string]*Agent{},
		tools:     tools,
		models:    models,
		credFor:   credFor,
		streaming: streaming,
		log:       log,
	}
}

// Register adds an agent created from the declarative configuration.
// Agents are created inactive, per spec.md §3 Lifecycles.
func (m *Manager) Register(a *Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.Name] = a
}

func (m *Manager) Get(name string) (*Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[name]
	return a, ok
}

// Names lists every registered agent's name, sorted for deterministic
// output (used by RenderTransferPrompt and /agent listing).
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.agents))
	for n := range m.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Current() *Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// BindAdapter installs the active Provider Adapter the manager selects
// agents against. Called once at startup with the configured model's
// adapter; SwitchModel takes over afterward.
func (m *Manager) BindAdapter(a provider.Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapter = a
}

// Select implements spec.md §4.4 AgentManager.select: deactivate the
// previous agent (if any), then activate the named agent against the
// current Provider Adapter.
func (m *Manager) Select(name string) error {
	if m.streaming != nil && m.streaming() {
		return errs.State("STREAMING", "agent selection rejected mid-turn")
	}

	m.mu.Lock()
	target, ok := m.agents[name]
	prev := m.current
	adapter := m.adapter
	m.mu.Unlock()

	if !ok {
		return errs.Config(fmt.Sprintf("unknown agent %q", name), nil)
	}

	// A remote agent (spec.md §6 remote_endpoint) activates against its
	// own dedicated Adapter that forwards the turn over A2A, never the
	// locally bound provider adapter.
	if target.isRemote {
		adapter = provider.NewRemoteAdapter(target.endpoint, nil)
	} else if adapter == nil {
		return errs.Config("no provider adapter bound to agent manager", nil)
	}

	if prev != nil {
		prev.Deactivate()
	}

	prompt := m.RenderTransferPrompt(name)
	if err := target.Activate(adapter, m.tools, prompt); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = target
	m.mu.Unlock()
	return nil
}

// SwitchModel implements spec.md §4.4 AgentManager.switch_model: resolve
// the Provider Adapter for model_id's provider; if it differs from the
// current adapter, deactivate-then-reactivate the current agent on the
// new adapter, re-registering its tools. History is already canonical
// message.Message, so no MN translation step is needed here — each
// adapter does canonical-to-vendor translation internally at Stream time.
func (m *Manager) SwitchModel(modelID string) error {
	if m.streaming != nil && m.streaming() {
		return errs.State("STREAMING", "model switch rejected mid-turn")
	}

	mdl, ok := m.models.Get(modelID)
	if !ok {
		return errs.Config(fmt.Sprintf("unknown model %q", modelID), nil)
	}

	newAdapter, err := provider.NewForModel(mdl, m.credFor(mdl.Provider))
	if err != nil {
		return errs.Provider(mdl.Provider, "failed to construct adapter", err)
	}

	m.mu.Lock()
	cur := m.current
	old := m.adapter
	m.adapter = newAdapter
	m.mu.Unlock()

	if err := m.models.SetCurrent(modelID); err != nil {
		return err
	}

	if cur == nil || old == newAdapter {
		return nil
	}

	cur.Deactivate()
	prompt := m.RenderTransferPrompt(cur.Name)
	return cur.Activate(newAdapter, m.tools, prompt)
}

// RenderTransferPrompt builds the <Transfering_Agents> block described
// in SPEC_FULL.md SUPPLEMENTED FEATURES item 1, grounded on AgentCrew's
// get_transfer_system_prompt. Returns "" if fewer than two agents are
// registered; it does not look at whether the named agent has a
// "transfer" tool — Agent.Activate only appends it for agents that do.
func (m *Manager) RenderTransferPrompt(forAgent string) string {
	names := m.Names()
	if len(names) < 2 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<Transfering_Agents>\n<Available_Agents>\n")
	for _, n := range names {
		if n == forAgent {
			continue
		}
		a, _ := m.Get(n)
		b.WriteString(fmt.Sprintf("- %s: %s\n", n, a.Description))
	}
	b.WriteString("</Available_Agents>\n")
	b.WriteString("To hand off, call the `transfer` tool with target_agent, task, and relevant_messages ")
	b.WriteString("(indices into your own history). The target owns the conversation afterward; there is no return.\n")
	b.WriteString("</Transfering_Agents>")
	return b.String()
}

// Transfer implements spec.md §4.4 AgentManager.transfer and testable
// property 2 (history isolation). It is the Go counterpart of
// AgentCrew's perform_transfer: builds the target's new turn context from
// (a) its rendered system prompt, (b) the selected slice of the source's
// history, (c) a synthetic user message carrying task — and installs it
// as the target's *entire* history for this turn, never mutating the
// source.
func (m *Manager) Transfer(sourceName, targetName, task string, relevantIndices []int) (*Agent, error) {
	source, ok := m.Get(sourceName)
	if !ok {
		return nil, errs.Transfer(targetName, fmt.Sprintf("unknown source agent %q", sourceName), nil)
	}
	target, ok := m.Get(targetName)
	if !ok {
		return nil, errs.Transfer(targetName, "unknown target agent", nil)
	}

	srcHistory := source.History()

	var projected []message.Message
	maxIdx := -1
	for _, idx := range relevantIndices {
		// spec.md §4.4 / §9 open question 2: out-of-range indices are
		// dropped silently, never failing the transfer.
		if idx < 0 || idx >= len(srcHistory) {
			continue
		}
		projected = append(projected, srcHistory[idx])
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	prompt := m.RenderTransferPrompt(targetName)
	systemMsg := message.TextOnly(message.RoleSystem, target.RenderSystemPrompt(prompt))
	taskMsg := message.TextOnly(message.RoleUser, task)

	newHistory := make([]message.Message, 0, len(projected)+2)
	newHistory = append(newHistory, systemMsg)
	newHistory = append(newHistory, projected...)
	newHistory = append(newHistory, taskMsg)

	target.ReplaceHistory(newHistory)
	if maxIdx >= 0 {
		source.markShared(targetName, maxIdx+1)
		m.log.Debugw("agent history (re)shared on transfer", "source", source.Name, "target", targetName, "shared_through_index", maxIdx)
	}

	if err := m.Select(targetName); err != nil {
		return nil, err
	}
	return target, nil
}
