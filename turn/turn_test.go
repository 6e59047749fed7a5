package turn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/agent"
	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/tool"
)

// scriptedHandle replays a fixed event sequence, mimicking one vendor
// Stream() call for the purpose of exercising the state machine without
// a real provider.
type scriptedHandle struct {
	events chan message.StreamEvent
}

func (h *scriptedHandle) Events() <-chan message.StreamEvent { return h.events }
func (h *scriptedHandle) Close() error                       { return nil }

func newScriptedHandle(evs ...message.StreamEvent) *scriptedHandle {
	ch := make(chan message.StreamEvent, len(evs))
	for _, e := range evs {
		ch <- e
	}
	close(ch)
	return &scriptedHandle{events: ch}
}

// scriptedAdapter returns one handle per call from a queue, so a test can
// script a STREAMING -> TOOLS -> STREAMING round trip.
type scriptedAdapter struct {
	name    string
	handles []*scriptedHandle
	calls   int
}

func (a *scriptedAdapter) Name() string                          { return a.name }
func (a *scriptedAdapter) SetSystemPrompt(string)                 {}
func (a *scriptedAdapter) RegisterTool(provider.ToolSchema)       {}
func (a *scriptedAdapter) ClearTools()                            {}
func (a *scriptedAdapter) SetThinking(provider.ThinkingSpec) bool { return true }
func (a *scriptedAdapter) Stream(context.Context, []message.Message) (provider.Handle, error) {
	h := a.handles[a.calls]
	a.calls++
	return h, nil
}

func newTestEngine(t *testing.T, scripted *scriptedAdapter, cfg agent.Config) (*Engine, *agent.Agent) {
	t.Helper()
	tools := tool.New(zap.NewNop().Sugar())
	m := agent.NewManager(tools, nil, nil, func() bool { return false }, zap.NewNop().Sugar())
	m.BindAdapter(scripted)
	a := agent.New(cfg)
	m.Register(a)
	require.NoError(t, m.Select(a.Name))
	e := New(m, tools, zap.NewNop().Sugar())
	return e, a
}

func TestEngineEndTurnCommitsDraftAndReturnsIdle(t *testing.T) {
	scripted := &scriptedAdapter{name: "fake", handles: []*scriptedHandle{
		newScriptedHandle(
			message.TextDeltaEvent("hello "),
			message.TextDeltaEvent("world"),
			message.StopEvent(message.StopEndTurn, nil),
		),
	}}
	e, a := newTestEngine(t, scripted, agent.Config{Name: "assistant"})

	var states []State
	xfer, err := e.Run(context.Background(), "hi", func(n Notification) {
		if n.NewState != "" {
			states = append(states, n.NewState)
		}
	})
	require.NoError(t, err)
	assert.Nil(t, xfer)
	assert.Equal(t, StateIdle, e.State())
	assert.Contains(t, states, StateStreaming)
	assert.Contains(t, states, StateIdle)

	h := a.History()
	require.Len(t, h, 2) // user + assistant
	assert.Equal(t, "hello world", h[1].PlainText())
}

func TestEngineToolUseRoundTripsBackToStreaming(t *testing.T) {
	tools := tool.New(zap.NewNop().Sugar())
	require.NoError(t, tools.Register(tool.Descriptor{
		Name:             "calc",
		EnabledForAgents: []string{"*"},
		Handler: func(context.Context, map[string]any) (any, error) {
			return "4", nil
		},
	}))

	scripted := &scriptedAdapter{name: "fake", handles: []*scriptedHandle{
		newScriptedHandle(
			message.ToolCallStartEvent("call-1", "calc"),
			message.ToolCallEndEvent("call-1", map[string]any{"a": 2, "b": 2}),
			message.StopEvent(message.StopToolUse, nil),
		),
		newScriptedHandle(
			message.TextDeltaEvent("the answer is 4"),
			message.StopEvent(message.StopEndTurn, nil),
		),
	}}

	m := agent.NewManager(tools, nil, nil, func() bool { return false }, zap.NewNop().Sugar())
	m.BindAdapter(scripted)
	a := agent.New(agent.Config{Name: "assistant", ToolNames: []string{"calc"}})
	m.Register(a)
	require.NoError(t, m.Select("assistant"))
	e := New(m, tools, zap.NewNop().Sugar())

	var toolNotifications []Notification
	xfer, err := e.Run(context.Background(), "what's 2+2?", func(n Notification) {
		if n.ToolResult != nil {
			toolNotifications = append(toolNotifications, n)
		}
	})
	require.NoError(t, err)
	assert.Nil(t, xfer)
	require.Len(t, toolNotifications, 1)
	assert.False(t, toolNotifications[0].ToolResult.IsError)
	assert.Equal(t, "4", toolNotifications[0].ToolResult.Content)

	h := a.History()
	// user, assistant(tool_call), tool(result), assistant(final text)
	require.Len(t, h, 4)
	assert.Equal(t, message.RoleTool, h[2].Role)
	assert.Equal(t, "the answer is 4", h[3].PlainText())
}

func TestEngineTransferInterceptsSiblingCalls(t *testing.T) {
	tools := tool.New(zap.NewNop().Sugar())
	require.NoError(t, tools.Register(tool.Descriptor{
		Name:             "transfer",
		EnabledForAgents: []string{"*"},
		Handler:          func(context.Context, map[string]any) (any, error) { return nil, nil },
	}))
	require.NoError(t, tools.Register(tool.Descriptor{
		Name:             "search",
		EnabledForAgents: []string{"*"},
		Handler:          func(context.Context, map[string]any) (any, error) { return "irrelevant", nil },
	}))

	scripted := &scriptedAdapter{name: "fake", handles: []*scriptedHandle{
		newScriptedHandle(
			message.ToolCallStartEvent("call-1", "search"),
			message.ToolCallEndEvent("call-1", map[string]any{"q": "x"}),
			message.ToolCallStartEvent("call-2", "transfer"),
			message.ToolCallEndEvent("call-2", map[string]any{
				"target_agent":      "coder",
				"task":              "write the fix",
				"relevant_messages": []any{0.0},
			}),
			message.StopEvent(message.StopToolUse, nil),
		),
	}}

	m := agent.NewManager(tools, nil, nil, func() bool { return false }, zap.NewNop().Sugar())
	m.BindAdapter(scripted)
	router := agent.New(agent.Config{Name: "router", ToolNames: []string{"transfer", "search"}})
	m.Register(router)
	m.Register(agent.New(agent.Config{Name: "coder"}))
	require.NoError(t, m.Select("router"))
	e := New(m, tools, zap.NewNop().Sugar())

	var sawToolInvocation bool
	xfer, err := e.Run(context.Background(), "fix the bug", func(n Notification) {
		if n.ToolResult != nil {
			sawToolInvocation = true
		}
	})
	require.NoError(t, err)
	require.NotNil(t, xfer)
	assert.Equal(t, "coder", xfer.TargetAgent)
	assert.Equal(t, "write the fix", xfer.Task)
	assert.Equal(t, []int{0}, xfer.RelevantIndices)
	assert.False(t, sawToolInvocation, "transfer must suppress sibling tool execution")
}

func TestEngineRejectsConcurrentRun(t *testing.T) {
	scripted := &scriptedAdapter{name: "fake", handles: []*scriptedHandle{
		newScriptedHandle(message.StopEvent(message.StopEndTurn, nil)),
	}}
	e, _ := newTestEngine(t, scripted, agent.Config{Name: "assistant"})
	e.setState(StateStreaming)

	_, err := e.Run(context.Background(), "hi", func(Notification) {})
	require.Error(t, err)
}

func TestEngineCancelDiscardsDraftHistoryUnchanged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan message.StreamEvent)
	scripted := &scriptedAdapter{name: "fake", handles: []*scriptedHandle{{events: ch}}}
	e, a := newTestEngine(t, scripted, agent.Config{Name: "assistant"})

	go func() {
		cancel()
		close(ch)
	}()

	_, err := e.Run(ctx, "hi", func(Notification) {})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, e.State())
	h := a.History()
	require.Len(t, h, 1) // only the user message; no assistant draft committed
	assert.Equal(t, message.RoleUser, h[0].Role)
}

// TestEngineResumeDoesNotReappendUserMessage guards the post-transfer
// hand-off path: a caller that already installed the pending user(task)
// message (as agent.Manager.Transfer does) must be able to resume the
// turn without the engine appending that message a second time.
func TestEngineResumeDoesNotReappendUserMessage(t *testing.T) {
	scripted := &scriptedAdapter{name: "fake", handles: []*scriptedHandle{
		newScriptedHandle(
			message.TextDeltaEvent("done"),
			message.StopEvent(message.StopEndTurn, nil),
		),
	}}
	e, a := newTestEngine(t, scripted, agent.Config{Name: "coder"})
	a.ReplaceHistory([]message.Message{
		message.TextOnly(message.RoleSystem, "be helpful"),
		message.TextOnly(message.RoleUser, "fix the bug"),
	})

	xfer, err := e.Resume(context.Background(), func(Notification) {})
	require.NoError(t, err)
	assert.Nil(t, xfer)

	h := a.History()
	require.Len(t, h, 3)
	assert.Equal(t, message.RoleSystem, h[0].Role)
	assert.Equal(t, message.RoleUser, h[1].Role)
	assert.Equal(t, "fix the bug", h[1].PlainText())
	assert.Equal(t, message.RoleAssistant, h[2].Role)
}
