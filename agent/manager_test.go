package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/tool"
)

func newTestManager(t *testing.T) (*Manager, *tool.Registry) {
	t.Helper()
	tools := tool.New(zap.NewNop().Sugar())
	require.NoError(t, tools.Register(tool.Descriptor{
		Name:             "transfer",
		EnabledForAgents: []string{"*"},
		Handler:          func(context.Context, map[string]any) (any, error) { return nil, nil },
	}))
	m := NewManager(tools, nil, nil, func() bool { return false }, nil)
	m.BindAdapter(&fakeAdapter{name: "fake"})
	return m, tools
}

func TestManagerSelectEnforcesSingleActiveAgent(t *testing.T) {
	m, _ := newTestManager(t)
	router := New(Config{Name: "router", ToolNames: []string{"transfer"}})
	coder := New(Config{Name: "coder"})
	m.Register(router)
	m.Register(coder)

	require.NoError(t, m.Select("router"))
	assert.True(t, router.IsActive())

	require.NoError(t, m.Select("coder"))
	assert.False(t, router.IsActive())
	assert.True(t, coder.IsActive())
	assert.Equal(t, coder, m.Current())
}

func TestManagerSelectRejectsMidStream(t *testing.T) {
	tools := tool.New(zap.NewNop().Sugar())
	m := NewManager(tools, nil, nil, func() bool { return true }, nil)
	m.BindAdapter(&fakeAdapter{})
	m.Register(New(Config{Name: "router"}))

	err := m.Select("router")
	require.Error(t, err)
}

func TestManagerSelectUnknownAgent(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Select("ghost")
	require.Error(t, err)
}

func TestManagerTransferProjectsSelectedHistoryOnly(t *testing.T) {
	m, _ := newTestManager(t)
	router := New(Config{Name: "router", ToolNames: []string{"transfer"}})
	coder := New(Config{Name: "coder"})
	m.Register(router)
	m.Register(coder)
	require.NoError(t, m.Select("router"))

	router.Append(message.TextOnly(message.RoleUser, "unrelated chit-chat"))
	router.Append(message.TextOnly(message.RoleUser, "please fix the bug in main.go"))
	router.Append(message.TextOnly(message.RoleAssistant, "sure, looking into it"))

	target, err := m.Transfer("router", "coder", "fix the bug in main.go", []int{1})
	require.NoError(t, err)
	assert.Equal(t, coder, target)
	assert.True(t, coder.IsActive())
	assert.False(t, router.IsActive())

	h := coder.History()
	// system prompt + projected message + synthetic task message
	require.Len(t, h, 3)
	assert.Equal(t, message.RoleSystem, h[0].Role)
	assert.Equal(t, "please fix the bug in main.go", h[1].PlainText())
	assert.NotContains(t, h[1].PlainText(), "chit-chat")
	assert.Equal(t, "fix the bug in main.go", h[2].PlainText())
}

func TestManagerTransferDropsOutOfRangeIndicesSilently(t *testing.T) {
	m, _ := newTestManager(t)
	router := New(Config{Name: "router", ToolNames: []string{"transfer"}})
	coder := New(Config{Name: "coder"})
	m.Register(router)
	m.Register(coder)
	require.NoError(t, m.Select("router"))
	router.Append(message.TextOnly(message.RoleUser, "hello"))

	_, err := m.Transfer("router", "coder", "task", []int{0, 99, -1})
	require.NoError(t, err)
	h := coder.History()
	require.Len(t, h, 3) // system + the one valid message + task
}

func TestManagerTransferUnknownTargetFails(t *testing.T) {
	m, _ := newTestManager(t)
	router := New(Config{Name: "router", ToolNames: []string{"transfer"}})
	m.Register(router)
	require.NoError(t, m.Select("router"))

	_, err := m.Transfer("router", "ghost", "task", nil)
	require.Error(t, err)
}

func TestManagerRenderTransferPromptOmitsSelf(t *testing.T) {
	m, _ := newTestManager(t)
	m.Register(New(Config{Name: "router", Description: "routes work"}))
	m.Register(New(Config{Name: "coder", Description: "writes code"}))

	p := m.RenderTransferPrompt("router")
	assert.NotContains(t, p, "- router:")
	assert.Contains(t, p, "- coder: writes code")
}
