package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/tool"
)

type fakeAdapter struct {
	name        string
	prompt      string
	tools       []provider.ToolSchema
	clearCalled int
}

func (f *fakeAdapter) Name() string                 { return f.name }
func (f *fakeAdapter) SetSystemPrompt(p string)      { f.prompt = p }
func (f *fakeAdapter) RegisterTool(s provider.ToolSchema) { f.tools = append(f.tools, s) }
func (f *fakeAdapter) ClearTools()                   { f.clearCalled++; f.tools = nil }
func (f *fakeAdapter) SetThinking(provider.ThinkingSpec) bool { return false }
func (f *fakeAdapter) Stream(context.Context, []message.Message) (provider.Handle, error) {
	return nil, nil
}

func newTestTools(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.New(zap.NewNop().Sugar())
	err := reg.Register(tool.Descriptor{
		Name:        "search",
		Description: "search the web",
		InputSchema: map[string]any{"type": "object"},
		Handler:     func(context.Context, map[string]any) (any, error) { return "ok", nil },
	})
	require.NoError(t, err)
	return reg
}

func TestAgentActivateRegistersOnlyAllowedTools(t *testing.T) {
	tools := newTestTools(t)
	a := New(Config{Name: "researcher", ToolNames: []string{"search"}, SystemPromptTmpl: "You are the researcher."})
	fa := &fakeAdapter{name: "fake"}

	require.NoError(t, a.Activate(fa, tools, ""))

	assert.True(t, a.IsActive())
	assert.Contains(t, fa.prompt, "You are the researcher.")
	require.Len(t, fa.tools, 1)
	assert.Equal(t, "search", fa.tools[0].Name)
}

func TestAgentActivateSkipsUnknownToolName(t *testing.T) {
	tools := newTestTools(t)
	a := New(Config{Name: "researcher", ToolNames: []string{"search", "does-not-exist"}})
	fa := &fakeAdapter{}

	require.NoError(t, a.Activate(fa, tools, ""))
	assert.Len(t, fa.tools, 1)
}

func TestAgentDeactivateClearsTools(t *testing.T) {
	tools := newTestTools(t)
	a := New(Config{Name: "researcher", ToolNames: []string{"search"}})
	fa := &fakeAdapter{}
	require.NoError(t, a.Activate(fa, tools, ""))
	// Activate itself clears the adapter's tools once before registering.
	clearsAfterActivate := fa.clearCalled

	a.Deactivate()
	assert.False(t, a.IsActive())
	assert.Equal(t, clearsAfterActivate+1, fa.clearCalled)
}

func TestAgentActivateInjectsTransferPromptOnlyWithTransferTool(t *testing.T) {
	tools := newTestTools(t)

	withTransfer := New(Config{Name: "router", ToolNames: []string{"transfer"}})
	fa1 := &fakeAdapter{}
	require.NoError(t, withTransfer.Activate(fa1, tools, "<Transfering_Agents>...</Transfering_Agents>"))
	assert.Contains(t, fa1.prompt, "Transfering_Agents")

	withoutTransfer := New(Config{Name: "researcher", ToolNames: []string{"search"}})
	fa2 := &fakeAdapter{}
	require.NoError(t, withoutTransfer.Activate(fa2, tools, "<Transfering_Agents>...</Transfering_Agents>"))
	assert.NotContains(t, fa2.prompt, "Transfering_Agents")
}

func TestAgentHistoryReturnsCopy(t *testing.T) {
	a := New(Config{Name: "x"})
	a.Append(message.TextOnly(message.RoleUser, "hi"))

	h := a.History()
	h[0] = message.TextOnly(message.RoleUser, "mutated")

	assert.Equal(t, "hi", a.History()[0].PlainText())
}

func TestAgentTruncateHistory(t *testing.T) {
	a := New(Config{Name: "x"})
	a.Append(message.TextOnly(message.RoleUser, "one"))
	a.Append(message.TextOnly(message.RoleAssistant, "two"))
	a.Append(message.TextOnly(message.RoleUser, "three"))

	a.TruncateHistory(1)
	require.Len(t, a.History(), 1)
	assert.Equal(t, "one", a.History()[0].PlainText())
}
