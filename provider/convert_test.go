package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkdb/agentcore/message"
)

func TestSplitSystem(t *testing.T) {
	msgs := []message.Message{
		message.TextOnly(message.RoleSystem, "be terse"),
		message.TextOnly(message.RoleUser, "hi"),
		message.TextOnly(message.RoleSystem, "never lie"),
	}
	rest, sys := splitSystem(msgs)
	require.Len(t, rest, 1)
	assert.Equal(t, message.RoleUser, rest[0].Role)
	assert.Equal(t, "be terse\n\nnever lie", sys)
}

func TestReinterpretToolAsUser(t *testing.T) {
	m := message.Message{
		Role:       message.RoleTool,
		ToolCallID: "t1",
		Parts:      []message.Part{message.ToolResult("t1", "42", false)},
	}
	out := reinterpretToolAsUser(m, nil, "test")
	assert.Equal(t, message.RoleUser, out.Role)
	assert.Contains(t, out.PlainText(), "t1")
	assert.Contains(t, out.PlainText(), "42")
}

func TestReinterpretToolAsUserReadsIDFromPart(t *testing.T) {
	// turn.Engine never sets Message.ToolCallID on tool-result messages
	// (only the PartToolResult carries the id) — the id must still surface.
	m := message.Message{
		Role:  message.RoleTool,
		Parts: []message.Part{message.ToolResult("call-7", "ok", false)},
	}
	out := reinterpretToolAsUser(m, nil, "test")
	assert.Contains(t, out.PlainText(), "call-7")
}

func TestReinterpretToolAsUserLeavesOthersAlone(t *testing.T) {
	m := message.TextOnly(message.RoleAssistant, "hello")
	out := reinterpretToolAsUser(m, nil, "test")
	assert.Equal(t, message.RoleAssistant, out.Role)
}

func TestSanitizeToolNameRoundTrip(t *testing.T) {
	sanitized := sanitizeToolName("fs.read")
	assert.Equal(t, "fs__read", sanitized)
	assert.Equal(t, "fs.read", UnsanitizeToolName(sanitized))
}

func TestStripProviderPrefix(t *testing.T) {
	assert.Equal(t, "llama-3.2-90b-instruct", StripProviderPrefix("meta-llama/llama-3.2-90b-instruct"))
	assert.Equal(t, "gpt-5", StripProviderPrefix("gpt-5"))
}

func TestParseLeakedJSONToolCalls(t *testing.T) {
	calls := parseLeakedJSONToolCalls(`{"tool": "web_search", "arguments": {"query": "go"}}`)
	require.Len(t, calls, 1)
	assert.Equal(t, "web_search", calls[0].name)

	assert.Empty(t, parseLeakedJSONToolCalls("just plain text"))
}

func TestThinkingSpecDisabled(t *testing.T) {
	assert.True(t, ThinkingSpec{}.Disabled())
	assert.False(t, ThinkingSpec{Budget: 2000}.Disabled())
	assert.False(t, ThinkingSpec{Level: "high"}.Disabled())
}

func TestToolSetOrderPreserved(t *testing.T) {
	ts := newToolSet()
	ts.add(ToolSchema{Name: "b"})
	ts.add(ToolSchema{Name: "a"})
	ts.add(ToolSchema{Name: "b"})
	got := ts.list()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "a", got[1].Name)
}

func TestValidateProvider(t *testing.T) {
	assert.NoError(t, ValidateProvider("anthropic", false))
	assert.Error(t, ValidateProvider("acme-llm", false))
	assert.NoError(t, ValidateProvider("acme-llm", true))
}
