package provider

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
)

// splitSystem pulls every system-role Message's text out of history,
// concatenated in order, for vendors (Anthropic) that take the system
// prompt as a dedicated parameter rather than a message-list entry.
func splitSystem(messages []message.Message) (rest []message.Message, system string) {
	for _, m := range messages {
		if m.Role == message.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.PlainText()
			continue
		}
		rest = append(rest, m)
	}
	return rest, system
}

// reinterpretToolAsUser implements spec.md §4.2 responsibility 1 for
// vendors with no dedicated tool role: a tool-role Message becomes a
// user-role message whose text names the original tool_call_id, so the
// model can still correlate the reply. The canonical Message.Parts is
// never mutated — this only affects the vendor payload built at
// serialization time (resolving spec.md §9 open question 1).
func reinterpretToolAsUser(m message.Message, log *zap.SugaredLogger, provider string) message.Message {
	if m.Role != message.RoleTool {
		return m
	}
	var text, id string
	for _, p := range m.Parts {
		if p.Kind == message.PartToolResult && p.ToolResult != nil {
			id = p.ToolResult.ID
			text += flattenToolResult(*p.ToolResult)
		}
	}
	message.LogLossy(log, provider, []message.DropNotice{{Reason: "tool role reinterpreted as user message", Part: message.PartToolResult}})
	return message.Message{
		Role:      message.RoleUser,
		Parts:     []message.Part{message.Text("[tool_result " + id + "] " + text)},
		Timestamp: m.Timestamp,
	}
}

// flattenToolResult serializes a structured tool result to text for
// vendors/paths that only accept a string content, per spec.md §4.7
// "structured tool-result content serialized to text".
func flattenToolResult(r message.ToolResultPart) string {
	if s, ok := r.Content.(string); ok {
		return s
	}
	b, err := json.Marshal(r.Content)
	if err != nil {
		return ""
	}
	return string(b)
}

// toolSet holds the ToolSchemas an adapter's RegisterTool/ClearTools
// calls leave in place, keyed by name; list returns them in
// first-registration order for the vendor-specific tool-param builders.
type toolSet struct {
	order   []string
	schemas map[string]ToolSchema
}

func newToolSet() *toolSet {
	return &toolSet{schemas: map[string]ToolSchema{}}
}

func (t *toolSet) add(s ToolSchema) {
	if _, exists := t.schemas[s.Name]; !exists {
		t.order = append(t.order, s.Name)
	}
	t.schemas[s.Name] = s
}

func (t *toolSet) clear() {
	t.order = nil
	t.schemas = map[string]ToolSchema{}
}

func (t *toolSet) list() []ToolSchema {
	out := make([]ToolSchema, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.schemas[name])
	}
	return out
}
