package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/registry"
)

// openaiAdapter implements Adapter against the OpenAI Chat Completions
// API and, interchangeably, any OpenAI-compatible custom endpoint from
// spec.md §6's custom_llm_providers — the same wire shape, a different
// base URL and key. This generalizes otui's separate openai.go and
// openrouter.go: vendor-prefix stripping and tool-name sanitization
// (otui's stripProviderPrefix / convertToolNamesForOpenRouter) now apply
// unconditionally, since any OpenAI-compatible gateway may proxy
// vendor-prefixed model ids or restrict tool-name characters.
type openaiAdapter struct {
	client openai.Client
	model  registry.Model
	log    *zap.SugaredLogger
	cb     *gobreaker.CircuitBreaker[struct{}]

	mu           sync.Mutex
	systemPrompt string
	tools        *toolSet
	thinking     ThinkingSpec
}

func newOpenAIAdapter(m registry.Model, cfg Config, log *zap.SugaredLogger) (*openaiAdapter, error) {
	if cfg.APIKey == "" && m.Provider == "openai" {
		return nil, fmt.Errorf("openai api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = m.APIBaseURL
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	client := openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(cfg.APIKey))

	return &openaiAdapter{
		client: client,
		model:  m,
		log:    log,
		cb:     gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{Name: "openai-adapter-" + m.Provider}),
		tools:  newToolSet(),
	}, nil
}

func (a *openaiAdapter) Name() string { return a.model.Provider }

func (a *openaiAdapter) SetSystemPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemPrompt = prompt
}

func (a *openaiAdapter) RegisterTool(schema ToolSchema) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools.add(schema)
}

func (a *openaiAdapter) ClearTools() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools.clear()
}

// SetThinking implements the effort-based branch: only {low, medium,
// high} are accepted, per spec.md §4.2.
func (a *openaiAdapter) SetThinking(spec ThinkingSpec) bool {
	if spec.Disabled() {
		a.mu.Lock()
		a.thinking = spec
		a.mu.Unlock()
		return true
	}
	switch spec.Level {
	case "low", "medium", "high":
		a.mu.Lock()
		a.thinking = spec
		a.mu.Unlock()
		return true
	default:
		return false
	}
}

func (a *openaiAdapter) Stream(ctx context.Context, messages []message.Message) (Handle, error) {
	a.mu.Lock()
	systemPrompt := a.systemPrompt
	tools := a.tools.list()
	thinking := a.thinking
	a.mu.Unlock()

	msgs := a.buildMessages(messages, systemPrompt)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model.ID),
		Messages: msgs,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}
	if thinking.Level != "" {
		params.ReasoningEffort = reasoningEffort(thinking.Level)
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	events := make(chan message.StreamEvent, 64)
	h := &openaiHandle{events: events, cancel: func() { _ = stream.Close() }}

	// As in the Anthropic adapter, the breaker only guards the
	// connection-establishing first chunk; later failures surface as a
	// StopEvent instead of tripping the breaker on partially-delivered
	// output.
	_, err := a.cb.Execute(func() (struct{}, error) {
		if !stream.Next() {
			return struct{}{}, stream.Err()
		}
		return struct{}{}, nil
	})
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	go a.consume(stream, events)
	return h, nil
}

func (a *openaiAdapter) consume(stream *openaiStream, events chan<- message.StreamEvent) {
	defer close(events)

	acc := openai.ChatCompletionAccumulator{}
	seenToolCallIDs := map[string]bool{}
	var contentBuilder strings.Builder
	apiToolCallsDetected := false

	first := true
	for first || stream.Next() {
		first = false
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			apiToolCallsDetected = true
			id := tool.ID
			if !seenToolCallIDs[id] {
				seenToolCallIDs[id] = true
				events <- message.ToolCallStartEvent(id, UnsanitizeToolName(tool.Name))
			}
			var parsed any
			if err := json.Unmarshal([]byte(tool.Arguments), &parsed); err == nil {
				events <- message.ToolCallEndEvent(id, parsed)
			}
		}

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				contentBuilder.WriteString(delta.Content)
				events <- message.TextDeltaEvent(delta.Content)
			}
			if chunk.Choices[0].FinishReason != "" {
				events <- mapOpenAIStop(string(chunk.Choices[0].FinishReason))
			}
		}
	}
	if err := stream.Err(); err != nil {
		events <- message.StopEvent(message.StopError, fmt.Errorf("openai stream: %w", err))
		return
	}

	if acc.Usage.TotalTokens > 0 {
		in, out := int(acc.Usage.PromptTokens), int(acc.Usage.CompletionTokens)
		events <- message.UsageUpdateEvent(in, out, a.model.CostUSD(in, out))
	}

	// Safety net from otui's ParseLeakedJSONToolCalls/ParseLeakedXMLToolCalls:
	// some OpenAI-compatible backends emit tool calls as plain text instead
	// of structured deltas when the model wasn't fine-tuned for function
	// calling strictly.
	if !apiToolCallsDetected {
		if calls := parseLeakedJSONToolCalls(contentBuilder.String()); len(calls) > 0 {
			for _, c := range calls {
				events <- message.ToolCallStartEvent(c.id, c.name)
				events <- message.ToolCallEndEvent(c.id, c.args)
			}
		}
	}
}

func mapOpenAIStop(reason string) message.StreamEvent {
	switch reason {
	case "stop":
		return message.StopEvent(message.StopEndTurn, nil)
	case "tool_calls":
		return message.StopEvent(message.StopToolUse, nil)
	case "length":
		return message.StopEvent(message.StopMaxTokens, nil)
	default:
		return message.StopEvent(message.StopError, fmt.Errorf("unrecognized finish reason %q", reason))
	}
}

func (a *openaiAdapter) buildMessages(messages []message.Message, systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			out = append(out, openai.SystemMessage(m.PlainText()))
		case message.RoleUser:
			out = append(out, openai.UserMessage(m.PlainText()))
		case message.RoleAssistant:
			out = append(out, buildOpenAIAssistant(m))
		case message.RoleTool:
			for _, p := range m.Parts {
				if p.Kind == message.PartToolResult && p.ToolResult != nil {
					out = append(out, openai.ToolMessage(flattenToolResult(*p.ToolResult), p.ToolResult.ID))
				}
			}
		}
	}
	return out
}

func buildOpenAIAssistant(m message.Message) openai.ChatCompletionMessageParamUnion {
	text := m.PlainText()
	calls := m.ToolCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(text)
	}
	toolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, c := range calls {
		argsJSON, _ := json.Marshal(c.Args)
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: c.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      c.Name,
					Arguments: string(argsJSON),
				},
			},
		})
	}
	msg := openai.AssistantMessage(text)
	msg.OfAssistant.ToolCalls = toolCalls
	return msg
}

func toOpenAITools(schemas []ToolSchema) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        sanitizeToolName(s.Name),
			Description: openai.String(s.Description),
			Parameters:  s.InputSchema,
		}))
	}
	return out
}

// sanitizeToolName mirrors otui's convertToolNamesForOpenRouter: tool
// names must match ^[a-zA-Z0-9_-]{1,64}$ on some OpenAI-compatible
// gateways, so namespaced MCP names ("fs.read") get each dot converted
// to a double underscore ("fs__read") for the wire call. Tool.Registry's
// canonical name is unaffected; consume maps names back with
// UnsanitizeToolName as tool calls arrive.
func sanitizeToolName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}

// UnsanitizeToolName reverses sanitizeToolName for the name carried by a
// ToolCallStart, so the Turn Engine looks up the Tool Registry's name.
func UnsanitizeToolName(name string) string {
	return strings.ReplaceAll(name, "__", ".")
}

// StripProviderPrefix mirrors otui's openrouter.go display-name helper:
// "meta-llama/llama-3.2-90b-instruct" -> "llama-3.2-90b-instruct". Used to
// derive a custom_llm_providers model's display name when the config
// entry leaves one unset.
func StripProviderPrefix(modelID string) string {
	if idx := strings.LastIndex(modelID, "/"); idx >= 0 {
		return modelID[idx+1:]
	}
	return modelID
}

type leakedToolCall struct {
	id   string
	name string
	args any
}

// parseLeakedJSONToolCalls is adapted from otui's provider/validation.go
// leaked-tool-call scraper: some OpenAI-compatible backends (notably
// smaller local models proxied through an OpenAI-compatible gateway)
// write `{"tool": "name", "arguments": {...}}` directly into the text
// stream instead of emitting structured deltas.
func parseLeakedJSONToolCalls(text string) []leakedToolCall {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil
	}
	var raw struct {
		Tool      string         `json:"tool"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil
	}
	name := raw.Tool
	if name == "" {
		name = raw.Name
	}
	if name == "" {
		return nil
	}
	return []leakedToolCall{{id: "leaked-0", name: name, args: raw.Arguments}}
}

// reasoningEffort adapts a spec-level level string to the SDK's
// reasoning-effort enum without importing the shared param package at
// the call site twice.
func reasoningEffort(level string) openai.ReasoningEffort {
	return openai.ReasoningEffort(level)
}

type openaiStream = ssestream.Stream[openai.ChatCompletionChunk]

type openaiHandle struct {
	events chan message.StreamEvent
	cancel func()
	once   sync.Once
}

func (h *openaiHandle) Events() <-chan message.StreamEvent { return h.events }

func (h *openaiHandle) Close() error {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
	return nil
}
