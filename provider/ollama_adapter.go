package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/registry"
)

// ollamaAdapter implements Adapter against a local Ollama server. Ollama
// has no thinking-signature concept and no per-token pricing, so
// SetThinking and cost accounting are the adapter's thinnest surface —
// grounded on otui's provider/ollama.go thin-passthrough style, heavily
// doc-commented there because it is otui's reference adapter; this
// adapter keeps that same doc density since it plays the same role here.
type ollamaAdapter struct {
	client *api.Client
	model  registry.Model
	log    *zap.SugaredLogger

	mu           sync.Mutex
	systemPrompt string
	tools        *toolSet
}

func newOllamaAdapter(m registry.Model, cfg Config, log *zap.SugaredLogger) (*ollamaAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &ollamaAdapter{client: client, model: m, log: log, tools: newToolSet()}, nil
}

func (a *ollamaAdapter) Name() string { return "ollama" }

func (a *ollamaAdapter) SetSystemPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemPrompt = prompt
}

func (a *ollamaAdapter) RegisterTool(schema ToolSchema) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools.add(schema)
}

func (a *ollamaAdapter) ClearTools() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools.clear()
}

// SetThinking accepts only a disabled spec and returns false for any
// budget or level: local Ollama models in general use here do not expose
// a thinking/reasoning channel distinct from content.
func (a *ollamaAdapter) SetThinking(spec ThinkingSpec) bool {
	return spec.Disabled()
}

func (a *ollamaAdapter) Stream(ctx context.Context, messages []message.Message) (Handle, error) {
	a.mu.Lock()
	systemPrompt := a.systemPrompt
	tools := a.tools.list()
	a.mu.Unlock()

	apiMessages := a.buildMessages(messages, systemPrompt)
	req := &api.ChatRequest{
		Model:    a.model.ID,
		Messages: apiMessages,
		Stream:   boolPtr(true),
	}
	if len(tools) > 0 {
		req.Tools = toOllamaTools(tools)
	}

	events := make(chan message.StreamEvent, 64)
	done := make(chan struct{})
	h := &ollamaHandle{events: events, done: done}

	go func() {
		defer close(events)
		callID := 0
		err := a.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				events <- message.TextDeltaEvent(resp.Message.Content)
			}
			for _, tc := range resp.Message.ToolCalls {
				id := fmt.Sprintf("ollama-call-%d", callID)
				callID++
				events <- message.ToolCallStartEvent(id, tc.Function.Name)
				events <- message.ToolCallEndEvent(id, map[string]any(tc.Function.Arguments))
			}
			if resp.Done {
				if len(resp.Message.ToolCalls) > 0 {
					events <- message.StopEvent(message.StopToolUse, nil)
				} else {
					events <- message.StopEvent(message.StopEndTurn, nil)
				}
			}
			return nil
		})
		if err != nil {
			events <- message.StopEvent(message.StopError, fmt.Errorf("ollama chat: %w", err))
		}
		close(done)
	}()

	return h, nil
}

func (a *ollamaAdapter) buildMessages(messages []message.Message, systemPrompt string) []api.Message {
	out := make([]api.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, api.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		mm := reinterpretToolAsUser(m, a.log, "ollama")
		out = append(out, api.Message{Role: string(mm.Role), Content: mm.PlainText()})
	}
	return out
}

func toOllamaTools(schemas []ToolSchema) api.Tools {
	out := make(api.Tools, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        s.Name,
				Description: s.Description,
			},
		})
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

type ollamaHandle struct {
	events chan message.StreamEvent
	done   chan struct{}
	once   sync.Once
}

func (h *ollamaHandle) Events() <-chan message.StreamEvent { return h.events }

func (h *ollamaHandle) Close() error {
	h.once.Do(func() {})
	return nil
}
