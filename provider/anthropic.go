package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/registry"
)

// anthropicAdapter implements Adapter against Anthropic's Messages API.
// Grounded on otui's provider/anthropic.go stream-consumption loop,
// extended to emit the full StreamEvent vocabulary (thinking blocks with
// signatures, incremental tool-call argument deltas) rather than only
// text and a post-hoc tool-call scrape.
type anthropicAdapter struct {
	client *anthropic.Client
	model  registry.Model
	log    *zap.SugaredLogger
	cb     *gobreaker.CircuitBreaker[*anthropic.Message]

	mu           sync.Mutex
	systemPrompt string
	tools        *toolSet
	thinking     ThinkingSpec
}

func newAnthropicAdapter(m registry.Model, cfg Config, log *zap.SugaredLogger) (*anthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	client := anthropic.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(cfg.APIKey))

	cbSettings := gobreaker.Settings{
		Name:        "anthropic-adapter",
		MaxRequests: 1,
	}
	return &anthropicAdapter{
		client: &client,
		model:  m,
		log:    log,
		cb:     gobreaker.NewCircuitBreaker[*anthropic.Message](cbSettings),
		tools:  newToolSet(),
	}, nil
}

func (a *anthropicAdapter) Name() string { return "anthropic" }

func (a *anthropicAdapter) SetSystemPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemPrompt = prompt
}

func (a *anthropicAdapter) RegisterTool(schema ToolSchema) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools.add(schema)
}

func (a *anthropicAdapter) ClearTools() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools.clear()
}

// SetThinking implements the budget-based branch of spec.md §4.2: values
// below 1024 are silently raised once non-zero.
func (a *anthropicAdapter) SetThinking(spec ThinkingSpec) bool {
	if spec.Disabled() {
		a.mu.Lock()
		a.thinking = spec
		a.mu.Unlock()
		return true
	}
	if spec.Budget > 0 && spec.Budget < 1024 {
		a.log.Warnw("thinking budget below minimum, raising to 1024", "requested", spec.Budget)
		spec.Budget = 1024
	}
	if spec.Budget == 0 {
		// effort levels are not an Anthropic concept; reject.
		return false
	}
	a.mu.Lock()
	a.thinking = spec
	a.mu.Unlock()
	return true
}

func (a *anthropicAdapter) Stream(ctx context.Context, messages []message.Message) (Handle, error) {
	a.mu.Lock()
	systemPrompt := a.systemPrompt
	tools := a.tools.list()
	thinking := a.thinking
	a.mu.Unlock()

	rest, sysFromHistory := splitSystem(messages)
	if sysFromHistory != "" {
		if systemPrompt != "" {
			systemPrompt += "\n\n" + sysFromHistory
		} else {
			systemPrompt = sysFromHistory
		}
	}

	msgParams, err := a.buildMessages(rest)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model.ID),
		Messages:  msgParams,
		MaxTokens: 4096,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}
	if thinking.Budget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(thinking.Budget))
	}

	events := make(chan message.StreamEvent, 64)
	h := &anthropicHandle{events: events}

	stream := a.client.Messages.NewStreaming(ctx, params)
	h.cancel = func() { _ = stream.Close() }

	// The breaker trips on the connection-establishing first event: a
	// failed handshake or an immediate 4xx/5xx surfaces here, before any
	// partial output reaches the caller. Later mid-stream errors are
	// reported through StopEvent instead, since by then output may
	// already have been delivered and the call cannot be "retried" clean.
	_, err = a.cb.Execute(func() (*anthropic.Message, error) {
		if !stream.Next() {
			return nil, stream.Err()
		}
		return nil, nil
	})
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	go a.consume(stream, events)

	return h, nil
}

func (a *anthropicAdapter) consume(stream *anthropicStream, events chan<- message.StreamEvent) {
	defer close(events)

	toolArgsByID := map[string]string{}
	indexToID := map[int64]string{}
	var inputTokens, outputTokens int64

	// The breaker-gated call in Stream already consumed the first event
	// via stream.Next()/stream.Current(); process it before resuming the
	// normal for-stream.Next() loop so no event is dropped.
	first := true
	for first || stream.Next() {
		first = false
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			inputTokens = ev.Message.Usage.InputTokens
		case anthropic.ContentBlockStartEvent:
			switch block := ev.ContentBlock.AsAny().(type) {
			case anthropic.ToolUseBlock:
				indexToID[ev.Index] = block.ID
				events <- message.ToolCallStartEvent(block.ID, block.Name)
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				events <- message.TextDeltaEvent(d.Text)
			case anthropic.ThinkingDelta:
				events <- message.ThinkingDeltaEvent(d.Thinking)
			case anthropic.SignatureDelta:
				events <- message.ThinkingSignatureEvent([]byte(d.Signature))
			case anthropic.InputJSONDelta:
				if id, ok := indexToID[ev.Index]; ok {
					toolArgsByID[id] += d.PartialJSON
					events <- message.ToolCallArgsDeltaEvent(id, d.PartialJSON)
				}
			}
		case anthropic.ContentBlockStopEvent:
			// end of whichever block this index names; a text/thinking
			// block's stop has no entry here and is a no-op.
			id, ok := indexToID[ev.Index]
			if !ok {
				continue
			}
			delete(indexToID, ev.Index)
			raw := toolArgsByID[id]
			delete(toolArgsByID, id)
			var parsed any
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
					continue // turn engine leaves this call's args nil, failing schema validation downstream
				}
			}
			events <- message.ToolCallEndEvent(id, parsed)
		case anthropic.MessageDeltaEvent:
			outputTokens = ev.Usage.OutputTokens
			if ev.Delta.StopReason != "" {
				events <- mapAnthropicStop(string(ev.Delta.StopReason))
			}
		case anthropic.MessageStopEvent:
			events <- message.UsageUpdateEvent(int(inputTokens), int(outputTokens), a.model.CostUSD(int(inputTokens), int(outputTokens)))
		}
	}
	if err := stream.Err(); err != nil {
		events <- message.StopEvent(message.StopError, fmt.Errorf("anthropic stream: %w", err))
	}
}

func mapAnthropicStop(reason string) message.StreamEvent {
	switch reason {
	case "end_turn", "stop_sequence":
		return message.StopEvent(message.StopEndTurn, nil)
	case "tool_use":
		return message.StopEvent(message.StopToolUse, nil)
	case "max_tokens":
		return message.StopEvent(message.StopMaxTokens, nil)
	default:
		return message.StopEvent(message.StopError, fmt.Errorf("unrecognized stop reason %q", reason))
	}
}

// buildMessages leaves tool-role messages alone: Anthropic represents a
// tool result as an OfToolResult content block inside a user message
// rather than a dedicated role, so the tool_use block an assistant turn
// emitted earlier (toAnthropicBlocks PartToolCall case) gets the matching
// tool_result block the Messages API requires, instead of being
// flattened to prose (spec.md §4.2 responsibility 1 applies only to
// vendors with no tool-result representation at all; Anthropic has one).
func (a *anthropicAdapter) buildMessages(messages []message.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks, err := toAnthropicBlocks(m)
		if err != nil {
			return nil, err
		}
		switch m.Role {
		case message.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func toAnthropicBlocks(m message.Message) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range m.Parts {
		switch p.Kind {
		case message.PartText:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text.Text))
		case message.PartThinking:
			// Preserved verbatim: spec.md §4.2 responsibility 3 and
			// testable property 4 require byte-for-byte resubmission.
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfThinking: &anthropic.ThinkingBlockParam{
					Thinking:  p.Thinking.Text,
					Signature: string(p.Thinking.Signature),
				},
			})
		case message.PartToolCall:
			argsJSON, err := json.Marshal(p.ToolCall.Args)
			if err != nil {
				return nil, fmt.Errorf("marshal tool call args: %w", err)
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    p.ToolCall.ID,
					Name:  p.ToolCall.Name,
					Input: json.RawMessage(argsJSON),
				},
			})
		case message.PartToolResult:
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: p.ToolResult.ID,
					IsError:   anthropic.Bool(p.ToolResult.IsError),
					Content: []anthropic.ToolResultBlockParamContentUnion{
						{OfText: &anthropic.TextBlockParam{Text: flattenToolResult(*p.ToolResult)}},
					},
				},
			})
		case message.PartImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.Image.MIME, string(p.Image.Bytes)))
		}
	}
	if len(blocks) == 0 {
		// spec.md §4.5 tie-break: empty text + pending tool calls still
		// needs a non-empty text part for providers that reject it.
		blocks = append(blocks, anthropic.NewTextBlock(" "))
	}
	return blocks, nil
}

func toAnthropicTools(schemas []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: s.InputSchema["properties"],
				},
			},
		})
	}
	return out
}

type anthropicStream = ssestream.Stream[anthropic.MessageStreamEventUnion]

type anthropicHandle struct {
	events chan message.StreamEvent
	cancel func()
	once   sync.Once
}

func (h *anthropicHandle) Events() <-chan message.StreamEvent { return h.events }

func (h *anthropicHandle) Close() error {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
	return nil
}
