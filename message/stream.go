package message

import (
	"encoding/json"
	"errors"
)

// StreamEventKind discriminates a StreamEvent's variant. Provider adapters
// emit a forward-only sequence of these; the turn engine is the only
// consumer that interprets them as state-machine transitions.
type StreamEventKind string

const (
	EventTextDelta         StreamEventKind = "text_delta"
	EventThinkingDelta     StreamEventKind = "thinking_delta"
	EventThinkingSignature StreamEventKind = "thinking_signature"
	EventToolCallStart     StreamEventKind = "tool_call_start"
	EventToolCallArgsDelta StreamEventKind = "tool_call_args_delta"
	EventToolCallEnd       StreamEventKind = "tool_call_end"
	EventUsageUpdate       StreamEventKind = "usage_update"
	EventStop              StreamEventKind = "stop"
)

// StopReason names why a stream ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopError     StopReason = "error"
)

// StreamEvent is the uniform event type every Provider Adapter emits,
// regardless of vendor. Exactly one of the typed fields is populated,
// selected by Kind — mirroring the tagged-Part pattern in message.go so
// callers switch on a single enum instead of type-asserting an interface.
type StreamEvent struct {
	Kind StreamEventKind `json:"kind"`

	TextDelta string `json:"text_delta,omitempty"`

	ThinkingDelta     string `json:"thinking_delta,omitempty"`
	ThinkingSignature []byte `json:"thinking_signature,omitempty"`

	ToolCallID   string `json:"tool_call_id,omitempty"`
	ToolCallName string `json:"tool_call_name,omitempty"`

	ToolCallArgsDelta string `json:"tool_call_args_delta,omitempty"` // partial JSON fragment
	ToolCallArgs      any    `json:"tool_call_args,omitempty"`       // parsed, validated args (ToolCallEnd only)

	UsageInputTokens  int     `json:"usage_input_tokens,omitempty"`
	UsageOutputTokens int     `json:"usage_output_tokens,omitempty"`
	UsageCostUSD      float64 `json:"usage_cost_usd,omitempty"`

	StopReason StopReason `json:"stop_reason,omitempty"`
	Err        error      `json:"-"`
}

// wireStreamEvent is StreamEvent's JSON shape: Err doesn't round-trip as a
// Go error, so it travels as a plain message string over the A2A wire
// format and is reconstructed with errors.New on decode.
type wireStreamEvent struct {
	Kind              StreamEventKind `json:"kind"`
	TextDelta         string          `json:"text_delta,omitempty"`
	ThinkingDelta     string          `json:"thinking_delta,omitempty"`
	ThinkingSignature []byte          `json:"thinking_signature,omitempty"`
	ToolCallID        string          `json:"tool_call_id,omitempty"`
	ToolCallName      string          `json:"tool_call_name,omitempty"`
	ToolCallArgsDelta string          `json:"tool_call_args_delta,omitempty"`
	ToolCallArgs      any             `json:"tool_call_args,omitempty"`
	UsageInputTokens  int             `json:"usage_input_tokens,omitempty"`
	UsageOutputTokens int             `json:"usage_output_tokens,omitempty"`
	UsageCostUSD      float64         `json:"usage_cost_usd,omitempty"`
	StopReason        StopReason      `json:"stop_reason,omitempty"`
	Error             string          `json:"error,omitempty"`
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	w := wireStreamEvent{
		Kind: e.Kind, TextDelta: e.TextDelta, ThinkingDelta: e.ThinkingDelta,
		ThinkingSignature: e.ThinkingSignature, ToolCallID: e.ToolCallID, ToolCallName: e.ToolCallName,
		ToolCallArgsDelta: e.ToolCallArgsDelta, ToolCallArgs: e.ToolCallArgs,
		UsageInputTokens: e.UsageInputTokens, UsageOutputTokens: e.UsageOutputTokens, UsageCostUSD: e.UsageCostUSD,
		StopReason: e.StopReason,
	}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	return json.Marshal(w)
}

func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var w wireStreamEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = StreamEvent{
		Kind: w.Kind, TextDelta: w.TextDelta, ThinkingDelta: w.ThinkingDelta,
		ThinkingSignature: w.ThinkingSignature, ToolCallID: w.ToolCallID, ToolCallName: w.ToolCallName,
		ToolCallArgsDelta: w.ToolCallArgsDelta, ToolCallArgs: w.ToolCallArgs,
		UsageInputTokens: w.UsageInputTokens, UsageOutputTokens: w.UsageOutputTokens, UsageCostUSD: w.UsageCostUSD,
		StopReason: w.StopReason,
	}
	if w.Error != "" {
		e.Err = errors.New(w.Error)
	}
	return nil
}

func TextDeltaEvent(s string) StreamEvent { return StreamEvent{Kind: EventTextDelta, TextDelta: s} }

func ThinkingDeltaEvent(s string) StreamEvent {
	return StreamEvent{Kind: EventThinkingDelta, ThinkingDelta: s}
}

func ThinkingSignatureEvent(sig []byte) StreamEvent {
	return StreamEvent{Kind: EventThinkingSignature, ThinkingSignature: sig}
}

func ToolCallStartEvent(id, name string) StreamEvent {
	return StreamEvent{Kind: EventToolCallStart, ToolCallID: id, ToolCallName: name}
}

func ToolCallArgsDeltaEvent(id, partial string) StreamEvent {
	return StreamEvent{Kind: EventToolCallArgsDelta, ToolCallID: id, ToolCallArgsDelta: partial}
}

func ToolCallEndEvent(id string, args any) StreamEvent {
	return StreamEvent{Kind: EventToolCallEnd, ToolCallID: id, ToolCallArgs: args}
}

func UsageUpdateEvent(in, out int, costUSD float64) StreamEvent {
	return StreamEvent{Kind: EventUsageUpdate, UsageInputTokens: in, UsageOutputTokens: out, UsageCostUSD: costUSD}
}

func StopEvent(reason StopReason, err error) StreamEvent {
	return StreamEvent{Kind: EventStop, StopReason: reason, Err: err}
}
