// Package message defines the canonical, provider-agnostic conversation
// record. Every other package — provider adapters, the turn engine,
// persistence, agents — reads and writes Messages in this shape; only the
// provider adapters know how to translate it to and from vendor wire
// formats.
package message

import "time"

// Role names the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is the canonical record. It carries an ordered list of Parts
// rather than a single content string because a single turn may mix text,
// media, tool calls, tool results, and thinking in whatever order the
// provider emitted them.
type Message struct {
	Role       Role       `json:"role"`
	Parts      []Part     `json:"parts"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Part is one element of a Message's content. Exactly one of the typed
// fields is populated; Kind says which. This mirrors how otui's provider
// packages already branch on content-block type when decoding Anthropic
// and OpenAI streams, lifted to a first-class persisted type instead of an
// ephemeral decode-time switch.
type Part struct {
	Kind PartKind `json:"kind"`

	Text *TextPart `json:"text,omitempty"`

	Image    *ImagePart    `json:"image,omitempty"`
	Document *DocumentPart `json:"document,omitempty"`

	ToolCall   *ToolCallPart   `json:"tool_call,omitempty"`
	ToolResult *ToolResultPart `json:"tool_result,omitempty"`

	Thinking *ThinkingPart `json:"thinking,omitempty"`
}

// PartKind discriminates the variant carried by a Part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartDocument   PartKind = "document"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
	PartThinking   PartKind = "thinking"
)

type TextPart struct {
	Text string `json:"text"`
}

type ImagePart struct {
	MIME  string `json:"mime"`
	Bytes []byte `json:"bytes"`
}

type DocumentPart struct {
	MIME  string `json:"mime"`
	Bytes []byte `json:"bytes"`
	Name  string `json:"name"`
}

// ToolCallPart is an assistant-emitted request to invoke a tool. Args is
// kept as parsed JSON (map[string]any or a slice) rather than a raw
// string, since ToolCallEnd only fires once the adapter has validated the
// accumulated partial-JSON as syntactically complete.
type ToolCallPart struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args any    `json:"args"`
}

// ToolResultPart is the tool-role reply to a ToolCallPart with the same
// ID. Content is either a plain string or a structured value (map/slice);
// IsError marks a structured-error result per spec.md §7's policy that
// tool failures are never fatal to the turn.
type ToolResultPart struct {
	ID      string `json:"id"`
	Content any    `json:"content"`
	IsError bool   `json:"is_error"`
}

// ThinkingPart carries a provider's reasoning trace. Signature is opaque
// provider-issued bytes (e.g. Anthropic's cryptographic signature) that
// must be forwarded byte-for-byte on a tool-use continuation; nil when the
// provider does not sign thinking.
type ThinkingPart struct {
	Text      string `json:"text"`
	Signature []byte `json:"signature,omitempty"`
}

// Convenience constructors used throughout provider adapters and the turn
// engine; they keep call sites from hand-building the Kind/pointer pair.

func Text(s string) Part {
	return Part{Kind: PartText, Text: &TextPart{Text: s}}
}

func Image(mime string, b []byte) Part {
	return Part{Kind: PartImage, Image: &ImagePart{MIME: mime, Bytes: b}}
}

func Document(mime string, b []byte, name string) Part {
	return Part{Kind: PartDocument, Document: &DocumentPart{MIME: mime, Bytes: b, Name: name}}
}

func ToolCall(id, name string, args any) Part {
	return Part{Kind: PartToolCall, ToolCall: &ToolCallPart{ID: id, Name: name, Args: args}}
}

func ToolResult(id string, content any, isError bool) Part {
	return Part{Kind: PartToolResult, ToolResult: &ToolResultPart{ID: id, Content: content, IsError: isError}}
}

func Thinking(text string, signature []byte) Part {
	return Part{Kind: PartThinking, Thinking: &ThinkingPart{Text: text, Signature: signature}}
}

// TextOnly builds the common case: a single-Part user/assistant message.
func TextOnly(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{Text(text)}, Timestamp: time.Now()}
}

// PlainText concatenates every TextPart in the Message, in order, ignoring
// non-text parts. Used for previews (turn_log, search) where only the
// textual gist matters.
func (m Message) PlainText() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText && p.Text != nil {
			out += p.Text.Text
		}
	}
	return out
}

// ToolCalls returns every ToolCallPart in the Message, in arrival order.
func (m Message) ToolCalls() []ToolCallPart {
	var out []ToolCallPart
	for _, p := range m.Parts {
		if p.Kind == PartToolCall && p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

// HasToolCalls reports whether the message carries any tool_call parts.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls()) > 0
}
