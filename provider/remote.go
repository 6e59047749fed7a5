package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
)

// remoteEnvelope is the JSON body spec.md §6 defines for the A2A
// endpoint: `{task, relevant_messages: list[Message]}`.
type remoteEnvelope struct {
	Task             string            `json:"task"`
	RelevantMessages []message.Message `json:"relevant_messages"`
}

// remoteAdapter implements Adapter by forwarding a turn to another
// agentcore process's A2A endpoint, for agents configured with
// remote_endpoint (spec.md §6). System prompt and tool schemas are the
// remote side's responsibility; this adapter only translates Stream
// calls into the envelope and decodes the streamed StreamEvents back.
type remoteAdapter struct {
	endpoint string
	client   *http.Client
	log      *zap.SugaredLogger
}

// NewRemoteAdapter builds the Adapter a remote agent activates against.
// endpoint is the agent's full "<base-url>/<agent-name>" URL from its
// agent configuration record.
func NewRemoteAdapter(endpoint string, log *zap.SugaredLogger) Adapter {
	if log == nil {
		log = globalLog
	}
	return &remoteAdapter{endpoint: endpoint, client: &http.Client{Timeout: 0}, log: log}
}

func (r *remoteAdapter) Name() string { return "remote" }

// SetSystemPrompt, RegisterTool, ClearTools, and SetThinking are no-ops:
// the remote agentcore process owns its own system prompt, tool roster,
// and thinking negotiation.
func (r *remoteAdapter) SetSystemPrompt(string)            {}
func (r *remoteAdapter) RegisterTool(schema ToolSchema)     {}
func (r *remoteAdapter) ClearTools()                        {}
func (r *remoteAdapter) SetThinking(spec ThinkingSpec) bool { return false }

// Stream splits messages into the envelope's relevant_messages (every
// message but the last) and task (the last message's text) and decodes
// the response body as newline-delimited StreamEvent JSON.
func (r *remoteAdapter) Stream(ctx context.Context, messages []message.Message) (Handle, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("remote adapter: empty history, nothing to send")
	}
	last := messages[len(messages)-1]
	env := remoteEnvelope{Task: last.PlainText(), RelevantMessages: messages[:len(messages)-1]}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("remote adapter: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote adapter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote adapter: request to %s: %w", r.endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("remote adapter: %s returned status %d", r.endpoint, resp.StatusCode)
	}

	h := &remoteHandle{resp: resp, events: make(chan message.StreamEvent, 16)}
	go h.pump(r.log)
	return h, nil
}

type remoteHandle struct {
	resp   *http.Response
	events chan message.StreamEvent
}

func (h *remoteHandle) Events() <-chan message.StreamEvent { return h.events }

func (h *remoteHandle) Close() error {
	return h.resp.Body.Close()
}

// pump decodes one StreamEvent per line until EOF or a decode error,
// mirroring a2a.Server's NDJSON encoder on the other end of the wire.
func (h *remoteHandle) pump(log *zap.SugaredLogger) {
	defer close(h.events)
	scanner := bufio.NewScanner(h.resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev message.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Warnw("remote adapter: malformed stream event line", "error", err)
			h.events <- message.StopEvent(message.StopError, fmt.Errorf("malformed remote stream event: %w", err))
			return
		}
		h.events <- ev
		if ev.Kind == message.EventStop {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		h.events <- message.StopEvent(message.StopError, fmt.Errorf("remote stream read: %w", err))
	}
}
