// Package turn implements the Turn Engine (TE) of spec.md §4.5: the
// single-turn state machine driving one user_input through streaming,
// tool execution, and back, grounded on otui's stream-consumption loops
// in provider/anthropic.go and provider/openai.go (accumulate-then-branch
// on event) lifted one level into an explicit state machine, per
// spec.md §9's "coroutines -> explicit event streams" redesign note.
package turn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hkdb/agentcore/agent"
	"github.com/hkdb/agentcore/errs"
	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/tool"
)

// State names the Turn Engine's position in spec.md §4.5's table.
type State string

const (
	StateIdle       State = "IDLE"
	StateStreaming  State = "STREAMING"
	StateTools      State = "TOOLS"
	StateCancelled  State = "CANCELLED"
)

// toolConcurrency bounds parallel tool execution within one Stop(tool_use)
// batch, per spec.md §4.5 "default 4".
const toolConcurrency = 4

// Notification is what the Turn Engine emits for a UI/A2A surface to
// subscribe to — a thin superset of message.StreamEvent plus
// engine-level signals (state transitions, tool results) that have no
// StreamEvent equivalent.
type Notification struct {
	Event    message.StreamEvent
	NewState State
	// ToolResult is set for tool-execution notifications, absent otherwise.
	ToolName   string
	ToolResult *tool.Result
}

// TransferRequest is returned by Run when the LLM's tool call was the
// reserved "transfer" tool: the caller (cmd/chat, a2a/) is responsible
// for invoking agent.Manager.Transfer and re-entering the engine via
// Resume against the target agent — the Turn Engine itself stays
// agent-agnostic, per spec.md §4.4's "AM then activates the target; TE
// resumes the turn".
type TransferRequest struct {
	TargetAgent     string
	Task            string
	RelevantIndices []int
}

// Engine drives one Manager's currently active agent through a turn.
// It has no persistent state across calls besides the current State,
// queried concurrently by cmd/chat's /jump guard and by
// agent.Manager's mid-turn rejection checks.
type Engine struct {
	manager *agent.Manager
	tools   *tool.Registry
	log     *zap.SugaredLogger

	state atomic.Value // State

	mu       sync.Mutex
	cancelFn context.CancelFunc
}

func New(manager *agent.Manager, tools *tool.Registry, log *zap.SugaredLogger) *Engine {
	e := &Engine{manager: manager, tools: tools, log: log}
	e.state.Store(StateIdle)
	return e
}

func (e *Engine) State() State { return e.state.Load().(State) }

func (e *Engine) setState(s State) { e.state.Store(s) }

// IsStreaming reports whether a turn is mid-flight, for agent.Manager's
// NewManager(streaming func() bool) guard wiring.
func (e *Engine) IsStreaming() bool {
	s := e.State()
	return s == StateStreaming || s == StateTools
}

// Cancel implements the STREAMING -> CANCELLED -> IDLE transition: abort
// the in-flight stream, discard the draft, leave history unchanged.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancelFn
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run executes one full turn for userInput against the manager's
// current agent: IDLE -> STREAMING -> (TOOLS -> STREAMING)* -> IDLE. It
// emits Notifications on notify as StreamEvents arrive and blocks until
// the turn settles back to IDLE (or CANCELLED). A non-nil *TransferRequest
// return means a transfer tool call intercepted the turn; history is
// otherwise untouched by Run for the caller to finish.
func (e *Engine) Run(ctx context.Context, userInput string, notify func(Notification)) (*TransferRequest, error) {
	if e.IsStreaming() {
		return nil, errs.State(string(e.State()), "turn already in progress")
	}

	current := e.manager.Current()
	if current == nil {
		return nil, errs.Config("no agent selected", nil)
	}

	current.Append(message.TextOnly(message.RoleUser, userInput))
	return e.resume(ctx, current, notify)
}

// Resume continues a turn against the manager's current agent without
// appending a user message first: agent.Manager.Transfer already installs
// the target's history ending in a synthetic user(task) message, so a
// caller re-entering the engine after a transfer calls Resume instead of
// Run to avoid appending that task text a second time.
func (e *Engine) Resume(ctx context.Context, notify func(Notification)) (*TransferRequest, error) {
	if e.IsStreaming() {
		return nil, errs.State(string(e.State()), "turn already in progress")
	}

	current := e.manager.Current()
	if current == nil {
		return nil, errs.Config("no agent selected", nil)
	}

	return e.resume(ctx, current, notify)
}

func (e *Engine) resume(ctx context.Context, current *agent.Agent, notify func(Notification)) (*TransferRequest, error) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFn = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelFn = nil
		e.mu.Unlock()
		cancel()
	}()

	e.setState(StateStreaming)
	notify(Notification{NewState: StateStreaming})

	for {
		xfer, draft, stopReason, err := e.streamOnce(runCtx, current, notify)
		if runCtx.Err() != nil {
			// spec.md §4.5: cancel discards draft, history unchanged —
			// checked ahead of err so a cancellation that merely starved
			// the event channel (no explicit Stop(error)) is still
			// recognized, not mistaken for a normal stop reason.
			e.setState(StateCancelled)
			notify(Notification{NewState: StateCancelled})
			e.setState(StateIdle)
			notify(Notification{NewState: StateIdle})
			return nil, nil
		}
		if err != nil {
			e.setState(StateIdle)
			notify(Notification{NewState: StateIdle})
			return nil, err
		}

		if xfer != nil {
			// transfer wins: terminate this agent's turn without
			// committing a draft assistant message for the suppressed
			// siblings' results; the draft's text (if any) is still
			// useful context, so commit it before handing off.
			if draft != nil {
				current.Append(*draft)
			}
			e.setState(StateIdle)
			notify(Notification{NewState: StateIdle})
			return xfer, nil
		}

		if draft != nil {
			current.Append(*draft)
		}

		if stopReason == message.StopEndTurn || stopReason == message.StopMaxTokens {
			e.setState(StateIdle)
			notify(Notification{NewState: StateIdle})
			return nil, nil
		}

		if stopReason != message.StopToolUse {
			e.setState(StateIdle)
			notify(Notification{NewState: StateIdle})
			return nil, nil
		}

		// STREAMING -> TOOLS -> STREAMING
		e.setState(StateTools)
		notify(Notification{NewState: StateTools})

		calls := draft.ToolCalls()
		if tr, toolResults := e.runTools(runCtx, current.Name, calls, notify); tr != nil {
			e.setState(StateIdle)
			notify(Notification{NewState: StateIdle})
			return tr, nil
		} else {
			for _, r := range toolResults {
				current.Append(r)
			}
		}

		e.setState(StateStreaming)
		notify(Notification{NewState: StateStreaming})
	}
}

// streamOnce opens one adapter.Stream call over current's full history
// and consumes it to completion, building the assistant draft message.
func (e *Engine) streamOnce(ctx context.Context, current *agent.Agent, notify func(Notification)) (xfer *TransferRequest, draft *message.Message, stop message.StopReason, err error) {
	adapter := current.Adapter()
	if adapter == nil {
		return nil, nil, "", errs.Config(fmt.Sprintf("agent %q has no bound adapter", current.Name), nil)
	}

	handle, err := adapter.Stream(ctx, current.History())
	if err != nil {
		return nil, nil, "", errs.Provider(adapter.Name(), "stream open failed", err)
	}
	defer handle.Close()

	var textParts []string
	thinkingText := ""
	var thinkingSig []byte
	hasThinking := false

	// spec.md §4.5 tie-break: merge duplicate ToolCallStart ids.
	callOrder := []string{}
	callName := map[string]string{}
	callArgs := map[string]any{}
	seenStart := map[string]bool{}

	for ev := range handle.Events() {
		notify(Notification{Event: ev})
		switch ev.Kind {
		case message.EventTextDelta:
			textParts = append(textParts, ev.TextDelta)
		case message.EventThinkingDelta:
			hasThinking = true
			thinkingText += ev.ThinkingDelta
		case message.EventThinkingSignature:
			thinkingSig = ev.ThinkingSignature
		case message.EventToolCallStart:
			if !seenStart[ev.ToolCallID] {
				seenStart[ev.ToolCallID] = true
				callOrder = append(callOrder, ev.ToolCallID)
				callName[ev.ToolCallID] = ev.ToolCallName
			}
		case message.EventToolCallEnd:
			callArgs[ev.ToolCallID] = ev.ToolCallArgs
		case message.EventStop:
			stop = ev.StopReason
			if ev.Err != nil {
				return nil, nil, stop, ev.Err
			}
		}
	}
	if stop == "" {
		stop = message.StopError
	}

	var parts []message.Part
	if hasThinking {
		parts = append(parts, message.Thinking(thinkingText, thinkingSig))
	}
	text := joinParts(textParts)
	hasPendingTools := len(callOrder) > 0
	if text == "" && hasPendingTools {
		// spec.md §4.5: empty text + pending tool calls -> single space.
		text = " "
	}
	if text != "" || !hasPendingTools {
		parts = append(parts, message.Text(text))
	}

	// spec.md §4.5: "a transfer call suppresses all sibling calls
	// (transfer wins)" — if any call in this batch is a transfer, no
	// tool_call parts are recorded for this stop; the turn hands off
	// entirely instead of executing the rest of the batch.
	var transferReq *TransferRequest
	for _, id := range callOrder {
		if callName[id] == "transfer" {
			transferReq = parseTransferArgs(callArgs[id])
			break
		}
	}
	if transferReq == nil {
		for _, id := range callOrder {
			parts = append(parts, message.ToolCall(id, callName[id], callArgs[id]))
		}
	}

	d := message.Message{Role: message.RoleAssistant, Parts: parts}
	draft = &d

	if transferReq != nil {
		return transferReq, draft, stop, nil
	}
	return nil, draft, stop, nil
}

func joinParts(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p
	}
	return out
}

func parseTransferArgs(args any) *TransferRequest {
	m, ok := args.(map[string]any)
	if !ok {
		return &TransferRequest{}
	}
	req := &TransferRequest{}
	if v, ok := m["target_agent"].(string); ok {
		req.TargetAgent = v
	}
	if v, ok := m["task"].(string); ok {
		req.Task = v
	}
	if raw, ok := m["relevant_messages"].([]any); ok {
		for _, v := range raw {
			switch n := v.(type) {
			case float64:
				req.RelevantIndices = append(req.RelevantIndices, int(n))
			case int:
				req.RelevantIndices = append(req.RelevantIndices, n)
			}
		}
	}
	return req
}

// runTools executes calls with bounded parallelism, per spec.md §4.5
// "in parallel up to a small concurrency bound (default 4)". A
// "transfer" call is intercepted earlier in streamOnce, so calls here
// never include one — but a defensive check still short-circuits if one
// slips through a future provider quirk.
func (e *Engine) runTools(ctx context.Context, agentName string, calls []message.ToolCallPart, notify func(Notification)) (*TransferRequest, []message.Message) {
	sem := make(chan struct{}, toolConcurrency)
	var wg sync.WaitGroup
	results := make([]message.Message, len(calls))

	for i, c := range calls {
		if c.Name == "transfer" {
			return parseTransferArgs(c.Args), nil
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c message.ToolCallPart) {
			defer wg.Done()
			defer func() { <-sem }()

			args, _ := c.Args.(map[string]any)
			res, err := e.tools.Invoke(ctx, c.Name, args)
			if err != nil {
				res = tool.Result{IsError: true, Code: errs.ToolCodeHandler, Content: err.Error()}
			}
			notify(Notification{ToolName: c.Name, ToolResult: &res})
			results[i] = message.Message{
				Role:  message.RoleTool,
				Parts: []message.Part{message.ToolResult(c.ID, res.Content, res.IsError)},
			}
		}(i, c)
	}
	wg.Wait()
	return nil, results
}
