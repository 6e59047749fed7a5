// Package errs centralizes the error taxonomy of spec.md §7 as typed Go
// error values, each wrapping an underlying cause with fmt.Errorf's %w, in
// the style every otui package already uses for ad-hoc wrapped errors.
// Callers branch on kind with errors.As instead of string matching.
package errs

import "fmt"

// ConfigError: malformed config, unknown tool name in an agent, missing
// credentials for the selected provider.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}
func (e *ConfigError) Unwrap() error { return e.Err }

func Config(msg string, err error) error { return &ConfigError{Msg: msg, Err: err} }

// ProviderError: network, authentication, rate limit, model-not-found.
// Retry for transient cases is internal to the provider adapter; this
// type surfaces the terminal failure.
type ProviderError struct {
	Provider string
	Msg      string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Msg, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Msg)
}
func (e *ProviderError) Unwrap() error { return e.Err }

func Provider(provider, msg string, err error) error {
	return &ProviderError{Provider: provider, Msg: msg, Err: err}
}

// ToolError: unknown tool, schema validation failure, handler exception,
// timeout, MCP server down. Code distinguishes the reason without string
// matching on Msg (e.g. "timeout", "unknown_tool", "mcp_unavailable").
type ToolError struct {
	Tool string
	Code string
	Msg  string
	Err  error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s [%s]: %s: %v", e.Tool, e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("tool %s [%s]: %s", e.Tool, e.Code, e.Msg)
}
func (e *ToolError) Unwrap() error { return e.Err }

func Tool(tool, code, msg string, err error) error {
	return &ToolError{Tool: tool, Code: code, Msg: msg, Err: err}
}

const (
	ToolCodeUnknown    = "unknown_tool"
	ToolCodeSchema     = "schema_validation"
	ToolCodeHandler    = "handler_error"
	ToolCodeTimeout    = "timeout"
	ToolCodeMCPDown    = "mcp_unavailable"
	ToolCodeDuplicate  = "duplicate_tool"
)

// TransferError: unknown target agent, out-of-range indices. Per spec.md
// §7 out-of-range indices degrade by dropping the bad entries rather than
// failing; this type is reserved for the unknown-target case, which does
// fail the turn.
type TransferError struct {
	Target string
	Msg    string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer to %q: %s: %v", e.Target, e.Msg, e.Err)
	}
	return fmt.Sprintf("transfer to %q: %s", e.Target, e.Msg)
}
func (e *TransferError) Unwrap() error { return e.Err }

func Transfer(target, msg string, err error) error {
	return &TransferError{Target: target, Msg: msg, Err: err}
}

// StateError: an operation illegal in the Turn Engine's current state,
// e.g. /jump mid-stream, or a new user_input while not IDLE.
type StateError struct {
	State string
	Msg   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal in state %s: %s", e.State, e.Msg)
}

func State(state, msg string) error { return &StateError{State: state, Msg: msg} }

// PersistenceError: I/O failure. The turn's content stays in memory; the
// next snapshot attempt retries.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

func Persistence(op string, err error) error { return &PersistenceError{Op: op, Err: err} }
