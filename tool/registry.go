package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hkdb/agentcore/errs"
)

const defaultTimeout = 120 * time.Second

// Registry is the Tool Registry singleton. Mutation (Register,
// Unregister) is confined to a single writer path per spec.md §5,
// serialized with a mutex; ListFor/Invoke take the read path.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	log         *zap.SugaredLogger

	limiters   map[string]*rate.Limiter
	timeouts   map[string]time.Duration
	validators map[string]*jsonschema.Schema
}

func New(log *zap.SugaredLogger) *Registry {
	return &Registry{
		descriptors: map[string]Descriptor{},
		limiters:    map[string]*rate.Limiter{},
		timeouts:    map[string]time.Duration{},
		validators:  map[string]*jsonschema.Schema{},
		log:         log,
	}
}

// Register adds a descriptor. Re-registering an identical descriptor
// succeeds and only swaps in its handler; re-registering a name with a different shape is
// a DuplicateTool ToolError, per spec.md §4.3. Renaming after
// registration is never offered by this API — callers Unregister then
// Register under the new name.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.descriptors[d.Name]; ok {
		if equalDescriptor(existing, d) {
			r.descriptors[d.Name] = d // refresh handler closure
			return nil
		}
		return errs.Tool(d.Name, errs.ToolCodeDuplicate, "descriptor differs from existing registration", nil)
	}
	r.descriptors[d.Name] = d

	if schema, err := jsonschema.NewCompiler().Compile(mustMarshalSchema(d.InputSchema)); err == nil {
		r.validators[d.Name] = schema
	}
	return nil
}

// Unregister removes a tool, e.g. on MCP subprocess death (spec.md §3
// Lifecycles: "on subprocess death they are unregistered from T").
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.descriptors, name)
	delete(r.validators, name)
	delete(r.limiters, name)
	delete(r.timeouts, name)
}

// UnregisterBySource removes every descriptor whose Source matches,
// used by the MCP Supervisor to drop all of one server's tools at once
// on crash detection.
func (r *Registry) UnregisterBySource(source Source) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for name, d := range r.descriptors {
		if d.Source == source {
			delete(r.descriptors, name)
			delete(r.validators, name)
			removed = append(removed, name)
		}
	}
	return removed
}

// SetTimeout overrides the default 120s invoke timeout for a single
// tool (spec.md §4.3 "configurable").
func (r *Registry) SetTimeout(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts[name] = d
}

// SetRateLimit applies a token-bucket limit to a network-bound tool
// (spec.md §5 "network tools ... have adapter-configurable timeouts"),
// grounded on hieuntg81-alfred-ai's golang.org/x/time/rate usage.
func (r *Registry) SetRateLimit(name string, rps float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[name] = rate.NewLimiter(rate.Limit(rps), burst)
}

// ListFor returns the subset of descriptors visible to agentName.
func (r *Registry) ListFor(agentName string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, d := range r.descriptors {
		if d.enabledFor(agentName) {
			out = append(out, d)
		}
	}
	return out
}

// Get looks up a single descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Invoke runs name's handler with args, applying schema validation, a
// rate limiter if configured, and a timeout (default 120s). It never
// returns a Go error for a tool-level failure — per spec.md §7 those are
// folded into Result.IsError so the turn engine can always append a
// ToolResult and continue. A non-nil error return means invocation could
// not even be attempted (e.g. context already cancelled).
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	r.mu.RLock()
	d, ok := r.descriptors[name]
	validator := r.validators[name]
	limiter := r.limiters[name]
	timeout := r.timeouts[name]
	r.mu.RUnlock()

	if !ok {
		return Result{IsError: true, Code: errs.ToolCodeUnknown, Content: fmt.Sprintf("unknown tool %q", name)}, nil
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	if validator != nil {
		if result := validator.Validate(args); !result.IsValid() {
			return Result{IsError: true, Code: errs.ToolCodeSchema, Content: fmt.Sprintf("invalid arguments for %q: schema validation failed", name)}, nil
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return Result{IsError: true, Code: errs.ToolCodeTimeout, Content: fmt.Sprintf("rate limited: %v", err)}, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("handler panic: %v", p)}
			}
		}()
		v, err := d.Handler(callCtx, args)
		ch <- outcome{val: v, err: err}
	}()

	select {
	case <-callCtx.Done():
		r.log.Warnw("tool invocation timed out", "tool", name, "timeout", timeout)
		return Result{IsError: true, Code: errs.ToolCodeTimeout, Content: fmt.Sprintf("tool %q timed out after %s", name, timeout)}, nil
	case o := <-ch:
		if o.err != nil {
			return Result{IsError: true, Code: errs.ToolCodeHandler, Content: o.err.Error()}, nil
		}
		return Result{Content: o.val}, nil
	}
}

func mustMarshalSchema(schema map[string]any) []byte {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	b, _ := json.Marshal(schema)
	return b
}
