package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry() *Registry { return New(zap.NewNop().Sugar()) }

func TestRegisterIdempotentOnIdentical(t *testing.T) {
	r := testRegistry()
	d := Descriptor{Name: "echo", EnabledForAgents: []string{"*"}, Handler: func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}}
	require.NoError(t, r.Register(d))
	require.NoError(t, r.Register(d))
}

func TestRegisterDuplicateConflicting(t *testing.T) {
	r := testRegistry()
	h := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register(Descriptor{Name: "echo", Description: "v1", EnabledForAgents: []string{"*"}, Handler: h}))
	err := r.Register(Descriptor{Name: "echo", Description: "v2", EnabledForAgents: []string{"*"}, Handler: h})
	require.Error(t, err)
}

func TestListForFiltersByAgent(t *testing.T) {
	r := testRegistry()
	h := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register(Descriptor{Name: "a", EnabledForAgents: []string{"router"}, Handler: h}))
	require.NoError(t, r.Register(Descriptor{Name: "b", EnabledForAgents: []string{"*"}, Handler: h}))

	routerTools := r.ListFor("router")
	assert.Len(t, routerTools, 2)

	coderTools := r.ListFor("coder")
	assert.Len(t, coderTools, 1)
	assert.Equal(t, "b", coderTools[0].Name)
}

func TestInvokeUnknownTool(t *testing.T) {
	r := testRegistry()
	res, err := r.Invoke(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "unknown_tool", res.Code)
}

func TestInvokeHandlerError(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "boom", EnabledForAgents: []string{"*"}, Handler: func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	}}))
	res, err := r.Invoke(context.Background(), "boom", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "handler_error", res.Code)
}

func TestInvokeTimeout(t *testing.T) {
	r := testRegistry()
	r.SetTimeout("slow", 10*time.Millisecond)
	require.NoError(t, r.Register(Descriptor{Name: "slow", EnabledForAgents: []string{"*"}, Handler: func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}))
	res, err := r.Invoke(context.Background(), "slow", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "timeout", res.Code)
}

func TestInvokeSuccess(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "echo", EnabledForAgents: []string{"*"}, Handler: func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}}))
	res, err := r.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "hi", res.Content)
}

func TestUnregisterBySource(t *testing.T) {
	r := testRegistry()
	h := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register(Descriptor{Name: "fs.read", EnabledForAgents: []string{"*"}, Source: "mcp:fs", Handler: h}))
	require.NoError(t, r.Register(Descriptor{Name: "builtin_tool", EnabledForAgents: []string{"*"}, Source: SourceBuiltin, Handler: h}))

	removed := r.UnregisterBySource("mcp:fs")
	assert.Equal(t, []string{"fs.read"}, removed)
	_, ok := r.Get("fs.read")
	assert.False(t, ok)
	_, ok = r.Get("builtin_tool")
	assert.True(t, ok)
}
