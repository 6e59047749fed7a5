package builtins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/mcpsup"
	"github.com/hkdb/agentcore/tool"
)

func TestRegisterAllInstallsBothBuiltins(t *testing.T) {
	tools := tool.New(zap.NewNop().Sugar())
	sup := mcpsup.New(tools, zap.NewNop().Sugar(), nil)

	require.NoError(t, RegisterAll(tools, sup))

	_, ok := tools.Get("transfer")
	assert.True(t, ok)
	_, ok = tools.Get("mcp.reconnect")
	assert.True(t, ok)
}

func TestMCPReconnectRequiresServerID(t *testing.T) {
	tools := tool.New(zap.NewNop().Sugar())
	sup := mcpsup.New(tools, zap.NewNop().Sugar(), nil)
	d := MCPReconnect(sup)

	_, err := d.Handler(context.Background(), map[string]any{})
	require.Error(t, err)
}

func TestMCPReconnectUnknownServerFails(t *testing.T) {
	tools := tool.New(zap.NewNop().Sugar())
	sup := mcpsup.New(tools, zap.NewNop().Sugar(), nil)
	d := MCPReconnect(sup)

	_, err := d.Handler(context.Background(), map[string]any{"server_id": "ghost"})
	require.Error(t, err)
}
