// Package builtins registers the small set of tools every agent.Manager
// needs regardless of which MCP servers are configured: the reserved
// "transfer" tool spec.md §4.4 gives every multi-agent deployment, and
// the manual MCP reconnect tool spec.md §9 open question 3 resolves to
// (mcpsup.Supervisor.Reconnect's doc comment: "wired into the builtin
// tool set as mcp.reconnect by internal/bootstrap's tool wiring").
package builtins

import (
	"context"
	"fmt"

	"github.com/hkdb/agentcore/mcpsup"
	"github.com/hkdb/agentcore/tool"
)

// transferSchema matches the envelope turn.parseTransferArgs decodes:
// target_agent, task, and relevant_messages (indices into the source
// agent's own history). The Turn Engine intercepts "transfer" calls
// before Registry.Invoke ever runs this descriptor's handler — it exists
// so Agent.Activate can publish a real function schema to the Provider
// Adapter, not so the handler executes.
var transferSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"target_agent": map[string]any{"type": "string", "description": "name of the agent to hand off to"},
		"task":         map[string]any{"type": "string", "description": "task description for the target agent"},
		"relevant_messages": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "integer"},
			"description": "indices into the caller's own history to share with the target",
		},
	},
	"required": []any{"target_agent", "task"},
}

// Transfer returns the reserved transfer tool descriptor. Registered
// once, globally ("*"); agent.Agent only advertises it to the provider
// when the agent's own tool_names set lists "transfer".
func Transfer() tool.Descriptor {
	return tool.Descriptor{
		Name:        "transfer",
		Description: "Hand off the conversation to another agent. The target owns the conversation afterward; there is no return.",
		InputSchema: transferSchema,
		Source:      tool.SourceBuiltin,
		EnabledForAgents: []string{"*"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			// never invoked: turn.Engine.runTools intercepts "transfer"
			// calls ahead of Registry.Invoke.
			return nil, nil
		},
	}
}

var reconnectSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"server_id": map[string]any{"type": "string", "description": "MCP server id from the manifest"},
	},
	"required": []any{"server_id"},
}

// MCPReconnect returns the manual reconnect tool descriptor, the only
// recovery path for a crashed MCP server per spec.md §9 open question 3
// ("no automatic retry loop").
func MCPReconnect(sup *mcpsup.Supervisor) tool.Descriptor {
	return tool.Descriptor{
		Name:        "mcp.reconnect",
		Description: "Manually reconnect a disconnected MCP server by id.",
		InputSchema: reconnectSchema,
		Source:      tool.SourceBuiltin,
		EnabledForAgents: []string{"*"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			id, _ := args["server_id"].(string)
			if id == "" {
				return nil, fmt.Errorf("server_id is required")
			}
			if err := sup.Reconnect(ctx, id); err != nil {
				return nil, err
			}
			return fmt.Sprintf("reconnected %s", id), nil
		},
	}
}

// RegisterAll installs every builtin descriptor into tools.
func RegisterAll(tools *tool.Registry, sup *mcpsup.Supervisor) error {
	if err := tools.Register(Transfer()); err != nil {
		return err
	}
	return tools.Register(MCPReconnect(sup))
}
