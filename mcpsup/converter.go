package mcpsup

import (
	"context"
	"encoding/json"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/hkdb/agentcore/tool"
)

// mcpDescriptor builds the Tool Registry entry for one MCP-offered tool.
// Schema conversion is a single generic JSON-schema map — unlike otui's
// mcp/tool_converter.go, which built one converter per vendor SDK type,
// here the provider package's Adapter.RegisterTool already accepts a
// generic map, so there is exactly one conversion instead of three.
func mcpDescriptor(serverID string, t mcptypes.Tool, enabledForAgents []string, sup *Supervisor) tool.Descriptor {
	name := serverID + "." + t.Name
	schema := schemaToMap(t.InputSchema)

	enabled := enabledForAgents
	if len(enabled) == 0 {
		enabled = []string{"*"}
	}

	return tool.Descriptor{
		Name:             name,
		Description:      t.Description,
		InputSchema:      schema,
		Source:           tool.Source("mcp:" + serverID),
		EnabledForAgents: enabled,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			res, err := sup.CallTool(ctx, serverID, t.Name, args)
			if err != nil {
				// spec.md S5: a crashed/unavailable server surfaces as a
				// structured tool error, not a fatal turn error.
				return nil, fmt.Errorf("mcp server '%s' unavailable", serverID)
			}
			return flattenMCPResult(res), nil
		},
	}
}

func schemaToMap(s mcptypes.ToolInputSchema) map[string]any {
	m := map[string]any{"type": s.Type}
	if len(s.Properties) > 0 {
		m["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if s.Defs != nil {
		m["$defs"] = s.Defs
	}
	return m
}

// flattenMCPResult reduces an MCP CallToolResult's content blocks to a
// single string, matching spec.md §4.7's "structured tool-result content
// serialized to text" fallback when the content isn't already plain text.
func flattenMCPResult(res *mcptypes.CallToolResult) string {
	if res == nil {
		return ""
	}
	var out string
	for _, c := range res.Content {
		if tc, ok := c.(mcptypes.TextContent); ok {
			out += tc.Text
			continue
		}
		if b, err := json.Marshal(c); err == nil {
			out += string(b)
		}
	}
	return out
}
