package mcpsup

import (
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestSchemaToMap(t *testing.T) {
	s := mcptypes.ToolInputSchema{
		Type:       "object",
		Properties: map[string]any{"query": map[string]any{"type": "string"}},
		Required:   []string{"query"},
	}
	m := schemaToMap(s)
	assert.Equal(t, "object", m["type"])
	assert.NotNil(t, m["properties"])
	assert.Equal(t, []string{"query"}, m["required"])
}

func TestFlattenMCPResultText(t *testing.T) {
	res := &mcptypes.CallToolResult{
		Content: []mcptypes.Content{
			mcptypes.TextContent{Type: "text", Text: "Go 1.23"},
		},
	}
	assert.Equal(t, "Go 1.23", flattenMCPResult(res))
}

func TestFlattenMCPResultNil(t *testing.T) {
	assert.Equal(t, "", flattenMCPResult(nil))
}

func TestMCPDescriptorDefaultsToWildcardAgents(t *testing.T) {
	sup := New(nil, nil, nil)
	d := mcpDescriptor("fs", mcptypes.Tool{Name: "read"}, nil, sup)
	assert.Equal(t, "fs.read", d.Name)
	assert.Equal(t, []string{"*"}, d.EnabledForAgents)
}
