package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hkdb/agentcore/errs"
	"github.com/hkdb/agentcore/mcpsup"
)

// LoadMCPServersFile parses --mcp-config into an mcpsup.Manifest, per
// spec.md §6's "MCP servers file (JSON)". A missing path is not an
// error — MCP support is optional — and returns an empty manifest so
// callers can unconditionally pass it to mcpsup without a nil check.
func LoadMCPServersFile(path string) (mcpsup.Manifest, error) {
	if path == "" {
		return mcpsup.Manifest{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return mcpsup.Manifest{}, nil
	}
	if err != nil {
		return nil, errs.Config(fmt.Sprintf("failed to read MCP servers file %s", path), err)
	}

	var m mcpsup.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Config(fmt.Sprintf("failed to parse MCP servers file %s", path), err)
	}
	for id, srv := range m {
		if srv.Command == "" {
			return nil, errs.Config(fmt.Sprintf("MCP server %q missing command", id), nil)
		}
	}
	return m, nil
}
