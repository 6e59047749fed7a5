// Package mcpsup implements the MCP Supervisor (M) of spec.md §4.3: it
// reads a JSON server manifest, spawns each listed subprocess, performs
// the MCP initialize handshake, republishes each server's tools into the
// shared Tool Registry under "<server-id>.<tool-name>", and proxies
// invocations over the subprocess transport. Adapted from otui's
// mcp/process.go local-stdio spawn path; the remote-transport
// (SSE/OAuth/streamable-HTTP) and plugin-marketplace machinery in
// otui's mcp/manager.go has no counterpart in spec.md §4.3's plain
// manifest model and is dropped (see DESIGN.md).
package mcpsup

// Manifest is the JSON document loaded from the path given by
// --mcp-config / spec.md §6's "MCP servers file": a map keyed by server
// id.
type Manifest map[string]ServerConfig

// ServerConfig is one entry of the manifest.
type ServerConfig struct {
	Name             string            `json:"name"`
	Command          string            `json:"command"`
	Args             []string          `json:"args"`
	Env              map[string]string `json:"env"`
	EnabledForAgents []string          `json:"enabledForAgents"`
}

// SecretResolver resolves an encrypted override for one MCP server's env
// var, letting a server's secrets live outside the (often checked-in)
// manifest instead of its plaintext Env map. config.CredentialStore
// satisfies this interface; mcpsup depends on it structurally rather than
// importing config, which already imports mcpsup for manifest loading.
type SecretResolver interface {
	GetMCPServerSecret(serverID, key string) string
}
