package mcpsup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/tool"
)

// server tracks one running (or disconnected) MCP subprocess.
type server struct {
	id      string
	cfg     ServerConfig
	cmd     *exec.Cmd
	client  *client.Client
	tools   []mcptypes.Tool
	running bool
}

// Supervisor is the MCP Supervisor singleton. It owns the subprocess
// lifecycle and keeps the shared tool.Registry in sync with which
// servers are alive.
type Supervisor struct {
	mu      sync.RWMutex
	servers map[string]*server
	tools   *tool.Registry
	log     *zap.SugaredLogger
	secrets SecretResolver
}

// New constructs a Supervisor. secrets may be nil (no manifest-secret
// overrides applied); pass a *config.CredentialStore to let manifest env
// vars be overridden from encrypted storage.
func New(tools *tool.Registry, log *zap.SugaredLogger, secrets SecretResolver) *Supervisor {
	return &Supervisor{servers: map[string]*server{}, tools: tools, log: log, secrets: secrets}
}

// StartAll spawns every manifest entry concurrently. A failure of one
// server does not abort the others, per spec.md §4.3.
func (s *Supervisor) StartAll(ctx context.Context, manifest Manifest) {
	var wg sync.WaitGroup
	for id, cfg := range manifest {
		wg.Add(1)
		go func(id string, cfg ServerConfig) {
			defer wg.Done()
			if err := s.Start(ctx, id, cfg); err != nil {
				s.log.Warnw("mcp server failed to start", "server", id, "error", err)
			}
		}(id, cfg)
	}
	wg.Wait()
}

// Start spawns one server, performs the initialize handshake, lists its
// tools, and registers each into the Tool Registry under
// "<id>.<tool-name>" with a proxy handler.
func (s *Supervisor) Start(ctx context.Context, id string, cfg ServerConfig) error {
	env := os.Environ()
	for k, v := range cfg.Env {
		if s.secrets != nil {
			if override := s.secrets.GetMCPServerSecret(id, k); override != "" {
				v = override
			}
		}
		env = append(env, k+"="+v)
	}

	var capturedCmd *exec.Cmd
	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(cfg.Command, env, cfg.Args, transport.WithCommandFunc(cmdFunc))
	if err != nil {
		return fmt.Errorf("spawn mcp server %s: %w", id, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo:      mcptypes.Implementation{Name: "agentcore", Version: "1.0.0"},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize mcp server %s: %w", id, err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("list tools for mcp server %s: %w", id, err)
	}

	sv := &server{id: id, cfg: cfg, cmd: capturedCmd, client: mcpClient, tools: toolsResult.Tools, running: true}
	s.mu.Lock()
	s.servers[id] = sv
	s.mu.Unlock()

	for _, t := range toolsResult.Tools {
		if err := s.tools.Register(mcpDescriptor(id, t, cfg.EnabledForAgents, s)); err != nil {
			s.log.Warnw("failed to register mcp tool", "server", id, "tool", t.Name, "error", err)
		}
	}

	if capturedCmd != nil && capturedCmd.Process != nil {
		go s.watchForCrash(id, capturedCmd)
	}

	s.log.Infow("mcp server started", "server", id, "tools", len(toolsResult.Tools))
	return nil
}

// watchForCrash blocks on the subprocess's exit and, once it dies
// unexpectedly, unregisters its tools and marks it disconnected — per
// spec.md §4.3 "on subprocess exit M unregisters the server's tools and
// records the server as disconnected".
func (s *Supervisor) watchForCrash(id string, cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	sv, ok := s.servers[id]
	if ok {
		wasRunning := sv.running
		sv.running = false
		s.mu.Unlock()
		if !wasRunning {
			return // an earlier exit already marked this server disconnected
		}
	} else {
		s.mu.Unlock()
		return
	}

	s.log.Warnw("mcp server exited", "server", id, "error", err)
	removed := s.tools.UnregisterBySource(tool.Source("mcp:" + id))
	s.log.Infow("mcp server tools unregistered after crash", "server", id, "tools", removed)
}

// Stop shuts down one server and unregisters its tools.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	sv, ok := s.servers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("mcp server %s not found", id)
	}
	sv.running = false
	delete(s.servers, id)
	s.mu.Unlock()

	if sv.client != nil {
		_ = sv.client.Close()
	}
	if sv.cmd != nil && sv.cmd.Process != nil {
		_ = sv.cmd.Process.Kill()
	}
	s.tools.UnregisterBySource(tool.Source("mcp:" + id))
	return nil
}

// ShutdownAll stops every running server in parallel, mirroring otui's
// mcp/process.go Shutdown.
func (s *Supervisor) ShutdownAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.servers))
	for id := range s.servers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.Stop(id); err != nil {
				s.log.Warnw("error stopping mcp server during shutdown", "server", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}

// Status reports whether a server is currently connected, used by the
// manual reconnect tool and by diagnostics commands.
func (s *Supervisor) Status(id string) (running bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, exists := s.servers[id]
	if !exists {
		return false, false
	}
	return sv.running, true
}

// Reconnect re-runs Start for a previously configured server. Automatic
// reconnect is out of scope per spec.md §4.3 and §9 open question 3;
// this is the "dedicated tool" for manual reconnect, wired into the
// builtin tool set as "mcp.reconnect" by internal/bootstrap's tool wiring.
func (s *Supervisor) Reconnect(ctx context.Context, id string) error {
	s.mu.RLock()
	sv, ok := s.servers[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown mcp server %s: never configured", id)
	}
	return s.Start(ctx, id, sv.cfg)
}

// CallTool proxies an invocation to the named server's subprocess.
func (s *Supervisor) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcptypes.CallToolResult, error) {
	s.mu.RLock()
	sv, ok := s.servers[serverID]
	s.mu.RUnlock()
	if !ok || !sv.running {
		return nil, fmt.Errorf("mcp server %q unavailable", serverID)
	}
	return sv.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{Name: toolName, Arguments: args},
	})
}
