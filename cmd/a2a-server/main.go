// Command a2a-server runs the HTTP A2A endpoint described in spec.md
// §6: every local agent in the configured roster becomes reachable at
// "<base-url>/<agent-name>". Grounded on otui's main.go startup sequence
// and pkdindustries-soulshack's urfave/cli/v3 flag wiring.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/a2a"
	"github.com/hkdb/agentcore/internal/bootstrap"
)

func main() {
	cmd := &cli.Command{
		Name:  "a2a-server",
		Usage: "serve the configured agent roster over the A2A HTTP endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "bind host"},
			&cli.IntFlag{Name: "port", Value: 8420, Usage: "bind port"},
			&cli.StringFlag{Name: "base-url", Usage: "external base URL agents are reachable at (informational; routes are always served at /<agent-name>)"},
			&cli.StringFlag{Name: "provider", Usage: "override the default provider (spec.md §6)", Sources: cli.EnvVars("AGENTCORE_PROVIDER")},
			&cli.StringFlag{Name: "agent-config", Usage: "path to the agent configuration TOML file"},
			&cli.StringFlag{Name: "mcp-config", Usage: "path to the MCP servers JSON file"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, describeFailure(err))
		os.Exit(bootstrap.ExitCode(err))
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log := newLogger()
	defer log.Sync()

	app, err := bootstrap.Start(ctx, log, bootstrap.Overrides{
		Provider:        cmd.String("provider"),
		AgentConfigPath: cmd.String("agent-config"),
		MCPConfigPath:   cmd.String("mcp-config"),
	})
	if err != nil {
		return err
	}
	defer app.Shutdown()

	server := a2a.New(app.Manager, app.Engine, log)
	addr := fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port"))

	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	log.Infow("a2a-server listening", "addr", addr, "base_url", cmd.String("base-url"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-sigCh:
		log.Infow("a2a-server shutting down")
		return httpServer.Shutdown(context.Background())
	}
}

func newLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

func describeFailure(err error) string {
	return fmt.Sprintf("a2a-server: %v", err)
}
