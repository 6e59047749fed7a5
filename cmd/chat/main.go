// Command chat runs the interactive console front end described in
// spec.md §6: a line-oriented REPL that drives one conversation through
// the Turn Engine, dispatching slash-prefixed control commands separately
// from plain-text turns. Grounded on otui's main.go startup sequence
// (config -> debug log -> storage -> instance lock -> run, all guarded by
// deferred cleanup) and soulshack's switch-on-command dispatch, adapted
// from IRC messages to stdin lines.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/config"
	"github.com/hkdb/agentcore/errs"
	"github.com/hkdb/agentcore/internal/bootstrap"
	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/persistence"
	"github.com/hkdb/agentcore/provider"
	"github.com/hkdb/agentcore/turn"
)

func main() {
	cmd := &cli.Command{
		Name:  "chat",
		Usage: "start an interactive conversation against the configured agent roster",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider", Usage: "override the default provider (spec.md §6)", Sources: cli.EnvVars("AGENTCORE_PROVIDER")},
			&cli.StringFlag{Name: "agent-config", Usage: "path to the agent configuration TOML file"},
			&cli.StringFlag{Name: "mcp-config", Usage: "path to the MCP servers JSON file"},
			&cli.BoolFlag{Name: "console", Usage: "run the plain-text console (default; reserved for a future richer front end)"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "chat:", err)
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

	if err := app.Store.AcquireProcessLock(); err != nil {
		return err
	}
	defer app.Store.ReleaseProcessLock()

	names := app.Manager.Names()
	if len(names) == 0 {
		return errs.Config("agent config defines no agents", nil)
	}
	if err := app.Manager.Select(names[0]); err != nil {
		return err
	}

	sess := newSession(app)
	fmt.Printf("agentcore chat — agent %q, model %q. Type /list for saved conversations.\n", names[0], currentModelID(app))

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if err := sess.dispatch(ctx, line); err != nil {
				fmt.Println("error:", err)
			}
			continue
		}
		if err := sess.runTurn(ctx, line); err != nil {
			fmt.Println("error:", err)
		}
	}
	return nil
}

// session holds the state a chat process threads through repeated turns:
// which conversation is being built up and where the turn log stands, so
// each completed turn can be snapshotted to Persistence per spec.md §4.6.
type session struct {
	app       *bootstrap.App
	conv      *persistence.Conversation
	turnIndex int
}

func newSession(app *bootstrap.App) *session {
	return &session{
		app: app,
		conv: &persistence.Conversation{
			ID:         persistence.NewID(),
			Histories:  map[string][]message.Message{},
			TurnLog:    nil,
		},
	}
}

// runTurn drives one user input through the Turn Engine, following every
// transfer hand-off until the engine settles back to IDLE with no pending
// transfer. The first call is Run (appends input); every hand-off after
// that resumes via Resume, since Manager.Transfer already appended the
// target's task message.
func (s *session) runTurn(ctx context.Context, input string) error {
	current := s.app.Manager.Current()
	if current == nil {
		return errs.Config("no agent selected", nil)
	}
	sourceName := current.Name
	resuming := false

	for {
		var xfer *turn.TransferRequest
		var err error
		if resuming {
			// Transfer already installed the target's history ending in
			// the synthetic user(task) message; Resume continues without
			// appending it again.
			xfer, err = s.app.Engine.Resume(ctx, s.notify)
		} else {
			xfer, err = s.app.Engine.Run(ctx, input, s.notify)
		}
		if err != nil {
			return err
		}
		if xfer == nil {
			break
		}
		target, err := s.app.Manager.Transfer(sourceName, xfer.TargetAgent, xfer.Task, xfer.RelevantIndices)
		if err != nil {
			fmt.Println("transfer failed:", err)
			break
		}
		fmt.Printf("\n[transferred to %s]\n", target.Name)
		sourceName = target.Name
		resuming = true
	}
	fmt.Println()
	s.snapshot()
	return nil
}

func (s *session) notify(n turn.Notification) {
	switch n.Event.Kind {
	case message.EventTextDelta:
		fmt.Print(n.Event.TextDelta)
	case message.EventThinkingDelta:
		// thinking text is deliberately not echoed to the console; it is
		// kept only as the Thinking part of the committed assistant message.
	}
	if n.ToolResult != nil {
		status := "ok"
		if n.ToolResult.IsError {
			status = "error"
		}
		fmt.Printf("\n[tool %s: %s]\n", n.ToolName, status)
	}
}

// snapshot writes every registered agent's current history into the
// session's Conversation and persists it, recording a TurnMarker with
// each agent's history length at this point for /jump to restore later.
func (s *session) snapshot() {
	s.turnIndex++
	lens := map[string]int{}
	s.conv.ParticipatingAgents = s.app.Manager.Names()
	for _, name := range s.conv.ParticipatingAgents {
		a, ok := s.app.Manager.Get(name)
		if !ok {
			continue
		}
		h := a.History()
		s.conv.Histories[name] = h
		lens[name] = len(h)
	}
	current := s.app.Manager.Current()
	agentName := ""
	if current != nil {
		agentName = current.Name
	}
	s.conv.TurnLog = append(s.conv.TurnLog, persistence.TurnMarker{
		TurnIndex:   s.turnIndex,
		AgentName:   agentName,
		Preview:     lastUserText(s.conv.Histories[agentName]),
		HistoryLens: lens,
	})
	if s.conv.Title == "" {
		s.conv.Title = titleFromHistory(s.conv.Histories[agentName])
	}
	if err := s.app.Store.Save(s.conv); err != nil {
		fmt.Println("warning: failed to save conversation:", err)
	}
}

func titleFromHistory(h []message.Message) string {
	for _, m := range h {
		if m.Role == message.RoleUser {
			t := m.PlainText()
			if len(t) > 60 {
				t = t[:60]
			}
			return t
		}
	}
	return "untitled"
}

// lastUserText returns the most recent user message's text, truncated
// for the /jump listing preview spec.md §4.6 records per TurnMarker —
// unlike titleFromHistory's first-message lookup, this reflects the
// turn that was just completed, not the conversation's opener.
func lastUserText(h []message.Message) string {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == message.RoleUser {
			t := h[i].PlainText()
			if len(t) > 60 {
				t = t[:60]
			}
			return t
		}
	}
	return ""
}

// dispatch implements spec.md §6's in-conversation command set. Each
// branch returns a deterministic control result rather than driving the
// Turn Engine.
func (s *session) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	cmdName, args := fields[0], fields[1:]

	switch cmdName {
	case "/clear":
		s.conv = &persistence.Conversation{ID: persistence.NewID(), Histories: map[string][]message.Message{}}
		s.turnIndex = 0
		for _, name := range s.app.Manager.Names() {
			if a, ok := s.app.Manager.Get(name); ok {
				a.ReplaceHistory(nil)
			}
		}
		fmt.Println("conversation cleared.")
		return nil

	case "/copy":
		current := s.app.Manager.Current()
		if current == nil {
			return errs.Config("no agent selected", nil)
		}
		h := current.History()
		for i := len(h) - 1; i >= 0; i-- {
			if h[i].Role == message.RoleAssistant {
				fmt.Println("--- copied ---")
				fmt.Println(h[i].PlainText())
				fmt.Println("--------------")
				return nil
			}
		}
		fmt.Println("no assistant turn to copy yet.")
		return nil

	case "/file":
		if len(args) == 0 {
			return errs.Config("/file requires a path", nil)
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errs.Config("read file", err)
		}
		return s.runTurn(ctx, fmt.Sprintf("file %s:\n\n%s", args[0], string(data)))

	case "/model":
		if len(args) == 0 {
			for _, m := range s.app.Models.List() {
				marker := " "
				if cur, ok := s.app.Models.GetCurrent(); ok && cur.ID == m.ID {
					marker = "*"
				}
				fmt.Printf("%s %-24s %s\n", marker, m.ID, m.Provider)
			}
			return nil
		}
		return s.app.Manager.SwitchModel(args[0])

	case "/agent":
		if len(args) == 0 {
			for _, n := range s.app.Manager.Names() {
				fmt.Println(n)
			}
			return nil
		}
		return s.app.Manager.Select(args[0])

	case "/jump":
		if len(args) == 0 {
			return errs.Config("/jump requires a turn index", nil)
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return errs.Config("/jump: invalid turn index", err)
		}
		if s.app.Engine.IsStreaming() {
			return errs.State(string(s.app.Engine.State()), "/jump rejected mid-turn")
		}
		truncated, err := s.app.Store.Jump(s.conv.ID, idx)
		if err != nil {
			return err
		}
		s.conv = truncated
		s.turnIndex = idx
		for name, h := range truncated.Histories {
			if a, ok := s.app.Manager.Get(name); ok {
				a.ReplaceHistory(h)
			}
		}
		fmt.Printf("jumped to turn %d.\n", idx)
		return nil

	case "/think":
		if len(args) == 0 {
			return errs.Config("/think requires budget|level|0|none", nil)
		}
		current := s.app.Manager.Current()
		if current == nil {
			return errs.Config("no agent selected", nil)
		}
		adapter := current.Adapter()
		if adapter == nil {
			return errs.Config("agent has no bound adapter", nil)
		}
		spec, err := parseThinkingSpec(args[0])
		if err != nil {
			return err
		}
		if !adapter.SetThinking(spec) {
			fmt.Println("current model does not support thinking.")
			return nil
		}
		fmt.Println("thinking updated.")
		return nil

	case "/list":
		metas, err := s.app.Store.List()
		if err != nil {
			return err
		}
		for _, m := range metas {
			fmt.Printf("%s  %s  %s\n", m.ID, m.UpdatedAt.Format("2006-01-02 15:04"), m.Title)
		}
		return nil

	case "/load":
		if len(args) == 0 {
			return errs.Config("/load requires a conversation id", nil)
		}
		c, err := s.app.Store.Load(args[0])
		if err != nil {
			return err
		}
		s.conv = c
		s.turnIndex = 0
		if len(c.TurnLog) > 0 {
			s.turnIndex = c.TurnLog[len(c.TurnLog)-1].TurnIndex
		}
		for name, h := range c.Histories {
			if a, ok := s.app.Manager.Get(name); ok {
				a.ReplaceHistory(h)
			}
		}
		fmt.Printf("loaded conversation %s.\n", c.ID)
		return nil

	case "/debug":
		fmt.Printf("state=%s agent=%s model=%q conversation=%s turn=%d\n",
			s.app.Engine.State(), currentAgentName(s.app), currentModelID(s.app), s.conv.ID, s.turnIndex)
		return nil

	case "/key":
		if len(args) != 2 {
			return errs.Config("/key requires a provider key and an api key: /key ANTHROPIC_API_KEY sk-...", nil)
		}
		providerKey, apiKey := args[0], args[1]
		if err := config.SetProviderCredential(s.app.Config.DataDir(), s.app.Credentials, providerKey, apiKey); err != nil {
			return err
		}
		s.app.GlobalConfig.APIKeys[providerKey] = apiKey
		fmt.Printf("stored credential for %s.\n", config.ProviderDisplayName(providerKey))
		return nil

	default:
		return errs.Config(fmt.Sprintf("unknown command %q", cmdName), nil)
	}
}

func parseThinkingSpec(arg string) (provider.ThinkingSpec, error) {
	switch arg {
	case "0", "none":
		return provider.ThinkingSpec{}, nil
	case "low", "medium", "high":
		return provider.ThinkingSpec{Level: arg}, nil
	default:
		budget, err := strconv.Atoi(arg)
		if err != nil {
			return provider.ThinkingSpec{}, errs.Config("/think: expected a token budget, level, 0, or none", err)
		}
		return provider.ThinkingSpec{Budget: budget}, nil
	}
}

func currentAgentName(app *bootstrap.App) string {
	if a := app.Manager.Current(); a != nil {
		return a.Name
	}
	return ""
}

func currentModelID(app *bootstrap.App) string {
	if m, ok := app.Models.GetCurrent(); ok {
		return m.ID
	}
	return ""
}

func newLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}
