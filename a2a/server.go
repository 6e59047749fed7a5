// Package a2a implements spec.md §6's A2A endpoint: every local
// (non-remote) agent is exposed at "<base-url>/<agent-name>", accepting
// the JSON envelope `{task, relevant_messages: list[Message]}` and
// streaming canonical StreamEvents back as newline-delimited JSON.
// Grounded on gin (pkdindustries-soulshack's transitive HTTP stack) —
// the only HTTP server library exercised end-to-end in the retrieved
// corpus.
package a2a

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/agent"
	"github.com/hkdb/agentcore/message"
	"github.com/hkdb/agentcore/turn"
)

// envelope is the request body spec.md §6 defines for the A2A endpoint.
type envelope struct {
	Task             string            `json:"task"`
	RelevantMessages []message.Message `json:"relevant_messages"`
}

// Server owns the HTTP surface for one agent.Manager/turn.Engine pair.
// Every request serializes against the shared Turn Engine: spec.md §4.4
// enforces exactly one active agent at a time, and an A2A call activating
// a second agent concurrently with a console turn would violate that
// invariant just as two console turns would.
type Server struct {
	manager *agent.Manager
	engine  *turn.Engine
	log     *zap.SugaredLogger

	mu sync.Mutex
	r  *gin.Engine
}

func New(manager *agent.Manager, engine *turn.Engine, log *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{manager: manager, engine: engine, log: log, r: gin.New()}
	s.r.Use(gin.Recovery())
	s.r.POST("/:agent", s.handleAgent)
	return s
}

func (s *Server) Handler() http.Handler { return s.r }

// handleAgent implements one A2A call: select the named local agent,
// install relevant_messages as its working context (mirroring
// agent.Manager.Transfer's system-prompt-plus-projected-history shape),
// and stream the turn's events back as they arrive.
func (s *Server) handleAgent(c *gin.Context) {
	name := c.Param("agent")

	// a request id ties every log line this call produces together,
	// independent of the A2A envelope's own content.
	reqID := uuid.NewString()
	c.Writer.Header().Set("X-Request-Id", reqID)
	log := s.log.With("request_id", reqID, "agent", name)

	ag, ok := s.manager.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent " + name})
		return
	}
	if ag.IsRemote() {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent " + name + " is a remote agent, not served locally"})
		return
	}

	var env envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed envelope: " + err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.manager.Select(name); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	prompt := s.manager.RenderTransferPrompt(name)
	sysMsg := message.TextOnly(message.RoleSystem, ag.RenderSystemPrompt(prompt))
	ag.ReplaceHistory(append([]message.Message{sysMsg}, env.RelevantMessages...))

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, canFlush := c.Writer.(http.Flusher)

	enc := json.NewEncoder(c.Writer)
	events := make(chan message.StreamEvent, 32)

	go func() {
		xfer, err := s.engine.Run(c.Request.Context(), env.Task, func(n turn.Notification) {
			if n.Event.Kind != "" {
				events <- n.Event
			}
		})
		if err != nil {
			events <- message.StopEvent(message.StopError, err)
		}
		if xfer != nil {
			// A2A serves a single named agent per request; a transfer
			// tool call mid-turn has no endpoint to hand the target off
			// to, so it's dropped here rather than followed.
			log.Warnw("transfer requested on a2a endpoint, dropping", "target", xfer.TargetAgent)
		}
		close(events)
	}()

	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			log.Warnw("a2a: failed to encode stream event", "error", err)
			break
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
