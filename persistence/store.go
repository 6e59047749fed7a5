// Package persistence implements Persistence (PS) of spec.md §4.6: one
// durable file per conversation, written atomically after each assistant
// turn, with list/load/jump/prune and a single-instance process lock.
// Grounded on otui's storage/sessions.go (Save/Load/List/LockOTUIInstance/
// CheckOTUIInstanceLock), generalized from a single flat message list to
// spec.md's multi-agent histories-plus-turn-log Conversation record.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/errs"
	"github.com/hkdb/agentcore/message"
)

// TurnMarker records, for one completed turn, the length of each
// participating agent's history at that point — the truncation target
// `jump(turn_index)` restores, per spec.md §4.6.
type TurnMarker struct {
	TurnIndex   int            `json:"turn_index"`
	CompletedAt time.Time      `json:"completed_at"`
	AgentName   string         `json:"agent_name"`
	// Preview is the spec.md §4.6 jump-back listing text: the user
	// message that opened this turn, truncated for display.
	Preview     string         `json:"preview"`
	HistoryLens map[string]int `json:"history_lens"`
}

// Conversation is the durable record: canonical per-agent histories plus
// the turn log needed to reconstruct any earlier point, per spec.md §4.6.
type Conversation struct {
	ID                   string                          `json:"id"`
	Title                string                          `json:"title"`
	CreatedAt            time.Time                       `json:"created_at"`
	UpdatedAt            time.Time                       `json:"updated_at"`
	ParticipatingAgents  []string                        `json:"participating_agents"`
	Histories            map[string][]message.Message    `json:"histories"`
	TurnLog              []TurnMarker                    `json:"turn_log"`
}

// Metadata is the lightweight listing shape, per spec.md §4.6
// "list() returns metadata (id, title, updated-at) without loading bodies".
type Metadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the Persistence singleton, rooted at dataDir/conversations.
type Store struct {
	dir    string
	dbDir  string
	log    *zap.SugaredLogger
	pruner *cron.Cron
}

func New(dataDir string, log *zap.SugaredLogger) (*Store, error) {
	dir := filepath.Join(dataDir, "conversations")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errs.Persistence("init", err)
	}
	return &Store{dir: dir, dbDir: dataDir, log: log}, nil
}

// NewID mints a conversation id, per spec.md §6 "id (ulid-like)".
func NewID() string { return ulid.Make().String() }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the conversation atomically: marshal to a temp file in the
// same directory, fsync, then rename over the destination — so a crash
// mid-write never leaves a half-written conversation file, per spec.md
// §4.6's "written atomically (write-temp, fsync, rename)".
func (s *Store) Save(c *Conversation) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	c.UpdatedAt = time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errs.Persistence("marshal", err)
	}

	dest := s.path(c.ID)
	tmp := dest + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errs.Persistence("open temp", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.Persistence("write temp", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.Persistence("fsync", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errs.Persistence("close temp", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return errs.Persistence("rename", err)
	}
	return nil
}

// Load restores a conversation's full histories and turn log.
func (s *Store) Load(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, errs.Persistence("read", err)
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errs.Persistence("unmarshal", err)
	}
	return &c, nil
}

// List returns metadata for every stored conversation, newest first,
// without deserializing full histories — per spec.md §4.6.
func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Persistence("readdir", err)
	}

	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Warnw("skipping unreadable conversation file", "file", e.Name(), "error", err)
			continue
		}
		// Metadata shares field names with Conversation's leading fields,
		// so one Unmarshal pass extracts it without touching Histories.
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			s.log.Warnw("skipping corrupted conversation file", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Jump truncates every participating agent's history back to the
// lengths recorded at turnIndex, discarding later content, per spec.md
// §4.6. It returns the truncated conversation for the caller to
// re-install into the live agent.Manager and does not itself re-save —
// the caller decides whether the truncation should be persisted before
// the next turn overwrites it anyway.
func (s *Store) Jump(id string, turnIndex int) (*Conversation, error) {
	c, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	var marker *TurnMarker
	for i := range c.TurnLog {
		if c.TurnLog[i].TurnIndex == turnIndex {
			marker = &c.TurnLog[i]
			break
		}
	}
	if marker == nil {
		return nil, errs.Persistence("jump", fmt.Errorf("no turn marker at index %d", turnIndex))
	}

	for agentName, n := range marker.HistoryLens {
		h := c.Histories[agentName]
		if n < len(h) {
			c.Histories[agentName] = h[:n]
		}
	}
	c.TurnLog = c.TurnLog[:indexOfMarker(c.TurnLog, turnIndex)+1]
	return c, nil
}

func indexOfMarker(markers []TurnMarker, turnIndex int) int {
	for i, m := range markers {
		if m.TurnIndex == turnIndex {
			return i
		}
	}
	return len(markers) - 1
}

// Delete removes a conversation file outright.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		return errs.Persistence("delete", err)
	}
	return nil
}

// Prune deletes every conversation whose UpdatedAt is older than horizon.
func (s *Store) Prune(horizon time.Duration) (int, error) {
	metas, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-horizon)
	removed := 0
	for _, m := range metas {
		if m.UpdatedAt.Before(cutoff) {
			if err := s.Delete(m.ID); err != nil {
				s.log.Warnw("prune failed to delete conversation", "id", m.ID, "error", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// StartPruneSchedule runs Prune(horizon) on cronSpec (default daily at
// 03:17, spec.md §4.6 "default 30 days" horizon), grounded on
// hieuntg81-alfred-ai's robfig/cron usage for periodic background work.
func (s *Store) StartPruneSchedule(cronSpec string, horizon time.Duration) error {
	if cronSpec == "" {
		cronSpec = "17 3 * * *"
	}
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		n, err := s.Prune(horizon)
		if err != nil {
			s.log.Warnw("scheduled prune failed", "error", err)
			return
		}
		if n > 0 {
			s.log.Infow("pruned old conversations", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	c.Start()
	s.pruner = c
	return nil
}

func (s *Store) StopPruneSchedule() {
	if s.pruner != nil {
		s.pruner.Stop()
	}
}
