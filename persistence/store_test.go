package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	c := &Conversation{
		Title:               "bug fix",
		ParticipatingAgents: []string{"router"},
		Histories: map[string][]message.Message{
			"router": {message.TextOnly(message.RoleUser, "hello")},
		},
	}
	require.NoError(t, s.Save(c))
	require.NotEmpty(t, c.ID)

	loaded, err := s.Load(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "bug fix", loaded.Title)
	require.Len(t, loaded.Histories["router"], 1)
	assert.Equal(t, "hello", loaded.Histories["router"][0].PlainText())
}

func TestListReturnsMetadataOnlyNewestFirst(t *testing.T) {
	s := newTestStore(t)
	older := &Conversation{Title: "older", Histories: map[string][]message.Message{}}
	require.NoError(t, s.Save(older))
	time.Sleep(2 * time.Millisecond)
	newer := &Conversation{Title: "newer", Histories: map[string][]message.Message{}}
	require.NoError(t, s.Save(newer))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "newer", metas[0].Title)
	assert.Equal(t, "older", metas[1].Title)
}

func TestJumpTruncatesToTurnMarker(t *testing.T) {
	s := newTestStore(t)
	c := &Conversation{
		Title:               "multi-turn",
		ParticipatingAgents: []string{"router"},
		Histories: map[string][]message.Message{
			"router": {
				message.TextOnly(message.RoleUser, "one"),
				message.TextOnly(message.RoleAssistant, "one reply"),
				message.TextOnly(message.RoleUser, "two"),
				message.TextOnly(message.RoleAssistant, "two reply"),
			},
		},
		TurnLog: []TurnMarker{
			{TurnIndex: 0, AgentName: "router", HistoryLens: map[string]int{"router": 2}},
			{TurnIndex: 1, AgentName: "router", HistoryLens: map[string]int{"router": 4}},
		},
	}
	require.NoError(t, s.Save(c))

	jumped, err := s.Jump(c.ID, 0)
	require.NoError(t, err)
	require.Len(t, jumped.Histories["router"], 2)
	assert.Equal(t, "one reply", jumped.Histories["router"][1].PlainText())
	require.Len(t, jumped.TurnLog, 1)
}

func TestJumpUnknownTurnIndexFails(t *testing.T) {
	s := newTestStore(t)
	c := &Conversation{Histories: map[string][]message.Message{}}
	require.NoError(t, s.Save(c))

	_, err := s.Jump(c.ID, 99)
	require.Error(t, err)
}

func TestPruneRemovesOlderThanHorizon(t *testing.T) {
	s := newTestStore(t)
	old := &Conversation{Title: "stale", Histories: map[string][]message.Message{}}
	require.NoError(t, s.Save(old))

	// backdate by rewriting UpdatedAt directly and re-saving without
	// letting Save refresh it — simulate age by loading, editing the
	// timestamp on disk via a direct reload-then-save is not possible
	// since Save always stamps now; instead prune with a zero horizon
	// to exercise the "everything is older than now" path deterministically.
	n, err := s.Prune(0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	_, err = s.Load(old.ID)
	require.Error(t, err)
}

func TestProcessLockPreventsSecondAcquire(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AcquireProcessLock())

	err := s.AcquireProcessLock()
	require.Error(t, err)

	require.NoError(t, s.ReleaseProcessLock())
	require.NoError(t, s.AcquireProcessLock())
}
