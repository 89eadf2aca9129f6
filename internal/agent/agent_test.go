package agent

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpcoordinator/internal/eventlog"
	"mcpcoordinator/internal/session"
)

func newTestRegistry(t *testing.T) (*Registry, *session.Manager, eventlog.Log) {
	t.Helper()

	sessions := session.NewManager(time.Minute)
	t.Cleanup(sessions.Stop)

	log, err := eventlog.NewBoltLog(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	reg := New(sessions, log)
	t.Cleanup(reg.Stop)

	return reg, sessions, log
}

func TestRegistry_RegisterIsIdempotentOnName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	a1, sess1, err := reg.Register("CoderBlueKoala", []string{"coding"}, "", false)
	require.NoError(t, err)

	a2, sess2, err := reg.Register("CoderBlueKoala", []string{"coding", "testing"}, "", false)
	require.NoError(t, err)

	require.Equal(t, a1.ID, a2.ID)
	require.NotEqual(t, sess1.Token, sess2.Token)
	require.ElementsMatch(t, []string{"coding", "testing"}, a2.Capabilities)
}

func TestRegistry_HeartbeatUnknownAgent(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	err := reg.Heartbeat("does-not-exist")
	require.ErrorIs(t, err, ErrUnknownAgent)
}

func TestRegistry_Unregister(t *testing.T) {
	reg, sessions, _ := newTestRegistry(t)

	a, sess, err := reg.Register("CoderRedFox", []string{"coding"}, "", false)
	require.NoError(t, err)

	require.NoError(t, reg.Unregister(a.ID))

	_, ok := reg.Get(a.ID)
	require.False(t, ok)

	_, valid := sessions.Validate(sess.Token)
	require.False(t, valid)
}

func TestAgent_StaleBoundary(t *testing.T) {
	now := time.Now()
	a := &Agent{LastHeartbeat: now.Add(-90 * time.Second)}

	require.False(t, a.IsStale(now, 90*time.Second), "exactly at threshold must not be stale")
	require.True(t, a.IsStale(now.Add(time.Nanosecond), 90*time.Second), "one tick past threshold must be stale")
}

func TestRegistry_CapabilitySubsetMatch(t *testing.T) {
	a := &Agent{Capabilities: []string{"coding", "testing"}}

	require.True(t, a.HasCapabilities([]string{"coding"}))
	require.True(t, a.HasCapabilities([]string{"coding", "testing"}))
	require.False(t, a.HasCapabilities([]string{"coding", "deploy"}))
}

func TestRegistry_List(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, _, err := reg.Register("A", []string{"coding"}, "", false)
	require.NoError(t, err)
	_, _, err = reg.Register("B", []string{"coding"}, "", false)
	require.NoError(t, err)

	require.Len(t, reg.List(), 2)
}

func TestRegistry_RestoreRebuildsFromEventLog(t *testing.T) {
	reg, _, log := newTestRegistry(t)

	a, _, err := reg.Register("CoderGreenWren", []string{"coding", "testing"}, "cb-1", true)
	require.NoError(t, err)

	events, err := log.ReplayFrom("agents", 0)
	require.NoError(t, err)

	fresh, _, _ := newTestRegistry(t)
	fresh.Restore(events)

	restored, ok := fresh.Get(a.ID)
	require.True(t, ok)
	require.Equal(t, a.Name, restored.Name)
	require.ElementsMatch(t, []string{"coding", "testing"}, restored.Capabilities)
	require.Equal(t, "cb-1", restored.CodebaseID)
	require.True(t, restored.CrossCodebaseCapable)
	require.Empty(t, restored.SessionToken, "a restored agent has no live session")
}

func TestRegistry_RestoreAppliesUnregister(t *testing.T) {
	reg, _, log := newTestRegistry(t)

	a, _, err := reg.Register("CoderOrangeLynx", []string{"coding"}, "", false)
	require.NoError(t, err)
	require.NoError(t, reg.Unregister(a.ID))

	events, err := log.ReplayFrom("agents", 0)
	require.NoError(t, err)

	fresh, _, _ := newTestRegistry(t)
	fresh.Restore(events)

	_, ok := fresh.Get(a.ID)
	require.False(t, ok, "unregistered agent must not reappear on restore")
}
