package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/automaton/internal/storage"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestBeginComplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := openLedger(t)

	require.NoError(t, l.Begin(ctx, BeginRequest{
		UnitID:      "u1",
		RunID:       "r1",
		WorkspaceID: "automaton_abc",
		Inputs:      []string{"/in/a.txt"},
	}))

	e, err := l.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, e.Status)
	assert.Equal(t, []string{"/in/a.txt"}, e.Inputs)
	assert.Empty(t, e.Outputs)
	assert.Nil(t, e.CompletedAt)
	assert.Nil(t, e.LastError)

	require.NoError(t, l.Complete(ctx, CompleteRequest{
		UnitID:    "u1",
		Status:    StatusFailed,
		Outputs:   []string{"/out/a.log"},
		LastError: "processor failed",
	}))

	e, err = l.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, []string{"/out/a.log"}, e.Outputs)
	require.NotNil(t, e.LastError)
	assert.Equal(t, "processor failed", *e.LastError)
	require.NotNil(t, e.CompletedAt)
}

func TestCompleteRejectsNonTerminalStatus(t *testing.T) {
	t.Parallel()
	l := openLedger(t)
	err := l.Complete(context.Background(), CompleteRequest{UnitID: "u1", Status: StatusRunning})
	require.Error(t, err)
}

func TestCompleteUnknownUnit(t *testing.T) {
	t.Parallel()
	l := openLedger(t)
	err := l.Complete(context.Background(), CompleteRequest{UnitID: "nope", Status: StatusSucceeded})
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	l := openLedger(t)
	_, err := l.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRecentNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := openLedger(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"u1", "u2", "u3"} {
		at := base.Add(time.Duration(i) * time.Minute)
		l.now = func() time.Time { return at }
		require.NoError(t, l.Begin(ctx, BeginRequest{UnitID: id, RunID: "r", WorkspaceID: "ws-" + id}))
	}

	got, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u3", got[0].ID)
	assert.Equal(t, "u2", got[1].ID)
}

func TestFindByWorkspaceAndStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := openLedger(t)

	require.NoError(t, l.Begin(ctx, BeginRequest{UnitID: "u1", RunID: "r", WorkspaceID: "ws1"}))
	require.NoError(t, l.Begin(ctx, BeginRequest{UnitID: "u2", RunID: "r", WorkspaceID: "ws2"}))
	require.NoError(t, l.Complete(ctx, CompleteRequest{UnitID: "u1", Status: StatusSucceeded}))

	e, err := l.FindByWorkspace(ctx, "ws2")
	require.NoError(t, err)
	assert.Equal(t, "u2", e.ID)

	running, err := l.FindByStatus(ctx, StatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "u2", running[0].ID)

	_, err = l.FindByWorkspace(ctx, "ws-none")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPruneKeepsRunningAndRecent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := openLedger(t)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return old }
	require.NoError(t, l.Begin(ctx, BeginRequest{UnitID: "old", RunID: "r", WorkspaceID: "ws1"}))
	require.NoError(t, l.Complete(ctx, CompleteRequest{UnitID: "old", Status: StatusSucceeded}))
	require.NoError(t, l.Begin(ctx, BeginRequest{UnitID: "stuck", RunID: "r", WorkspaceID: "ws2"}))

	now := old.Add(48 * time.Hour)
	l.now = func() time.Time { return now }
	require.NoError(t, l.Begin(ctx, BeginRequest{UnitID: "fresh", RunID: "r", WorkspaceID: "ws3"}))
	require.NoError(t, l.Complete(ctx, CompleteRequest{UnitID: "fresh", Status: StatusFailed}))

	n, err := l.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = l.Get(ctx, "old")
	require.ErrorIs(t, err, ErrEntryNotFound)
	_, err = l.Get(ctx, "stuck")
	require.NoError(t, err)
	_, err = l.Get(ctx, "fresh")
	require.NoError(t, err)
}
