package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*FSManager, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "tmp")
	mgr, err := NewFSManager(root, "")
	require.NoError(t, err)
	return mgr, root
}

func TestNewFSManagerRejectsBadInput(t *testing.T) {
	_, err := NewFSManager("  ", "")
	assert.Error(t, err)

	_, err = NewFSManager(t.TempDir(), "a/b")
	assert.Error(t, err)
}

func TestFSManagerCreateAndOpen(t *testing.T) {
	mgr, root := newManager(t)
	ctx := context.Background()

	ws, err := mgr.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, root, filepath.Dir(ws.Dir))
	assert.True(t, strings.HasPrefix(ws.ID, DefaultPrefix), "id %q", ws.ID)
	assert.Equal(t, filepath.Join(ws.Dir, InDir), ws.In)
	assert.Equal(t, filepath.Join(ws.Dir, OutDir), ws.Out)
	assert.DirExists(t, ws.In)
	assert.DirExists(t, ws.Out)

	opened, err := mgr.Open(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, ws, opened)
}

func TestFSManagerCreateIsCollisionFree(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for range 50 {
		ws, err := mgr.Create(ctx)
		require.NoError(t, err)
		_, dup := seen[ws.Dir]
		require.False(t, dup, "duplicate workspace %s", ws.Dir)
		seen[ws.Dir] = struct{}{}
	}
}

func TestFSManagerOpenRejectsTraversal(t *testing.T) {
	mgr, _ := newManager(t)
	for _, id := range []string{"", "..", "a/b", "./x"} {
		_, err := mgr.Open(context.Background(), id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestFSManagerListAndRemove(t *testing.T) {
	mgr, root := newManager(t)
	ctx := context.Background()

	list, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	ws, err := mgr.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.In, "a.txt"), []byte("x"), 0o644))

	// Foreign directories under a shared root are not ours.
	require.NoError(t, os.Mkdir(filepath.Join(root, "someone-else"), 0o755))

	list, err = mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ws.ID, list[0].ID)
	assert.Equal(t, 1, list[0].Inputs)
	assert.Equal(t, 0, list[0].Outputs)

	require.NoError(t, mgr.Remove(ctx, ws))
	assert.NoDirExists(t, ws.Dir)
	assert.DirExists(t, filepath.Join(root, "someone-else"))
}

func TestFSManagerRemoveRefusesForeignPath(t *testing.T) {
	mgr, _ := newManager(t)
	other := t.TempDir()

	err := mgr.Remove(context.Background(), Workspace{ID: "x", Dir: other})
	assert.Error(t, err)
	assert.DirExists(t, other)
}

func TestFSManagerCleanup(t *testing.T) {
	mgr, root := newManager(t)
	ctx := context.Background()

	oldWS, err := mgr.Create(ctx)
	require.NoError(t, err)
	newWS, err := mgr.Create(ctx)
	require.NoError(t, err)

	foreign := filepath.Join(root, "keep-me")
	require.NoError(t, os.Mkdir(foreign, 0o755))

	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldWS.Dir, oldTime, oldTime))
	require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

	report, err := mgr.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeletedDirs)
	assert.Equal(t, []string{oldWS.Dir}, report.Deleted)

	assert.NoDirExists(t, oldWS.Dir)
	assert.DirExists(t, newWS.Dir)
	assert.DirExists(t, foreign)

	_, err = mgr.Cleanup(ctx, 0)
	assert.Error(t, err)
}

func TestFSManagerHonoursCancelledContext(t *testing.T) {
	mgr, root := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Create(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, root)
}
