package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStateDir_EmptyDefaultsToLocal(t *testing.T) {
	require.Equal(t, ".flowstate", ResolveStateDir(""))
}

func TestResolveStateDir_ProjectDirAppended(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, filepath.Join(dir, ".flowstate"), ResolveStateDir(dir))
}

func TestResolveStateDir_AlreadyStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".flowstate")
	require.Equal(t, dir, ResolveStateDir(dir))
}

func TestResolveStateDir_DirContainingStoreFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flowstate.json"), []byte("{}"), 0644))
	require.Equal(t, dir, ResolveStateDir(dir))
}

func TestResolveStateDir_FollowsRedirect(t *testing.T) {
	// Worktree layout: worktree/.flowstate/redirect points at the main
	// checkout's state dir.
	root := t.TempDir()
	mainState := filepath.Join(root, "main", ".flowstate")
	worktreeState := filepath.Join(root, "worktree", ".flowstate")
	require.NoError(t, os.MkdirAll(mainState, 0755))
	require.NoError(t, os.MkdirAll(worktreeState, 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(worktreeState, "redirect"),
		[]byte("../../main/.flowstate\n"), 0644))

	require.Equal(t, mainState, ResolveStateDir(worktreeState))
}

func TestResolveStateDir_EmptyRedirectIgnored(t *testing.T) {
	state := filepath.Join(t.TempDir(), ".flowstate")
	require.NoError(t, os.MkdirAll(state, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(state, "redirect"), []byte("  \n"), 0644))

	require.Equal(t, state, ResolveStateDir(state))
}
