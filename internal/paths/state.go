// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveStateDir resolves the .flowstate directory path from user input.
// It normalizes the input (accepting either a project dir or the .flowstate
// dir itself) and follows redirect files for git worktrees.
//
// Input normalization:
//   - "/path/to/project" -> "/path/to/project/.flowstate"
//   - "/path/to/project/.flowstate" -> "/path/to/project/.flowstate"
//   - "/path/to/data" (containing flowstate.json) -> "/path/to/data"
//   - "" -> "./.flowstate"
//
// Redirect handling:
//   - If .flowstate/redirect exists, follows it to the actual location.
//     This supports git worktrees where .flowstate contains a redirect to
//     the main worktree.
func ResolveStateDir(path string) string {
	if path == "" {
		path = "."
	}
	path = filepath.Clean(path)

	// If path already ends with .flowstate, use it directly
	if filepath.Base(path) == ".flowstate" {
		return followRedirect(path)
	}

	// If path contains the store file directly, use it as the state dir.
	storePath := filepath.Join(path, "flowstate.json")
	if _, err := os.Stat(storePath); err == nil {
		return followRedirect(path)
	}

	return followRedirect(filepath.Join(path, ".flowstate"))
}

// followRedirect checks for a redirect file and follows it if present.
func followRedirect(stateDir string) string {
	redirectPath := filepath.Join(stateDir, "redirect")

	content, err := os.ReadFile(redirectPath) //nolint:gosec // redirect path is within the state dir
	if err != nil {
		return stateDir
	}

	redirectTarget := strings.TrimSpace(string(content))
	if redirectTarget == "" {
		return stateDir
	}

	return filepath.Clean(filepath.Join(stateDir, redirectTarget))
}
