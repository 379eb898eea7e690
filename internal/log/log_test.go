package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// The global logger initializes once per process, so a single test walks
// through the behaviors in order.
func TestLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	cleanup, err := Init(path)
	require.NoError(t, err)
	defer cleanup()

	Info(CatStore, "store opened", "path", "/tmp/x")
	Debug(CatRegistry, "cache hit", "id", "flow-a")
	ErrorErr(CatLock, "acquire failed", os.ErrPermission)

	read := func() string {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(data)
	}

	out := read()
	require.Contains(t, out, "[INFO] [store] store opened path=/tmp/x")
	require.Contains(t, out, "[DEBUG] [registry] cache hit id=flow-a")
	require.Contains(t, out, "[ERROR] [lock] acquire failed")
	require.Contains(t, out, "error=permission denied")

	// Raising the minimum level filters lower levels.
	SetMinLevel(LevelWarn)
	Info(CatStore, "below threshold")
	require.NotContains(t, read(), "below threshold")
	Warn(CatStore, "at threshold")
	require.Contains(t, read(), "at threshold")

	// Disabling silences everything.
	SetEnabled(false)
	Error(CatStore, "while disabled")
	require.NotContains(t, read(), "while disabled")

	SetEnabled(true)
	SetMinLevel(LevelDebug)
}
