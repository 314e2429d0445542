package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// The logger is a process-global initialized once, so one test walks it
// through its states in order.
func TestLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	cleanup, err := Init(path)
	require.NoError(t, err)
	defer cleanup()

	SetEnabled(true)
	SetMinLevel(LevelDebug)

	Debug(CatScan, "scan complete", "sources", 3)
	Info(CatEngine, "run started", "mode", "full")
	Warn(CatState, "state file corrupt")
	ErrorErr(CatDB, "merge failed", os.ErrPermission, "rows", 10)

	SetMinLevel(LevelWarn)
	Info(CatEngine, "below threshold")

	SetEnabled(false)
	Error(CatEngine, "while disabled")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	require.Contains(t, out, "[DEBUG] [scan] scan complete sources=3")
	require.Contains(t, out, "[INFO] [engine] run started mode=full")
	require.Contains(t, out, "[WARN] [state] state file corrupt")
	require.Contains(t, out, "[ERROR] [db] merge failed rows=10 error=permission denied")
	require.NotContains(t, out, "below threshold")
	require.NotContains(t, out, "while disabled")
}

func TestLevelString(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "INFO", LevelInfo.String())
	require.Equal(t, "WARN", LevelWarn.String())
	require.Equal(t, "ERROR", LevelError.String())
	require.Equal(t, "UNKNOWN", Level(99).String())
}
