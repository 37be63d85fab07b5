package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalStopFailsWithoutPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pid")
	err := SignalStop(path, false)
	require.Error(t, err)
}

func TestSignalReloadFailsForDeadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcored.pid")
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0o644))

	err := SignalReload(path, true)
	require.Error(t, err)
}

func TestStopSignalAndReloadSignalPickForcefulOrGraceful(t *testing.T) {
	require.NotEqual(t, stopSignal(false), stopSignal(true))
	require.NotEqual(t, reloadSignal(false), reloadSignal(true))
}
