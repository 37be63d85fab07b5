package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/netcored/netcore/internal/config"
	"github.com/stretchr/testify/require"
)

func TestManifestListsOnlyOccupiedSlots(t *testing.T) {
	s := newTestSupervisor(config.ServerSpec{Name: "echo", Addr: "127.0.0.1:9000"})
	s.slots["echo"] = []*workerSlot{
		{index: 0, pid: 111, spec: config.ServerSpec{Name: "echo", Addr: "127.0.0.1:9000"}},
		{index: 1, pid: 0, spec: config.ServerSpec{Name: "echo", Addr: "127.0.0.1:9000"}},
	}

	rows := s.manifest()
	require.Len(t, rows, 1)
	require.Equal(t, 111, rows[0].PID)
	require.Equal(t, "echo", rows[0].Server)
}

func TestReadPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcored.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(4242)+"\n"), 0o644))

	pid, err := readPIDFile(path)
	require.NoError(t, err)
	require.Equal(t, 4242, pid)
}

func TestReadPIDFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcored.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := readPIDFile(path)
	require.Error(t, err)
}

func TestDumpStatusWritesManifestAndChmods(t *testing.T) {
	dir := t.TempDir()
	statusFile := filepath.Join(dir, "netcored.status")

	s := newTestSupervisor(config.ServerSpec{Name: "echo", Addr: "127.0.0.1:9000"})
	s.cfg.StatusFile = statusFile
	// Use a pid unlikely to exist; dumpStatus's syscall.Kill errors are
	// intentionally discarded, matching "best effort" delivery to a
	// worker that may already be gone.
	s.slots["echo"] = []*workerSlot{{index: 0, pid: 999999, spec: config.ServerSpec{Name: "echo", Addr: "127.0.0.1:9000"}}}

	s.dumpStatus(false)

	data, err := os.ReadFile(statusFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "echo")
	require.Contains(t, string(data), "127.0.0.1:9000")

	info, err := os.Stat(statusFile)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o722), info.Mode().Perm())
}
