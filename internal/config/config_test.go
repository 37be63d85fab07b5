package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netcored.yaml")
	body := []byte(`
runtime_dir: /tmp/netcored-test
stop_timeout: 5s
servers:
  - name: echo
    transport: tcp
    addr: ":9000"
    worker_count: 2
    reloadable: true
    codec: length
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/netcored-test", cfg.RuntimeDir)
	require.Equal(t, 5*time.Second, cfg.StopTimeout)
	require.Len(t, cfg.Servers, 1)
	require.Equal(t, "echo", cfg.Servers[0].Name)
	require.Equal(t, 2, cfg.Servers[0].WorkerCount)
	require.True(t, cfg.Servers[0].Reloadable)
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	require.Equal(t, Default().PIDFile, cfg.PIDFile)
	require.Empty(t, cfg.Servers)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("daemonize", false, "")
	require.NoError(t, cmd.Flags().Set("daemonize", "true"))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	require.True(t, cfg.Daemonize)
}
