package main

import (
	"testing"

	"github.com/netcored/netcore/internal/config"
	"github.com/stretchr/testify/require"
)

func TestStartWorkerRejectsUnknownServerName(t *testing.T) {
	cfg := config.Default()
	cfg.Servers = []config.ServerSpec{{Name: "echo"}}

	err := startWorker(cfg, "missing", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}
