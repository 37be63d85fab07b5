package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/netcored/netcore/api"
	"github.com/stretchr/testify/require"
)

func TestAcquireMasterLockRejectsSecondHolder(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "netcored.pid")

	first, err := acquireMasterLock(pidFile)
	require.NoError(t, err)
	defer releaseMasterLock(first)

	_, err = acquireMasterLock(pidFile)
	require.ErrorIs(t, err, api.ErrAlreadyRunning)
}

func TestAcquireMasterLockSucceedsAfterRelease(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "netcored.pid")

	first, err := acquireMasterLock(pidFile)
	require.NoError(t, err)
	releaseMasterLock(first)

	second, err := acquireMasterLock(pidFile)
	require.NoError(t, err)
	releaseMasterLock(second)
}
