package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/netcored/netcore/api"
	"golang.org/x/sys/unix"
)

// acquireMasterLock implements the "PID file is protected by a
// flock-style advisory lock held for the master-init critical section."
func acquireMasterLock(pidFile string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: pid dir: %w", err)
	}
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("supervisor: opening pid file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: pid file %s is locked by another process", api.ErrAlreadyRunning, pidFile)
	}
	return f, nil
}

func releaseMasterLock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
