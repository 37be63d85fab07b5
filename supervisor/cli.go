package supervisor

import (
	"fmt"
	"syscall"
)

// SignalStop and SignalReload are the CLI-side half of the stop/reload
// protocols: a separate `netcored stop`/`reload` invocation has no handle
// on the running master beyond its pid file, so it sends the signal
// matching the requested variant and lets the master's own installSignals
// dispatch take it from there.
func SignalStop(pidFile string, graceful bool) error {
	return signalMaster(pidFile, stopSignal(graceful))
}

// SignalReload also backs the `restart` verb: the signal table names
// only reload's forceful/graceful variants, with no master-restart
// semantics distinct from a worker reload, so `restart` is implemented
// as an alias for `reload`.
func SignalReload(pidFile string, graceful bool) error {
	return signalMaster(pidFile, reloadSignal(graceful))
}

func stopSignal(graceful bool) syscall.Signal {
	if graceful {
		return syscall.SIGQUIT
	}
	return syscall.SIGTERM
}

func reloadSignal(graceful bool) syscall.Signal {
	if graceful {
		return syscall.SIGUSR2
	}
	return syscall.SIGUSR1
}

func signalMaster(pidFile string, sig syscall.Signal) error {
	pid, err := readPIDFile(pidFile)
	if err != nil {
		return err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return fmt.Errorf("supervisor: signalling master %d: %w", pid, err)
	}
	return nil
}
