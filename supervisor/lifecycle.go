package supervisor

import (
	"fmt"
	"os"
	"strconv"

	"github.com/netcored/netcore/api"
)

// RunAll executes the lifecycle phases strictly in order:
// global init → master-file lock acquisition (probe) → daemonize →
// master-file lock acquisition (real, post-fork) → per-server init →
// signal handler installation → PID file write → lock release → UI
// banner → fork workers → enter monitor loop.
//
// The lock is acquired twice rather than once straddling the fork: a
// real fork() inherits open file descriptors, so the source's single
// flock(2) call covers both the pre-fork and post-fork halves of
// "daemonize" automatically; this module's fork substitute is an
// os/exec re-exec into a brand-new process image, which does not inherit
// fds unless explicitly passed down. Probing first
// keeps the fail-fast "already running" check in the original process
// (so its exit code is visible to the invoking shell); the real
// acquisition happens in whichever process ends up being the lasting
// master, daemonized or not. Recorded as an Open Question decision.
func (s *Supervisor) RunAll() error {
	s.log.Info("supervisor starting")

	probe, err := acquireMasterLock(s.cfg.PIDFile)
	if err != nil {
		return err
	}
	releaseMasterLock(probe)

	if s.cfg.Daemonize {
		isFinal, err := daemonize(s.cfg)
		if err != nil {
			return fmt.Errorf("supervisor: daemonize: %w", err)
		}
		if !isFinal {
			return nil
		}
	}

	lock, err := acquireMasterLock(s.cfg.PIDFile)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, spec := range s.cfg.Servers {
		slots := make([]*workerSlot, spec.WorkerCount)
		for i := range slots {
			slots[i] = &workerSlot{index: i, spec: spec}
		}
		s.slots[spec.Name] = slots
	}
	s.mu.Unlock()

	s.installSignals()

	if err := os.WriteFile(s.cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		releaseMasterLock(lock)
		return fmt.Errorf("supervisor: writing pid file: %w", err)
	}

	releaseMasterLock(lock)

	if !s.cfg.Quiet {
		s.printBanner()
	}

	s.setStatus(api.SupervisorRunning)
	s.mu.Lock()
	names := make([]string, 0, len(s.cfg.Servers))
	counts := make(map[string]int, len(s.cfg.Servers))
	for _, spec := range s.cfg.Servers {
		names = append(names, spec.Name)
		counts[spec.Name] = spec.WorkerCount
	}
	s.mu.Unlock()
	for _, name := range names {
		for i := 0; i < counts[name]; i++ {
			if err := s.forkSlot(name, i); err != nil {
				s.log.WithError(err).Error("initial fork failed")
			}
		}
	}

	return s.monitor()
}

func (s *Supervisor) printBanner() {
	s.mu.Lock()
	n := len(s.cfg.Servers)
	s.mu.Unlock()
	fmt.Fprintf(os.Stdout, "netcored: supervisor pid %d, %d server(s) configured\n", os.Getpid(), n)
}

// monitor is the master's "enter monitor loop" phase: it drains worker
// exits until a shutdown has fully drained every slot, then unlinks the
// PID file and invokes onMasterStop.
func (s *Supervisor) monitor() error {
	for ev := range s.exited {
		s.handleExit(ev)
		if s.Status() == api.SupervisorShutdown && s.allSlotsVacant() {
			break
		}
	}
	_ = os.Remove(s.cfg.PIDFile)
	if s.hooks.OnMasterStop != nil {
		s.hooks.OnMasterStop()
	}
	s.log.Info("supervisor stopped")
	return nil
}
