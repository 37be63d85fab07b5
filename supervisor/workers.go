package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/netcored/netcore/api"
)

// forkSlot re-execs this binary with the hidden --worker-slot/
// --worker-server flag pair; cmd/netcored routes a process started with
// those flags into RunWorker instead of RunAll. No listener fd is passed
// down: each worker binds its own socket with SO_REUSEPORT,
// so a freshly forked replacement can start accepting before its
// predecessor has fully drained.
func (s *Supervisor) forkSlot(server string, index int) error {
	args := append(append([]string{}, os.Args[1:]...), "--worker-slot", strconv.Itoa(index), "--worker-server", server)
	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: fork %s[%d]: %w", server, index, err)
	}

	pid := cmd.Process.Pid
	s.mu.Lock()
	slot := s.slots[server][index]
	slot.pid = pid
	slot.cmd = cmd
	s.mu.Unlock()

	s.log.WithField("server", server).WithField("slot", index).WithField("pid", pid).Info("worker forked")

	go func() {
		err := cmd.Wait()
		s.exited <- exitEvent{server: server, index: index, pid: pid, err: err}
	}()
	return nil
}

// handleExit runs in the monitor loop for every worker exit: it vacates
// the slot, reforks unless the supervisor is shutting down, and advances
// the reload rollout if this pid was part of one.
func (s *Supervisor) handleExit(ev exitEvent) {
	s.mu.Lock()
	slot := s.slots[ev.server][ev.index]
	slot.pid = 0
	slot.cmd = nil
	wasReloading := s.pidsToRestart[ev.pid]
	delete(s.pidsToRestart, ev.pid)
	status := s.status
	reason := "ok"
	if ev.err != nil {
		reason = ev.err.Error()
	}
	if s.exitInfo[ev.server] == nil {
		s.exitInfo[ev.server] = make(map[string]int)
	}
	s.exitInfo[ev.server][reason]++
	s.mu.Unlock()

	log := s.log.WithField("server", ev.server).WithField("slot", ev.index).WithField("pid", ev.pid)
	if ev.err != nil {
		log.WithError(ev.err).Warn("worker exited")
	} else {
		log.Info("worker exited")
	}

	if status == api.SupervisorShutdown {
		return
	}

	if err := s.forkSlot(ev.server, ev.index); err != nil {
		log.WithError(err).Error("refork failed")
	}

	if wasReloading {
		s.advanceReload(ev.server, ev.pid)
	}
}

func (s *Supervisor) allWorkerPIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pids []int
	for _, slots := range s.slots {
		for _, sl := range slots {
			if sl.pid != 0 {
				pids = append(pids, sl.pid)
			}
		}
	}
	return pids
}

// allSlotsVacant reports whether every worker across every server has
// exited, the condition the monitor loop waits for before finalizing a
// shutdown.
func (s *Supervisor) allSlotsVacant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slots := range s.slots {
		for _, sl := range slots {
			if sl.pid != 0 {
				return false
			}
		}
	}
	return true
}
