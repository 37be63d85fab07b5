package supervisor

import (
	"syscall"
	"time"

	"github.com/netcored/netcore/api"
)

// reloadAll implements the reload protocol. Non-reloadable servers'
// workers never get queued for restart; they receive the signal only for
// their own onServerReload hook and do not exit (see worker_runtime.go).
func (s *Supervisor) reloadAll(graceful bool) {
	s.setStatus(api.SupervisorReloading)
	if s.hooks.OnMasterReload != nil {
		s.hooks.OnMasterReload(&s.cfg)
	}

	s.mu.Lock()
	s.reloadGraceful = graceful
	s.pidsToRestart = make(map[int]bool)
	s.reloadQueue = make(map[string][]int)
	var passThrough []int
	for _, spec := range s.cfg.Servers {
		if !spec.Reloadable {
			// still delivered, so the worker's own onServerReload hook
			// fires; the worker sees Reloadable=false and stays up.
			for _, sl := range s.slots[spec.Name] {
				if sl.pid != 0 {
					passThrough = append(passThrough, sl.pid)
				}
			}
			continue
		}
		var queue []int
		for _, sl := range s.slots[spec.Name] {
			if sl.pid != 0 {
				queue = append(queue, sl.pid)
				s.pidsToRestart[sl.pid] = true
			}
		}
		if len(queue) > 0 {
			s.reloadQueue[spec.Name] = queue
		}
	}
	heads := make([]int, 0, len(s.reloadQueue))
	for _, q := range s.reloadQueue {
		heads = append(heads, q[0])
	}
	empty := len(s.pidsToRestart) == 0
	s.mu.Unlock()

	for _, pid := range passThrough {
		_ = syscall.Kill(pid, reloadSignal(graceful))
	}

	if empty {
		s.setStatus(api.SupervisorRunning)
		return
	}
	// One restart per server runs at a time (serial rollout); across
	// distinct servers the rollouts proceed concurrently.
	for _, pid := range heads {
		s.signalReload(pid, graceful)
	}
}

func (s *Supervisor) forcefulReload() { s.reloadAll(false) }
func (s *Supervisor) gracefulReload() { s.reloadAll(true) }

func (s *Supervisor) signalReload(pid int, graceful bool) {
	_ = syscall.Kill(pid, reloadSignal(graceful))
	if graceful {
		return
	}
	timeout := s.cfg.StopTimeout
	time.AfterFunc(timeout, func() {
		s.mu.Lock()
		stillPending := s.pidsToRestart[pid]
		s.mu.Unlock()
		if stillPending {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	})
}

// advanceReload runs when a pid that was part of a reload rollout exits:
// pop it off its server's queue and, if another pid is waiting behind it,
// signal that one next, bounding concurrent restarts to 1 per server.
func (s *Supervisor) advanceReload(server string, exitedPID int) {
	s.mu.Lock()
	queue := s.reloadQueue[server]
	if len(queue) > 0 && queue[0] == exitedPID {
		queue = queue[1:]
	}
	if len(queue) > 0 {
		s.reloadQueue[server] = queue
	} else {
		delete(s.reloadQueue, server)
	}
	graceful := s.reloadGraceful
	var next int
	hasNext := len(queue) > 0
	if hasNext {
		next = queue[0]
	}
	done := len(s.pidsToRestart) == 0
	s.mu.Unlock()

	if hasNext {
		s.signalReload(next, graceful)
	}
	if done {
		s.setStatus(api.SupervisorRunning)
	}
}

// stopAll implements the stop protocol: mirrors reload but never reforks
// (handleExit checks s.status == SupervisorShutdown) and the monitor loop
// finalizes once every slot is vacant.
func (s *Supervisor) stopAll(graceful bool) {
	s.setStatus(api.SupervisorShutdown)
	pids := s.allWorkerPIDs()
	sig := syscall.SIGTERM
	if graceful {
		sig = syscall.SIGQUIT
	}
	for _, pid := range pids {
		_ = syscall.Kill(pid, sig)
	}
	if graceful {
		return
	}
	timeout := s.cfg.StopTimeout
	time.AfterFunc(timeout, func() {
		for _, pid := range s.allWorkerPIDs() {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	})
}

func (s *Supervisor) forcefulStop() { s.stopAll(false) }
func (s *Supervisor) gracefulStop() { s.stopAll(true) }
