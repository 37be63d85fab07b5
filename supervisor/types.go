// Package supervisor implements the master process: it forks one worker
// process per configured server slot, installs the signal protocol, and
// drives the reload/stop/status protocols across the worker pool. The
// re-exec/signal-hook pattern follows the usual Go graceful-restart
// shape, adapted from a single-http.Server fd-preserving restart into a
// fixed-slot multi-server worker pool, since Go workers here each bind
// independently via SO_REUSEPORT rather than inheriting a shared listener
// fd.
package supervisor

import (
	"os/exec"
	"sync"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/internal/config"
	"github.com/netcored/netcore/internal/netlog"
	"github.com/sirupsen/logrus"
)

// Hooks bundles the master-process lifecycle callbacks:
// onMasterReload (may mutate configuration) and onMasterStop.
type Hooks struct {
	OnMasterReload func(cfg *config.Config)
	OnMasterStop   func()
}

// workerSlot is one entry of a server's fixed-size slot array.
// pid == 0 marks a vacant slot.
type workerSlot struct {
	index int
	spec  config.ServerSpec
	pid   int
	cmd   *exec.Cmd
}

type exitEvent struct {
	server string
	index  int
	pid    int
	err    error
}

// Supervisor is the master process. Its slot arrays are index-stable
// across restarts: when a worker exits, forkSlot refills the same index
// rather than appending a new one.
type Supervisor struct {
	mu     sync.Mutex
	cfg    config.Config
	hooks  Hooks
	status api.SupervisorStatus

	slots map[string][]*workerSlot

	pidsToRestart  map[int]bool
	reloadQueue    map[string][]int
	reloadGraceful bool

	// exitInfo counts worker exits per server keyed by exit reason
	// ("ok", "exit status 1", "signal: killed", ...), reported in status
	// dumps.
	exitInfo map[string]map[string]int

	exited chan exitEvent
	log    *logrus.Entry
}

// New builds a Supervisor ready for RunAll. cfg.Servers' WorkerCount
// fields size each server's slot array.
func New(cfg config.Config, hooks Hooks) *Supervisor {
	return &Supervisor{
		cfg:           cfg,
		hooks:         hooks,
		status:        api.SupervisorStarting,
		slots:         make(map[string][]*workerSlot),
		pidsToRestart: make(map[int]bool),
		reloadQueue:   make(map[string][]int),
		exitInfo:      make(map[string]map[string]int),
		exited:        make(chan exitEvent, 64),
		log:           netlog.For("supervisor"),
	}
}

// Status reports the master's current lifecycle status.
func (s *Supervisor) Status() api.SupervisorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) setStatus(st api.SupervisorStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.log.WithField("status", st).Info("supervisor status changed")
}
