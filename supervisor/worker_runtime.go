package supervisor

import (
	"fmt"
	"os"
	"syscall"

	"github.com/netcored/netcore/eventloop"
	"github.com/netcored/netcore/internal/config"
	"github.com/netcored/netcore/internal/netlog"
	"github.com/netcored/netcore/netconn"
	"github.com/netcored/netcore/netserver"
	"github.com/sirupsen/logrus"
)

// WorkerBuilder constructs the Server a worker process serves. Each
// worker serves exactly one Server definition; application code supplies
// the codec/hooks wiring a bare ServerSpec can't carry.
type WorkerBuilder func(loop *eventloop.Loop, spec config.ServerSpec) (*netserver.Server, error)

// RunWorker is a forked worker's entire process body. Workers receive the
// same signals as the master; their response is delegated to the event
// loop's signal machinery so handlers run at safe points. It never
// returns except on loop exit or a fatal setup error.
func RunWorker(cfg config.Config, spec config.ServerSpec, slot int, build WorkerBuilder) error {
	loop, err := eventloop.New()
	if err != nil {
		return fmt.Errorf("supervisor: worker event loop: %w", err)
	}

	srv, err := build(loop, spec)
	if err != nil {
		return fmt.Errorf("supervisor: building server %q: %w", spec.Name, err)
	}
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("supervisor: worker listen: %w", err)
	}

	log := netlog.ForServer("worker", spec.Name).WithField("slot", slot)
	log.Info("worker listening")

	w := &workerRuntime{cfg: cfg, spec: spec, slot: slot, loop: loop, srv: srv, log: log}
	w.installSignals()

	return loop.Run()
}

type workerRuntime struct {
	cfg  config.Config
	spec config.ServerSpec
	slot int
	loop *eventloop.Loop
	srv  *netserver.Server
	log  *logrus.Entry
}

func (w *workerRuntime) installSignals() {
	w.loop.OnSignal(int(syscall.SIGTERM), func() { w.stop(false) })
	w.loop.OnSignal(int(syscall.SIGINT), func() { w.stop(false) })
	w.loop.OnSignal(int(syscall.SIGHUP), func() { w.stop(false) })
	w.loop.OnSignal(int(syscall.SIGTSTP), func() { w.stop(false) })
	w.loop.OnSignal(int(syscall.SIGQUIT), func() { w.stop(true) })
	w.loop.OnSignal(int(syscall.SIGUSR1), func() { w.reload(false) })
	w.loop.OnSignal(int(syscall.SIGUSR2), func() { w.reload(true) })
	w.loop.OnSignal(int(syscall.SIGIOT), func() { w.dumpStatusLine() })
	w.loop.OnSignal(int(syscall.SIGIO), func() { w.dumpConnectionsLine() })
}

// stop pauses the server and exits the loop. A graceful stop keeps the
// loop ticking until every tracked connection has drained and closed, so
// pending send buffers and in-progress file sends finish before the
// process exits; cfg.StopTimeout bounds the wait, with the master's
// SIGKILL fallback behind it.
func (w *workerRuntime) stop(graceful bool) {
	w.log.WithField("graceful", graceful).Info("worker stopping")
	w.srv.Stop(graceful)
	if !graceful {
		w.loop.Stop()
		return
	}
	var poll eventloop.ID
	poll = w.loop.Repeat(0.05, func() {
		if w.srv.ConnectionCount() == 0 {
			w.loop.Cancel(poll)
			w.loop.Stop()
		}
	})
	if w.cfg.StopTimeout > 0 {
		w.loop.Delay(w.cfg.StopTimeout.Seconds(), func() { w.loop.Stop() })
	}
}

// reload runs onServerReload whether or not this worker will go on to be
// restarted by the master; the master decides restart eligibility from
// spec.Reloadable before it ever signals this process again.
func (w *workerRuntime) reload(graceful bool) {
	w.srv.Reload()
	if !w.spec.Reloadable {
		w.log.Info("server reload hook fired (non-reloadable, staying up)")
		return
	}
	w.log.WithField("graceful", graceful).Info("server reloading, stopping for replacement")
	w.stop(graceful)
}

func (w *workerRuntime) dumpStatusLine() {
	if w.cfg.StatusFile == "" {
		return
	}
	f, err := os.OpenFile(w.cfg.StatusFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	st := w.srv.Stats()
	fmt.Fprintf(f, "worker\t%d\t%s\t%d\tconns=%d requests=%d send_fail=%d exceptions=%d\n",
		os.Getpid(), w.spec.Name, w.slot, st.ConnectionCount(), st.TotalRequest(), st.SendFail(), st.ThrowException())
	w.dumpMetrics(st)
}

// dumpMetrics rewrites this worker's Prometheus exposition sidecar next
// to the status file; scrapers read it without touching the tab-separated
// rows the status verb parses.
func (w *workerRuntime) dumpMetrics(st *netconn.Stats) {
	path := fmt.Sprintf("%s.%d.prom", w.cfg.StatusFile, w.slot)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	label := fmt.Sprintf("%s/%d", w.spec.Name, w.slot)
	if err := st.WriteProm(f, label); err != nil {
		w.log.WithError(err).Warn("metrics dump failed")
	}
}

func (w *workerRuntime) dumpConnectionsLine() {
	if w.cfg.StatusFile == "" {
		return
	}
	f, err := os.OpenFile(w.cfg.StatusFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "worker\t%d\t%s\t%d\tconnections=%d\n", os.Getpid(), w.spec.Name, w.slot, w.srv.ConnectionCount())
}
