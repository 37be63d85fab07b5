package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// installSignals installs the master's signal table. Dispatch runs on a
// dedicated goroutine since Go delivers signals off the main goroutine;
// the master has no event loop of its own to defer onto (only workers
// do).
func (s *Supervisor) installSignals() {
	ch := make(chan os.Signal, 32)
	signal.Notify(ch,
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGTSTP,
		syscall.SIGQUIT,
		syscall.SIGUSR1, syscall.SIGUSR2,
		syscall.SIGIOT, syscall.SIGIO,
	)
	signal.Ignore(syscall.SIGPIPE)
	go s.handleSignals(ch)
}

func (s *Supervisor) handleSignals(ch <-chan os.Signal) {
	for sig := range ch {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGTSTP:
			s.log.WithField("signal", sig.String()).Info("forceful stop requested")
			s.forcefulStop()
		case syscall.SIGQUIT:
			s.log.WithField("signal", sig.String()).Info("graceful stop requested")
			s.gracefulStop()
		case syscall.SIGUSR1:
			s.log.Info("forceful reload requested")
			s.forcefulReload()
		case syscall.SIGUSR2:
			s.log.Info("graceful reload requested")
			s.gracefulReload()
		case syscall.SIGIOT:
			s.dumpStatus(false)
		case syscall.SIGIO:
			s.dumpStatus(true)
		}
	}
}
