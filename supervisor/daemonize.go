package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/netcored/netcore/internal/config"
	"github.com/netcored/netcore/internal/netlog"
	"golang.org/x/sys/unix"
)

// envDaemonStage tags which hop of the double-fork this process is, since
// Go has no direct fork() once the runtime is initialized; re-exec with
// an env marker is the idiomatic substitute.
const envDaemonStage = "NETCORED_DAEMON_STAGE"

// daemonize implements the "two sequential forks with setsid
// between them." It returns (true, nil) only in the final, fully
// daemonized process; every other hop starts its successor and returns
// (false, nil) so the caller exits immediately.
//
// SIGINT is ignored for the window between the first
// re-exec and the final process installing its own handlers, since an
// unhandled SIGINT landing on an intermediate hop (which owns nothing to
// terminate) would otherwise kill the daemonization sequence outright.
func daemonize(cfg config.Config) (isFinal bool, err error) {
	switch os.Getenv(envDaemonStage) {
	case "":
		signal.Ignore(syscall.SIGINT)
		if err := reexec("1", nil); err != nil {
			return false, err
		}
		return false, nil

	case "1":
		// First fork: become a session leader so the second fork can
		// never reacquire a controlling terminal.
		if err := reexec("2", &syscall.SysProcAttr{Setsid: true}); err != nil {
			return false, err
		}
		return false, nil

	case "2":
		if err := rebindStdio(cfg.LogFile); err != nil {
			netlog.For("supervisor").WithError(err).Warn("daemonize: stdio rebind failed, falling back to stderr")
		}
		signal.Reset(syscall.SIGINT)
		return true, nil

	default:
		return false, fmt.Errorf("supervisor: unknown daemonize stage %q", os.Getenv(envDaemonStage))
	}
}

func reexec(stage string, attr *syscall.SysProcAttr) error {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), envDaemonStage+"="+stage)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = attr
	return cmd.Start()
}

// rebindStdio implements "stdout/stderr rebound to the configured log
// file; a fallback fwrite sink handles the case where process-level
// redirection fails": the fallback here is simply leaving the prior
// stdio fds and the default logrus output in place and reporting the
// error to the caller.
func rebindStdio(logFile string) error {
	if logFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if err := unix.Dup2(int(f.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("dup2 stdout: %w", err)
	}
	if err := unix.Dup2(int(f.Fd()), int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("dup2 stderr: %w", err)
	}
	netlog.SetOutput(f)
	return nil
}
