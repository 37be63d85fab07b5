// Package netlog is the structured logger shared by the master and worker
// processes. It wraps logrus with the fields every lifecycle/error log
// line carries: component, pid, and, where applicable, server and
// conn_id.
package netlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetOutput redirects every subsequent log line, e.g. to the configured
// log file once the supervisor has rebound stdout/stderr.
func SetOutput(w io.Writer) { base.SetOutput(w) }

// SetJSONFormat switches to JSON lines, for log aggregation.
func SetJSONFormat() { base.SetFormatter(&logrus.JSONFormatter{}) }

// SetLevel adjusts the minimum level emitted; defaults to logrus.InfoLevel.
func SetLevel(lvl logrus.Level) { base.SetLevel(lvl) }

// For returns an entry pre-populated with component and pid, the two
// fields every log line carries regardless of origin.
func For(component string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"component": component,
		"pid":       os.Getpid(),
	})
}

// ForServer is For, plus the server name a worker or the master is acting
// on behalf of.
func ForServer(component, server string) *logrus.Entry {
	return For(component).WithField("server", server)
}

// ForConn is ForServer, plus the numeric connection id a log line
// concerns.
func ForConn(component, server string, connID uint64) *logrus.Entry {
	return ForServer(component, server).WithField("conn_id", connID)
}
