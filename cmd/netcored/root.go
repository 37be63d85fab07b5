package main

import (
	"github.com/spf13/cobra"
)

// Flags shared by every verb: -d (daemonize, or combined with
// status/connections a request against a live master),
// -g (graceful variant of stop/restart/reload), -q (quiet start banner).
// --worker-slot/--worker-server are hidden: forkSlot appends them to a
// re-exec'd child's own argv so the same binary, invoked with the same
// verb, takes the worker branch instead of the master one.
var (
	flagConfigFile   string
	flagDaemonize    bool
	flagGraceful     bool
	flagQuiet        bool
	flagWorkerSlot   int
	flagWorkerServer string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "netcored",
		Short:         "Supervise a pool of event-driven network server workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to a config file")
	root.PersistentFlags().BoolVarP(&flagDaemonize, "daemonize", "d", false, "daemonize on start; request a live status on status/connections")
	root.PersistentFlags().BoolVarP(&flagGraceful, "graceful", "g", false, "graceful variant of stop/restart/reload")
	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress the start banner")

	root.PersistentFlags().IntVar(&flagWorkerSlot, "worker-slot", -1, "")
	root.PersistentFlags().StringVar(&flagWorkerServer, "worker-server", "", "")
	_ = root.PersistentFlags().MarkHidden("worker-slot")
	_ = root.PersistentFlags().MarkHidden("worker-server")

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newReloadCmd(),
		newStatusCmd(),
		newConnectionsCmd(),
	)
	return root
}
