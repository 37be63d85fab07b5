package main

import (
	"fmt"

	"github.com/netcored/netcore/internal/config"
	"github.com/netcored/netcore/supervisor"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the supervisor (or, re-exec'd by it, one worker)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, flagConfigFile)
			if err != nil {
				return err
			}
			if flagWorkerSlot >= 0 {
				return startWorker(cfg, flagWorkerServer, flagWorkerSlot)
			}
			return supervisor.New(cfg, supervisor.Hooks{}).RunAll()
		},
	}
}

// startWorker is the branch forkSlot's re-exec lands in: the same
// binary and verb, with --worker-slot/--worker-server now set, runs one
// Server instead of the master loop.
func startWorker(cfg config.Config, serverName string, slot int) error {
	for _, spec := range cfg.Servers {
		if spec.Name == serverName {
			return supervisor.RunWorker(cfg, spec, slot, buildServer)
		}
	}
	return fmt.Errorf("netcored: unknown server %q for worker slot %d", serverName, slot)
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop the running master and its workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, flagConfigFile)
			if err != nil {
				return err
			}
			return supervisor.SignalStop(cfg.PIDFile, flagGraceful)
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "restart every reloadable worker (alias for reload)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, flagConfigFile)
			if err != nil {
				return err
			}
			return supervisor.SignalReload(cfg.PIDFile, flagGraceful)
		},
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "reload every reloadable worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, flagConfigFile)
			if err != nil {
				return err
			}
			return supervisor.SignalReload(cfg.PIDFile, flagGraceful)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the master's worker status manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printDump(cmd, false)
		},
	}
}

func newConnectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "print each worker's live connection summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printDump(cmd, true)
		},
	}
}

func printDump(cmd *cobra.Command, connections bool) error {
	cfg, err := config.Load(cmd, flagConfigFile)
	if err != nil {
		return err
	}
	out, err := supervisor.RequestStatus(cfg.PIDFile, cfg.StatusFile, connections)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
