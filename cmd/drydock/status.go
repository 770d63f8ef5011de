package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/drydock-build/drydock/internal/config"
	"github.com/drydock-build/drydock/internal/daemon"
	"github.com/drydock-build/drydock/internal/locks"
	"github.com/drydock-build/drydock/internal/transport"
)

func newStatusCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether drydockd is serving the workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveRoot(root)
			if err != nil {
				return err
			}
			if logger != nil {
				logger.With("command", "status", "root", resolved).Info("status requested")
			}
			return printStatus(cmd.OutOrStdout(), cfg, resolved)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "workspace root to inspect (defaults to the current directory)")
	return cmd
}

func printStatus(out io.Writer, cfg *config.Config, root string) error {
	prober := daemon.NewPidFileProber(cfg.StateDir)

	fmt.Fprintf(out, "root:   %s\n", root)
	fmt.Fprintf(out, "socket: %s\n", transport.SocketPath(cfg.StateDir, root))
	if prober.Running(root) {
		fmt.Fprintln(out, "server: running")
	} else {
		fmt.Fprintln(out, "server: not running")
	}

	lockManager, err := locks.NewManager(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("initialize lock manager: %w", err)
	}
	holder, err := lockManager.Holder(root)
	if err != nil {
		return fmt.Errorf("inspect invocation lock: %w", err)
	}
	if holder != nil {
		fmt.Fprintf(out, "lock:   held by pid %d since %s\n", holder.PID, holder.AcquiredAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "lock:   free")
	}
	return nil
}
