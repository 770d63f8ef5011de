package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/drydock-build/drydock/internal/client"
	"github.com/drydock-build/drydock/internal/config"
	"github.com/drydock-build/drydock/internal/daemon"
	"github.com/drydock-build/drydock/internal/events"
	"github.com/drydock-build/drydock/internal/locks"
	"github.com/drydock-build/drydock/internal/transport"
)

func newBuildCommand(cfg *config.Config, logger *log.Logger, bus events.Bus, runID string) *cobra.Command {
	var (
		root        string
		wait        bool
		incremental bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Request a build of the workspace and stream its progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveRoot(root)
			if err != nil {
				return err
			}

			lockManager, err := locks.NewManager(cfg.StateDir)
			if err != nil {
				return fmt.Errorf("initialize lock manager: %w", err)
			}
			orchestrator, err := client.NewOrchestrator(client.Deps{
				Config:   cfg,
				Dialer:   transport.UnixDialer{Path: transport.SocketPath(cfg.StateDir, resolved)},
				Prober:   daemon.NewPidFileProber(cfg.StateDir),
				Launcher: daemon.NewLauncher(cfg.ServerBinary, cfg.StateDir),
				Locks:    lockManager,
				Bus:      bus,
				Logger:   logger,
				Out:      cmd.OutOrStdout(),
				ErrOut:   cmd.ErrOrStderr(),
				RunID:    runID,
			})
			if err != nil {
				return err
			}

			return orchestrator.Run(cmd.Context(), client.Session{
				Root:        resolved,
				Wait:        wait,
				Incremental: incremental,
			})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "workspace root to build (defaults to the current directory)")
	cmd.Flags().BoolVar(&wait, "wait", false, "retry forever instead of giving up when the server stays unreachable")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "request an incremental build")
	return cmd
}

// resolveRoot normalizes the --root flag, defaulting to the working
// directory. Roots must be absolute so every invocation of the same
// workspace maps to the same socket and lock.
func resolveRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		workingDir, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return filepath.Clean(workingDir), nil
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	return absolute, nil
}
