package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/drydock-build/drydock/internal/config"
	"github.com/drydock-build/drydock/internal/events"
	"github.com/drydock-build/drydock/internal/exit"
	"github.com/drydock-build/drydock/internal/logging"
	"github.com/drydock-build/drydock/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

func main() {
	err := run(context.Background(), os.Args[1:])
	if err == nil {
		return
	}
	// Components print their own diagnostics at the point of detection; a
	// typed exit only carries the process code.
	var exitErr *exit.Error
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := uuid.NewString()
	runLogger, err := logging.New(cfg.StateDir, logging.WithRunID(runID))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := runLogger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	shutdownTelemetry, err := telemetry.Init(ctx)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer shutdownTelemetry()

	bus := events.New(events.WithLogger(runLogger.Logger))
	bus.SubscribeAll(logEvent(runLogger.Logger))

	cmd := newRootCommand(cfg, runLogger.Logger, bus, runID)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(cfg *config.Config, logger *log.Logger, bus events.Bus, runID string) *cobra.Command {
	root := &cobra.Command{
		Use:           "drydock",
		Short:         "Client for the drydockd background build server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newBuildCommand(cfg, logger, bus, runID),
		newStatusCommand(cfg, logger),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		if logger != nil {
			logger.With("command", cmd.Name()).Debug("command invocation")
		}
		return nil
	}

	return root
}

// logEvent forwards bus events to the run log at a level matching their
// severity.
func logEvent(logger *log.Logger) events.Handler {
	return func(event events.Event) {
		if logger == nil {
			return
		}
		entry := logger.With("event", event.Type, "root", event.Root)
		switch event.Severity {
		case events.SeverityError:
			entry.Error("client event", "payload", event.Payload)
		case events.SeverityWarn:
			entry.Warn("client event", "payload", event.Payload)
		default:
			entry.Info("client event", "payload", event.Payload)
		}
	}
}
