package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/drydock-build/drydock/internal/config"
	"github.com/drydock-build/drydock/internal/daemon"
	"github.com/drydock-build/drydock/internal/events"
	"github.com/drydock-build/drydock/internal/exit"
	"github.com/drydock-build/drydock/internal/locks"
	"github.com/drydock-build/drydock/internal/protocol"
	"github.com/drydock-build/drydock/internal/telemetry"
	"github.com/drydock-build/drydock/internal/transport"
)

// Launcher requests a server start without waiting for readiness.
type Launcher interface {
	Launch(root string) error
}

// Deps wires the orchestrator's collaborators. Locks, Bus, and Logger are
// optional; everything else is required.
type Deps struct {
	Config   *config.Config
	Dialer   transport.Dialer
	Prober   daemon.Prober
	Launcher Launcher
	Locks    *locks.Manager
	Bus      events.Bus
	Logger   *log.Logger
	Out      io.Writer
	ErrOut   io.Writer
	RunID    string
	Sleep    func(time.Duration)
}

// Orchestrator sequences one invocation end to end and resolves its exit
// code. It never terminates the process itself.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator validates and stores the dependency set.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if deps.Prober == nil {
		return nil, errors.New("prober is required")
	}
	if deps.Launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if deps.Out == nil || deps.ErrOut == nil {
		return nil, errors.New("output writers are required")
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	return &Orchestrator{deps: deps}, nil
}

// Run drives the full flow: liveness check, spawn when absent, connect,
// handshake, and stream consumption. A nil return means a clean build; any
// other outcome surfaces as an *exit.Error carrying the determined code.
func (o *Orchestrator) Run(ctx context.Context, session Session) error {
	if o == nil {
		return errors.New("orchestrator is nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	if o.deps.Locks != nil {
		release, err := o.deps.Locks.Acquire(session.Root)
		if err != nil {
			if errors.Is(err, locks.ErrHeld) {
				fmt.Fprintf(o.deps.ErrOut, "%v; wait for it to finish and re-run\n", err)
				return exit.Errorf(exit.CodeBuildFailed, "invocation lock held for %s", session.Root)
			}
			return fmt.Errorf("acquire invocation lock: %w", err)
		}
		defer func() {
			if releaseErr := release(); releaseErr != nil {
				o.logf("release invocation lock: %v", releaseErr)
			}
		}()
	}

	budget := NewBudget(o.deps.Config.RetryBudget, session.Wait)
	manager, err := NewConnectionManager(
		o.deps.Dialer,
		o.deps.Prober,
		o.deps.Bus,
		o.deps.Config.BackoffInterval,
		o.deps.Out,
		o.deps.ErrOut,
	)
	if err != nil {
		return err
	}
	waiter, err := NewResponseWaiter(o.deps.Config.HeartbeatInterval, o.deps.Out, o.deps.ErrOut)
	if err != nil {
		return err
	}

	// Stale-version replies restart the whole sequence from the liveness
	// check, spending the same budget the connection phase draws from.
	for {
		if !o.deps.Prober.Running(session.Root) {
			o.publish(events.EventTypeServerSpawn, session.Root, nil, events.SeverityInfo)
			o.logf("drydockd absent for %s; requesting launch", session.Root)
			if launchErr := o.deps.Launcher.Launch(session.Root); launchErr != nil {
				fmt.Fprintf(o.deps.ErrOut, "could not launch drydockd: %v\n", launchErr)
				return exit.Errorf(exit.CodeBuildFailed, "launch server: %v", launchErr)
			}
		}

		conn, err := manager.Connect(ctx, session, budget)
		if err != nil {
			return err
		}

		command := protocol.NewBuildCommand(session.Root, session.Wait, session.Incremental)
		if err := conn.SendBuild(command); err != nil {
			_ = conn.Close()
			fmt.Fprintf(o.deps.ErrOut, "could not send the build command (%v); re-run to reconnect\n", err)
			return exit.Errorf(exit.CodeDisconnect, "send build command: %v", err)
		}

		reply, err := waiter.AwaitReply(conn)
		if err != nil {
			_ = conn.Close()
			return err
		}
		o.publish(events.EventTypeReplyReceived, session.Root, reply.Kind, events.SeverityInfo)

		switch {
		case reply.Stale():
			_ = conn.Close()
			fmt.Fprintln(o.deps.Out, "drydockd is running a stale build; restarting the handshake")
			if budget.Exhausted() {
				fmt.Fprintln(o.deps.ErrOut, "the server version never caught up; giving up")
				return exit.Errorf(exit.CodeBuildFailed, "retry budget exhausted on stale server versions")
			}
			budget.Consume()
			o.deps.Sleep(o.deps.Config.StaleRetryDelay)
			continue

		case reply.Acknowledged():
			outcome, err := o.consume(ctx, session, conn)
			_ = conn.Close()
			if err != nil {
				return err
			}
			o.publish(events.EventTypeRunFinished, session.Root, outcome, events.SeverityInfo)
			if outcome.ExitCode != exit.CodeOK {
				return exit.Errorf(outcome.ExitCode, "")
			}
			return nil

		default:
			_ = conn.Close()
			fmt.Fprintf(o.deps.ErrOut, "unexpected response %q from drydockd\n", reply.Kind)
			return exit.Errorf(exit.CodeDisconnect, "unexpected server reply %q", reply.Kind)
		}
	}
}

func (o *Orchestrator) consume(ctx context.Context, session Session, conn *transport.Transport) (Outcome, error) {
	runCtx, run := telemetry.StartBuildRun(ctx, telemetry.BuildRunRequest{
		Root:        session.Root,
		RunID:       o.deps.RunID,
		Incremental: session.Incremental,
		Wait:        session.Wait,
	})
	_ = runCtx

	reader, err := NewStreamReader(o.deps.Out, o.deps.ErrOut, func(record protocol.StreamRecord) {
		run.RecordStreamRecord(record.Kind == protocol.KindFailure)
		o.publish(events.EventTypeStreamRecord, session.Root, record.Kind, events.SeverityInfo)
	})
	if err != nil {
		run.End(exit.CodeDisconnect)
		return Outcome{}, err
	}

	outcome, err := reader.Consume(conn)
	if err != nil {
		run.End(exit.CodeFromError(err))
		return Outcome{}, err
	}
	run.End(outcome.ExitCode)
	return outcome, nil
}

func (o *Orchestrator) publish(eventType, root string, payload any, severity string) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(events.Event{
		Type:     eventType,
		Root:     root,
		Payload:  payload,
		Severity: severity,
	})
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.deps.Logger == nil {
		return
	}
	o.deps.Logger.Infof(format, args...)
}

// Ensure the daemon package satisfies the orchestrator-facing contracts.
var (
	_ Launcher      = (*daemon.Launcher)(nil)
	_ daemon.Prober = (*daemon.PidFileProber)(nil)
)
