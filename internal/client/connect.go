package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/drydock-build/drydock/internal/daemon"
	"github.com/drydock-build/drydock/internal/events"
	"github.com/drydock-build/drydock/internal/exit"
	"github.com/drydock-build/drydock/internal/status"
	"github.com/drydock-build/drydock/internal/transport"
)

var (
	errRootRequired = errors.New("workspace root must not be empty")

	// ErrServerNotUp classifies a dial failure with no live server process.
	ErrServerNotUp = errors.New("server is not running")
	// ErrServerInitializing classifies a dial failure while a live server
	// process is still starting up.
	ErrServerInitializing = errors.New("server is still initializing")
)

// ConnectionManager repeatedly opens a fresh transport until the server
// accepts, spending the shared retry budget on each failed attempt.
type ConnectionManager struct {
	dialer   transport.Dialer
	prober   daemon.Prober
	bus      events.Bus
	interval time.Duration
	out      io.Writer
	errOut   io.Writer
}

// NewConnectionManager wires a connection manager. The bus is optional.
func NewConnectionManager(
	dialer transport.Dialer,
	prober daemon.Prober,
	bus events.Bus,
	interval time.Duration,
	out io.Writer,
	errOut io.Writer,
) (*ConnectionManager, error) {
	if dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if prober == nil {
		return nil, errors.New("prober is required")
	}
	if interval <= 0 {
		return nil, errors.New("backoff interval must be positive")
	}
	if out == nil || errOut == nil {
		return nil, errors.New("output writers are required")
	}
	return &ConnectionManager{
		dialer:   dialer,
		prober:   prober,
		bus:      bus,
		interval: interval,
		out:      out,
		errOut:   errOut,
	}, nil
}

// Connect opens a transport for the session. A failed attempt discards its
// transport and dials a fresh one after one backoff interval, as long as the
// budget allows (always, when the session waits indefinitely). Exhaustion is
// a fatal outcome with exit code 2.
func (m *ConnectionManager) Connect(
	ctx context.Context,
	session Session,
	budget *Budget,
) (*transport.Transport, error) {
	if m == nil {
		return nil, errors.New("connection manager is nil")
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}

	hb := status.New(m.out)
	defer hb.Clear()

	attempts := 0
	operation := func() (*transport.Transport, error) {
		attempts++
		conn, dialErr := m.dialer.Dial(ctx)
		if dialErr == nil {
			return conn, nil
		}

		class := m.classify(session.Root)
		m.publishAttempt(session.Root, attempts, class)
		if budget.Exhausted() {
			return nil, backoff.Permanent(class)
		}
		budget.Consume()
		m.report(hb, session, budget, class)
		return nil, class
	}

	// The budget is the only retry limit; disable the elapsed-time cap so a
	// waiting session can outlive it.
	conn, err := backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(m.interval)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		hb.Clear()
		return nil, m.exhausted(session.Root, attempts, err)
	}
	return conn, nil
}

// classify decides why the dial failed: a present-but-starting server keeps
// its pid file alive while its socket still refuses.
func (m *ConnectionManager) classify(root string) error {
	if m.prober.Running(root) {
		return ErrServerInitializing
	}
	return ErrServerNotUp
}

func (m *ConnectionManager) report(hb *status.Heartbeat, session Session, budget *Budget, class error) {
	switch {
	case errors.Is(class, ErrServerInitializing) && session.Wait:
		hb.Tick("drydockd is initializing; waiting forever as requested")
	case errors.Is(class, ErrServerInitializing):
		estimate := time.Duration(budget.Remaining()) * m.interval
		hb.Tick(fmt.Sprintf("drydockd is initializing; about %d more seconds", int(estimate.Seconds())))
	default:
		hb.Tick(fmt.Sprintf("drydockd is not up for %s; retrying", session.Root))
	}
}

func (m *ConnectionManager) exhausted(root string, attempts int, cause error) error {
	switch {
	case errors.Is(cause, ErrServerInitializing):
		fmt.Fprintf(
			m.errOut,
			"drydockd is still initializing for %s after %d attempts; giving up. Re-run with --wait to keep waiting.\n",
			root,
			attempts,
		)
		return exit.Errorf(exit.CodeBuildFailed, "retry budget exhausted while the server was initializing")
	case errors.Is(cause, ErrServerNotUp):
		fmt.Fprintf(m.errOut, "could not reach drydockd for %s after %d attempts; giving up.\n", root, attempts)
		return exit.Errorf(exit.CodeBuildFailed, "retry budget exhausted while the server was unreachable")
	default:
		return fmt.Errorf("connect to drydockd for %s: %w", root, cause)
	}
}

func (m *ConnectionManager) publishAttempt(root string, attempt int, class error) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{
		Type:     events.EventTypeConnectAttempt,
		Root:     root,
		Payload:  map[string]any{"attempt": attempt, "classification": class.Error()},
		Severity: events.SeverityWarn,
	})
}
