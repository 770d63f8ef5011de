package client

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/drydock-build/drydock/internal/exit"
	"github.com/drydock-build/drydock/internal/protocol"
	"github.com/drydock-build/drydock/internal/status"
	"github.com/drydock-build/drydock/internal/transport"
)

// ResponseWaiter blocks for the single handshake reply after a command was
// sent. Once the command is on the wire the server is committed, so the wait
// is unbounded; the ticker only paces heartbeat output and never cancels the
// pending read.
type ResponseWaiter struct {
	heartbeatEvery time.Duration
	out            io.Writer
	errOut         io.Writer
}

// NewResponseWaiter wires a waiter with the given heartbeat cadence.
func NewResponseWaiter(heartbeatEvery time.Duration, out, errOut io.Writer) (*ResponseWaiter, error) {
	if heartbeatEvery <= 0 {
		return nil, errors.New("heartbeat interval must be positive")
	}
	if out == nil || errOut == nil {
		return nil, errors.New("output writers are required")
	}
	return &ResponseWaiter{
		heartbeatEvery: heartbeatEvery,
		out:            out,
		errOut:         errOut,
	}, nil
}

type replyResult struct {
	reply protocol.ServerReply
	err   error
}

// AwaitReply returns the decoded reply or a fatal outcome (exit code 1) when
// the server closes the channel first. Heartbeat ticks are absorbed here and
// never surface to the caller.
func (w *ResponseWaiter) AwaitReply(conn *transport.Transport) (protocol.ServerReply, error) {
	if w == nil {
		return protocol.ServerReply{}, errors.New("response waiter is nil")
	}
	if conn == nil {
		return protocol.ServerReply{}, errors.New("transport is required")
	}

	hb := status.New(w.out)

	// One read stays pending for the whole wait; ticks merely interleave
	// status output around it.
	replyCh := make(chan replyResult, 1)
	go func() {
		reply, err := conn.ReadReply()
		replyCh <- replyResult{reply: reply, err: err}
	}()

	ticker := time.NewTicker(w.heartbeatEvery)
	defer ticker.Stop()

	waited := time.Duration(0)
	for {
		select {
		case result := <-replyCh:
			hb.Clear()
			if result.err == nil {
				return result.reply, nil
			}
			if errors.Is(result.err, protocol.ErrClosed) {
				fmt.Fprintln(w.errOut, "lost the connection to drydockd before it replied; re-run the command to reconnect")
				return protocol.ServerReply{}, exit.Errorf(exit.CodeDisconnect, "server closed the connection before replying")
			}
			return protocol.ServerReply{}, exit.Errorf(exit.CodeDisconnect, "read server reply: %v", result.err)
		case <-ticker.C:
			waited += w.heartbeatEvery
			hb.Tick(fmt.Sprintf("drydockd is busy; still waiting (%s)", waited.Round(time.Second)))
		}
	}
}
