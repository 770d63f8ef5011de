package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/drydock-build/drydock/internal/exit"
	"github.com/drydock-build/drydock/internal/protocol"
	"github.com/drydock-build/drydock/internal/transport"
)

// Outcome is the aggregate result of one consumed build stream.
type Outcome struct {
	ExitCode          int
	TerminatedCleanly bool
}

// StreamReader consumes the post-handshake progress stream until the
// completion marker or end-of-stream.
type StreamReader struct {
	out      io.Writer
	errOut   io.Writer
	onRecord func(record protocol.StreamRecord)
}

// NewStreamReader wires a stream reader. onRecord is an optional hook
// observing every record in arrival order.
func NewStreamReader(out, errOut io.Writer, onRecord func(protocol.StreamRecord)) (*StreamReader, error) {
	if out == nil || errOut == nil {
		return nil, errors.New("output writers are required")
	}
	return &StreamReader{out: out, errOut: errOut, onRecord: onRecord}, nil
}

// Consume reads records until end-of-stream. Failure records latch exit
// code 2 without stopping the loop; a stream that ends without the
// completion marker is a fatal outcome with exit code 1 regardless of any
// accumulated failures.
func (r *StreamReader) Consume(conn *transport.Transport) (Outcome, error) {
	if r == nil {
		return Outcome{}, errors.New("stream reader is nil")
	}
	if conn == nil {
		return Outcome{}, errors.New("transport is required")
	}

	exitCode := exit.CodeOK
	finished := false
	for {
		record, err := conn.ReadRecord()
		if err != nil {
			if errors.Is(err, protocol.ErrClosed) {
				break
			}
			fmt.Fprintf(r.errOut, "the build stream broke (%v); restart the server and re-run\n", err)
			return Outcome{}, exit.Errorf(exit.CodeDisconnect, "read stream record: %v", err)
		}

		if r.onRecord != nil {
			r.onRecord(record)
		}
		switch record.Kind {
		case protocol.KindProgress:
			fmt.Fprintln(r.out, record.Text)
		case protocol.KindFailure:
			fmt.Fprintln(r.out, record.Text)
			exitCode = exit.CodeBuildFailed
		case protocol.KindCompleted:
			finished = true
		}
	}

	if !finished {
		fmt.Fprintln(r.errOut, "drydockd went away before finishing the build; restart it and re-run")
		return Outcome{}, exit.Errorf(exit.CodeDisconnect, "stream ended without a completion marker")
	}
	return Outcome{ExitCode: exitCode, TerminatedCleanly: true}, nil
}
