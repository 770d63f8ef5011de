package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/drydock-build/drydock/internal/exit"
	"github.com/drydock-build/drydock/internal/protocol"
	"github.com/drydock-build/drydock/internal/transport"
)

func TestConsumePrintsProgressInOrderAndSucceeds(t *testing.T) {
	t.Parallel()

	conn := streamConn(t,
		protocol.StreamRecord{Kind: protocol.KindProgress, Text: "Parsing"},
		protocol.StreamRecord{Kind: protocol.KindProgress, Text: "Typechecking"},
		protocol.StreamRecord{Kind: protocol.KindCompleted},
	)
	defer conn.Close()

	var out, errOut bytes.Buffer
	reader, err := NewStreamReader(&out, &errOut, nil)
	if err != nil {
		t.Fatalf("new stream reader: %v", err)
	}

	outcome, err := reader.Consume(conn)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if outcome.ExitCode != exit.CodeOK || !outcome.TerminatedCleanly {
		t.Fatalf("outcome = %#v, want clean success", outcome)
	}
	if out.String() != "Parsing\nTypechecking\n" {
		t.Fatalf("stdout = %q, want ordered progress lines", out.String())
	}
	if errOut.Len() != 0 {
		t.Fatalf("stderr = %q, want empty", errOut.String())
	}
}

func TestConsumeLatchesFailuresWithoutStopping(t *testing.T) {
	t.Parallel()

	conn := streamConn(t,
		protocol.StreamRecord{Kind: protocol.KindFailure, Text: "foo.dd:10 error"},
		protocol.StreamRecord{Kind: protocol.KindProgress, Text: "Continuing"},
		protocol.StreamRecord{Kind: protocol.KindCompleted},
	)
	defer conn.Close()

	var out, errOut bytes.Buffer
	reader, err := NewStreamReader(&out, &errOut, nil)
	if err != nil {
		t.Fatalf("new stream reader: %v", err)
	}

	outcome, err := reader.Consume(conn)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if outcome.ExitCode != exit.CodeBuildFailed {
		t.Fatalf("exit code = %d, want 2", outcome.ExitCode)
	}
	if out.String() != "foo.dd:10 error\nContinuing\n" {
		t.Fatalf("stdout = %q, want failure and later progress printed", out.String())
	}
}

func TestConsumeEmptyStreamWithCompletionIsSilentSuccess(t *testing.T) {
	t.Parallel()

	conn := streamConn(t, protocol.StreamRecord{Kind: protocol.KindCompleted})
	defer conn.Close()

	var out, errOut bytes.Buffer
	reader, err := NewStreamReader(&out, &errOut, nil)
	if err != nil {
		t.Fatalf("new stream reader: %v", err)
	}

	outcome, err := reader.Consume(conn)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if outcome.ExitCode != exit.CodeOK {
		t.Fatalf("exit code = %d, want 0", outcome.ExitCode)
	}
	if out.Len() != 0 {
		t.Fatalf("stdout = %q, want no output", out.String())
	}
}

func TestConsumeDisconnectBeforeCompletionOverridesFailures(t *testing.T) {
	t.Parallel()

	conn := streamConn(t,
		protocol.StreamRecord{Kind: protocol.KindFailure, Text: "foo.dd:10 error"},
		protocol.StreamRecord{Kind: protocol.KindProgress, Text: "Linking"},
	)
	defer conn.Close()

	var out, errOut bytes.Buffer
	reader, err := NewStreamReader(&out, &errOut, nil)
	if err != nil {
		t.Fatalf("new stream reader: %v", err)
	}

	_, err = reader.Consume(conn)
	var exitErr *exit.Error
	if !errors.As(err, &exitErr) || exitErr.Code != exit.CodeDisconnect {
		t.Fatalf("error = %v, want exit code 1 despite prior failure", err)
	}
	if !strings.Contains(errOut.String(), "restart") {
		t.Fatalf("stderr = %q, want restart suggestion", errOut.String())
	}
}

func TestConsumeInvokesRecordHookInOrder(t *testing.T) {
	t.Parallel()

	conn := streamConn(t,
		protocol.StreamRecord{Kind: protocol.KindProgress, Text: "Parsing"},
		protocol.StreamRecord{Kind: protocol.KindFailure, Text: "broken"},
		protocol.StreamRecord{Kind: protocol.KindCompleted},
	)
	defer conn.Close()

	var kinds []string
	reader, err := NewStreamReader(&bytes.Buffer{}, &bytes.Buffer{}, func(record protocol.StreamRecord) {
		kinds = append(kinds, record.Kind)
	})
	if err != nil {
		t.Fatalf("new stream reader: %v", err)
	}
	if _, err := reader.Consume(conn); err != nil {
		t.Fatalf("consume: %v", err)
	}

	want := []string{protocol.KindProgress, protocol.KindFailure, protocol.KindCompleted}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("hook kinds = %v, want %v", kinds, want)
	}
}

// streamConn returns a client transport whose peer writes the given records
// and then closes, ending the stream.
func streamConn(t *testing.T, records ...protocol.StreamRecord) *transport.Transport {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go func() {
		defer serverConn.Close()
		enc := json.NewEncoder(serverConn)
		for _, record := range records {
			if err := enc.Encode(record); err != nil {
				return
			}
		}
	}()
	return transport.New(clientConn)
}
