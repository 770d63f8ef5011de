// Package protocol defines the wire message set exchanged between the drydock
// client and the drydockd server: one build command, one synchronous reply,
// then a stream of progress records terminated by a completion marker.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Version identifies the client protocol revision sent with every command.
// The server answers KindStaleVersion when its own revision differs.
const Version = "1"

const (
	// KindBuild is the client command requesting a build of the root.
	KindBuild = "build"

	// KindStaleVersion is the reply sent by a server whose build predates
	// the client's protocol revision.
	KindStaleVersion = "stale_version"
	// KindAck is the reply confirming the server accepted the command and
	// will stream progress records.
	KindAck = "ack"

	// KindProgress is a stream record carrying one informational line.
	KindProgress = "progress"
	// KindFailure is a stream record carrying one build error line.
	KindFailure = "failure"
	// KindCompleted is the final stream record of a well-formed build.
	KindCompleted = "completed"
)

// BuildCommand is the single command a client invocation sends.
type BuildCommand struct {
	Kind          string `json:"kind"`
	Root          string `json:"root"`
	Wait          bool   `json:"wait"`
	Incremental   bool   `json:"incremental"`
	ClientVersion string `json:"client_version"`
}

// NewBuildCommand builds a command envelope for the given root.
func NewBuildCommand(root string, wait, incremental bool) BuildCommand {
	return BuildCommand{
		Kind:          KindBuild,
		Root:          strings.TrimSpace(root),
		Wait:          wait,
		Incremental:   incremental,
		ClientVersion: Version,
	}
}

// ServerReply is the decoded synchronous handshake reply.
type ServerReply struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// Stale reports whether the reply demands a fresh handshake after the
// server rebuilds itself.
func (r ServerReply) Stale() bool { return r.Kind == KindStaleVersion }

// Acknowledged reports whether the server accepted the build command.
func (r ServerReply) Acknowledged() bool { return r.Kind == KindAck }

// StreamRecord is one framed record of the post-handshake progress stream.
type StreamRecord struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// ErrClosed indicates the peer closed the channel mid-exchange.
var ErrClosed = errors.New("server closed the connection")

// Codec frames protocol messages as newline-delimited JSON over one duplex
// channel. It is not safe for concurrent use; the handshake and the stream
// phases own the channel one at a time.
type Codec struct {
	enc *json.Encoder
	dec *json.Decoder
}

// NewCodec wires a codec onto an open channel.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		enc: json.NewEncoder(rw),
		dec: json.NewDecoder(rw),
	}
}

// WriteCommand sends the build command envelope.
func (c *Codec) WriteCommand(cmd BuildCommand) error {
	if c == nil || c.enc == nil {
		return errors.New("codec is not initialized")
	}
	if cmd.Kind != KindBuild {
		return fmt.Errorf("unsupported command kind %q", cmd.Kind)
	}
	if cmd.Root == "" {
		return errors.New("command root must not be empty")
	}
	if err := c.enc.Encode(cmd); err != nil {
		return fmt.Errorf("encode %s command: %w", cmd.Kind, err)
	}
	return nil
}

// ReadReply decodes exactly one handshake reply. A closed channel surfaces
// as ErrClosed; any undeclared kind is returned as-is for the caller to
// classify as unexpected.
func (c *Codec) ReadReply() (ServerReply, error) {
	if c == nil || c.dec == nil {
		return ServerReply{}, errors.New("codec is not initialized")
	}
	var reply ServerReply
	if err := c.dec.Decode(&reply); err != nil {
		return ServerReply{}, closedOr("decode server reply", err)
	}
	reply.Kind = strings.TrimSpace(reply.Kind)
	if reply.Kind == "" {
		return ServerReply{}, errors.New("server reply missing kind")
	}
	return reply, nil
}

// ReadRecord decodes one stream record. End-of-stream surfaces as ErrClosed.
func (c *Codec) ReadRecord() (StreamRecord, error) {
	if c == nil || c.dec == nil {
		return StreamRecord{}, errors.New("codec is not initialized")
	}
	var record StreamRecord
	if err := c.dec.Decode(&record); err != nil {
		return StreamRecord{}, closedOr("decode stream record", err)
	}
	record.Kind = strings.TrimSpace(record.Kind)
	switch record.Kind {
	case KindProgress, KindFailure, KindCompleted:
		return record, nil
	case "":
		return StreamRecord{}, errors.New("stream record missing kind")
	default:
		return StreamRecord{}, fmt.Errorf("unsupported stream record kind %q", record.Kind)
	}
}

func closedOr(operation string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	if strings.Contains(err.Error(), "use of closed network connection") {
		return ErrClosed
	}
	return fmt.Errorf("%s: %w", operation, err)
}
