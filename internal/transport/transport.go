// Package transport opens the duplex channel between one client invocation
// and the drydockd server owning a workspace root. Each connection attempt
// opens a fresh channel; failed attempts are discarded, never reused.
package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/drydock-build/drydock/internal/protocol"
)

const dialTimeout = 5 * time.Second

// SocketPath derives the server socket path for a workspace root. The root is
// hashed so arbitrarily deep roots stay within unix socket path limits.
func SocketPath(stateDir, root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(strings.TrimSpace(root))))
	return filepath.Join(stateDir, "sock", hex.EncodeToString(sum[:8])+".sock")
}

// Dialer opens one channel to the server. Implementations classify nothing;
// the connection manager interprets dial failures.
type Dialer interface {
	Dial(ctx context.Context) (*Transport, error)
}

// UnixDialer dials the per-root unix domain socket.
type UnixDialer struct {
	Path string
}

// Dial opens a fresh transport over the unix socket.
func (d UnixDialer) Dial(ctx context.Context) (*Transport, error) {
	path := strings.TrimSpace(d.Path)
	if path == "" {
		return nil, errors.New("socket path must not be empty")
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return New(conn), nil
}

// Transport is one open channel plus its codec. Owned exclusively by the
// in-flight request; handshake and stream phases use it one at a time.
type Transport struct {
	conn  net.Conn
	codec *protocol.Codec
}

// New wraps an open connection.
func New(conn net.Conn) *Transport {
	return &Transport{
		conn:  conn,
		codec: protocol.NewCodec(conn),
	}
}

// SendBuild writes the build command for the handshake.
func (t *Transport) SendBuild(cmd protocol.BuildCommand) error {
	if t == nil || t.codec == nil {
		return errors.New("transport is not open")
	}
	return t.codec.WriteCommand(cmd)
}

// ReadReply blocks for the single handshake reply.
func (t *Transport) ReadReply() (protocol.ServerReply, error) {
	if t == nil || t.codec == nil {
		return protocol.ServerReply{}, errors.New("transport is not open")
	}
	return t.codec.ReadReply()
}

// ReadRecord blocks for one stream record.
func (t *Transport) ReadRecord() (protocol.StreamRecord, error) {
	if t == nil || t.codec == nil {
		return protocol.StreamRecord{}, errors.New("transport is not open")
	}
	return t.codec.ReadRecord()
}

// Close releases the underlying connection.
func (t *Transport) Close() error {
	if t == nil || t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
