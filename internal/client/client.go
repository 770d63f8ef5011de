// Package client implements the drydock invocation flow: reach the server
// owning a workspace root (spawning it when absent), send one build command,
// wait out the handshake, and consume the progress stream into an exit code.
//
// Components return typed outcomes instead of terminating the process; only
// the command entrypoint calls os.Exit.
package client

import (
	"strings"
)

// Session is one invocation's immutable configuration.
type Session struct {
	// Root identifies the workspace the server owns.
	Root string
	// Wait disables every retry bound: the client waits for the server
	// however long it takes.
	Wait bool
	// Incremental requests an incremental build instead of a full one.
	Incremental bool
}

// Validate reports whether the session can drive an invocation.
func (s Session) Validate() error {
	if strings.TrimSpace(s.Root) == "" {
		return errRootRequired
	}
	return nil
}

// Budget is the retry budget shared between connection retries and
// stale-version handshake retries. When the session waits indefinitely the
// counter keeps decrementing for reporting but never triggers termination.
type Budget struct {
	remaining int
	spent     int
	wait      bool
}

// NewBudget builds a budget of n permitted retries.
func NewBudget(n int, wait bool) *Budget {
	if n < 0 {
		n = 0
	}
	return &Budget{remaining: n, wait: wait}
}

// Exhausted reports whether the next retry must instead terminate.
// Exhaustion is checked before any decrement, so the counter never goes
// negative in a way that changes semantics.
func (b *Budget) Exhausted() bool {
	if b == nil {
		return true
	}
	return !b.wait && b.remaining <= 0
}

// Consume records one spent retry.
func (b *Budget) Consume() {
	if b == nil {
		return
	}
	b.spent++
	if b.remaining > 0 {
		b.remaining--
	}
}

// Remaining returns the retries left before exhaustion.
func (b *Budget) Remaining() int {
	if b == nil {
		return 0
	}
	return b.remaining
}

// Spent returns how many retries were consumed so far.
func (b *Budget) Spent() int {
	if b == nil {
		return 0
	}
	return b.spent
}
