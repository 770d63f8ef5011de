// Package status renders transient single-line heartbeat text that is
// overwritten in place. Heartbeats are presentation only; they never carry
// protocol state and must never leave stale characters behind a shorter line.
package status

import (
	"fmt"
	"io"
	"strings"
)

// Heartbeat writes one overwritable status line to a terminal-like writer.
// The zero value is not usable; construct one per wait operation so the
// rendered/width state stays scoped to that wait.
type Heartbeat struct {
	w         io.Writer
	rendered  bool
	lastWidth int
}

// New builds a heartbeat renderer for one wait operation.
func New(w io.Writer) *Heartbeat {
	return &Heartbeat{w: w}
}

// Tick replaces the current status line with message. Shorter messages are
// padded over the previous line's width before the cursor returns, so the
// old text can never show through.
func (h *Heartbeat) Tick(message string) {
	if h == nil || h.w == nil {
		return
	}
	message = strings.TrimRight(message, "\r\n")
	padded := message
	if padding := h.lastWidth - len(message); padding > 0 {
		padded += strings.Repeat(" ", padding)
	}
	fmt.Fprintf(h.w, "\r%s", padded)
	h.rendered = true
	h.lastWidth = len(message)
}

// Clear erases any rendered status line. Callers invoke it before printing a
// durable output line so log output stays uncorrupted. Clearing twice is a
// no-op.
func (h *Heartbeat) Clear() {
	if h == nil || h.w == nil || !h.rendered {
		return
	}
	fmt.Fprintf(h.w, "\r%s\r", strings.Repeat(" ", h.lastWidth))
	h.rendered = false
	h.lastWidth = 0
}

// Active reports whether a status line is currently rendered.
func (h *Heartbeat) Active() bool {
	return h != nil && h.rendered
}
