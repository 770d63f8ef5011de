// Package exit carries process exit decisions as values so that components
// never terminate the process themselves. Only the command entrypoint calls
// os.Exit, after unwrapping an Error from whatever bubbled up.
package exit

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CodeOK indicates a clean build with no failure records.
	CodeOK = 0
	// CodeDisconnect indicates the server closed the channel before a reply
	// or before the completion marker.
	CodeDisconnect = 1
	// CodeBuildFailed indicates at least one failure record, an exhausted
	// retry budget, or an unreachable server.
	CodeBuildFailed = 2
)

// Error is a fatal outcome with a determined process exit code.
type Error struct {
	Code   int
	Reason string
}

// Errorf builds an Error with a formatted reason.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{
		Code:   code,
		Reason: strings.TrimSpace(fmt.Sprintf(format, args...)),
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Reason
}

// CodeFromError resolves the exit code an error demands. Nil means success;
// any error that is not an Error maps to CodeDisconnect as the conservative
// abnormal-termination default.
func CodeFromError(err error) int {
	if err == nil {
		return CodeOK
	}
	var exitErr *Error
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return CodeDisconnect
}
