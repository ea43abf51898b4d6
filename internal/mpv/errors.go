package mpv

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when a command is attempted while the
	// client has no usable connection and fail-fast policy applies.
	ErrNotConnected = errors.New("mpv: not connected")
	// ErrClosed is the cause carried by failures produced by Client.Close.
	ErrClosed = errors.New("mpv: client closed")
	// ErrCorruptStream marks a connection torn down because malformed lines kept arriving.
	ErrCorruptStream = errors.New("mpv: too many malformed lines")
)

// ConnectionError reports an unreachable or dropped transport.
type ConnectionError struct {
	Op  string // dial | write | read | close
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mpv connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a line that is not a valid IPC message.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	line := e.Line
	if len(line) > 128 {
		line = line[:128] + "..."
	}
	return fmt.Sprintf("mpv protocol error: %v (line %q)", e.Err, line)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// CommandError is a reply whose error field is not "success".
type CommandError struct {
	Command string
	Code    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mpv command %s failed: %s", e.Command, e.Code)
}

// TimeoutError reports a command whose reply did not arrive in time.
type TimeoutError struct {
	Command   string
	RequestID int64
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mpv command %s (request %d) timed out after %s", e.Command, e.RequestID, e.After)
}

// Timeout lets callers treat the error like a net.Error timeout.
func (e *TimeoutError) Timeout() bool { return true }
