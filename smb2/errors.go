package smb2

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for operations on a closed connection, share or
// handle.
var ErrClosed = errors.New("smb2: connection closed")

// ConnectError is a transport-level failure before any protocol exchange.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("smb2: connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError reports a rejected negotiate or session-setup exchange. Status
// carries the NT status code the server answered with; it is zero when the
// failure happened before a status was received.
type AuthError struct {
	Status uint32
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smb2: authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("smb2: authentication failed: %s", StatusText(e.Status))
}

func (e *AuthError) Unwrap() error { return e.Err }

// LogonFailed reports whether the server rejected the credentials themselves
// rather than the exchange.
func (e *AuthError) LogonFailed() bool {
	return e.Status == StatusLogonFailure || e.Status == StatusAccountLockedOut
}

// ShareError reports a rejected tree connect.
type ShareError struct {
	Share  string
	Status uint32
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("smb2: tree connect to %q failed: %s", e.Share, StatusText(e.Status))
}

// ProtocolError reports a malformed or truncated message that could not be
// decoded.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smb2: protocol error: %s: %v", e.Msg, e.Err)
	}
	return "smb2: protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// OperationError is a file or directory operation the server rejected. The
// raw NT status is preserved for programmatic branching.
type OperationError struct {
	Op     string
	Path   string
	Status uint32
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("smb2: %s %q: %s", e.Op, e.Path, StatusText(e.Status))
}

// TimeoutError reports a request that exceeded its per-request deadline.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("smb2: %s: request timed out", e.Op)
}

func operationError(op, path string, status uint32) error {
	return &OperationError{Op: op, Path: path, Status: status}
}
