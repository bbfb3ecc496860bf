package smbfile

import (
	"errors"
	"net"
	"syscall"

	"github.com/nordfjell/smbclient/smb2"
)

// Error kinds surfaced alongside the readable message. Callers branch on
// these rather than parsing message text.
const (
	KindConnect   = "connect"
	KindAuth      = "auth"
	KindShare     = "share"
	KindProtocol  = "protocol"
	KindOperation = "operation"
	KindTimeout   = "timeout"
	KindUnknown   = "unknown"
)

// statusMessages maps server status codes to the messages existing
// automation consumers match on. The strings are load-bearing; do not
// reword them. Codes below 0x10000 are the POSIX-style aliases some
// servers and gateways report instead of NT status codes.
var statusMessages = map[uint32]string{
	3221225525: "Access Denied",
	3221225506: "File/Path Not Found",
	3221225514: "Invalid Parameter",
	3221225485: "Sharing Violation",
	3221225524: "Object Name Invalid",
	3221225534: "Not Enough Quota",
	3221225581: "Logon Failure",
	3221226036: "Bad Network Name",
	2147942402: "Network Name Not Found",
	2147942405: "Network Path Not Found",
	5:          "Access Denied",
	32:         "Sharing Violation",
	53:         "Network Path Not Found",
	67:         "Network Name Not Found",
	87:         "Invalid Parameter",
	1314:       "Access Denied",
}

// Transport-level fallback messages, fixed independent of the status table.
const (
	msgConnectionRefused = "Connection refused"
	msgConnectionTimeout = "Connection timed out"
	msgHostNotFound      = "Host not found"
)

// ReadableError renders err as the human-readable message the adapter
// surface promises: table strings for known status codes, fixed transport
// fallbacks, and the underlying error text otherwise. It never panics and
// accepts nil.
func ReadableError(err error) string {
	if err == nil {
		return ""
	}

	var connErr *smb2.ConnectError
	if errors.As(err, &connErr) {
		return transportMessage(connErr)
	}

	var timeoutErr *smb2.TimeoutError
	if errors.As(err, &timeoutErr) {
		return msgConnectionTimeout
	}

	if status, ok := statusOf(err); ok {
		if msg, ok := statusMessages[status]; ok {
			return msg
		}
	}
	return err.Error()
}

// ErrorKind tags err with its place in the taxonomy.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		connErr    *smb2.ConnectError
		authErr    *smb2.AuthError
		shareErr   *smb2.ShareError
		protoErr   *smb2.ProtocolError
		opErr      *smb2.OperationError
		timeoutErr *smb2.TimeoutError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &connErr):
		return KindConnect
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &shareErr):
		return KindShare
	case errors.As(err, &protoErr):
		return KindProtocol
	case errors.As(err, &opErr):
		return KindOperation
	}
	return KindUnknown
}

// statusOf extracts the raw server status when err carries one.
func statusOf(err error) (uint32, bool) {
	var opErr *smb2.OperationError
	if errors.As(err, &opErr) {
		return opErr.Status, true
	}
	var shareErr *smb2.ShareError
	if errors.As(err, &shareErr) {
		return shareErr.Status, true
	}
	var authErr *smb2.AuthError
	if errors.As(err, &authErr) && authErr.Status != 0 {
		return authErr.Status, true
	}
	return 0, false
}

func transportMessage(connErr *smb2.ConnectError) string {
	var dnsErr *net.DNSError
	if errors.As(connErr.Err, &dnsErr) {
		return msgHostNotFound
	}
	if errors.Is(connErr.Err, syscall.ECONNREFUSED) {
		return msgConnectionRefused
	}
	var netErr net.Error
	if errors.As(connErr.Err, &netErr) && netErr.Timeout() {
		return msgConnectionTimeout
	}
	return connErr.Error()
}
