package smb2

import "fmt"

// NT status codes the client inspects or reports. MS-ERREF Section 2.3.
const (
	StatusOk                     uint32 = 0x00000000
	StatusPending                uint32 = 0x00000103
	StatusNotifyCleanup          uint32 = 0x0000010b
	StatusNotifyEnumDir          uint32 = 0x0000010c
	StatusBufferOverflow         uint32 = 0x80000005
	StatusNoMoreFiles            uint32 = 0x80000006
	StatusInvalidParameter       uint32 = 0xc000000d
	StatusNoSuchFile             uint32 = 0xc000000f
	StatusEndOfFile              uint32 = 0xc0000011
	StatusMoreProcessingRequired uint32 = 0xc0000016
	StatusAccessDenied           uint32 = 0xc0000022
	StatusObjectNameInvalid      uint32 = 0xc0000033
	StatusObjectNameNotFound     uint32 = 0xc0000034
	StatusObjectNameCollision    uint32 = 0xc0000035
	StatusObjectPathNotFound     uint32 = 0xc000003a
	StatusSharingViolation       uint32 = 0xc0000043
	StatusQuotaExceeded          uint32 = 0xc0000044
	StatusLogonFailure           uint32 = 0xc000006d
	StatusIOTimeout              uint32 = 0xc00000b5
	StatusFileIsADirectory       uint32 = 0xc00000ba
	StatusBadNetworkPath         uint32 = 0xc00000be
	StatusBadNetworkName         uint32 = 0xc00000cc
	StatusDirectoryNotEmpty      uint32 = 0xc0000101
	StatusNotADirectory          uint32 = 0xc0000103
	StatusCancelled              uint32 = 0xc0000120
	StatusUserSessionDeleted     uint32 = 0xc0000203
	StatusAccountLockedOut       uint32 = 0xc0000234
)

// StatusMap translates the status codes above to short protocol-level
// descriptions. Consumer-facing message tables live with the consumer; this
// map is for diagnostics and wrapped errors.
var StatusMap = map[uint32]string{
	StatusOk:                     "OK",
	StatusPending:                "status pending",
	StatusNotifyCleanup:          "notify cleanup",
	StatusNotifyEnumDir:          "notify enumeration required",
	StatusBufferOverflow:         "response buffer overflow",
	StatusNoMoreFiles:            "no more files",
	StatusInvalidParameter:       "invalid parameter",
	StatusNoSuchFile:             "no such file",
	StatusEndOfFile:              "end of file",
	StatusMoreProcessingRequired: "more processing required",
	StatusAccessDenied:           "access denied",
	StatusObjectNameInvalid:      "object name invalid",
	StatusObjectNameNotFound:     "object name not found",
	StatusObjectNameCollision:    "object name already exists",
	StatusObjectPathNotFound:     "object path not found",
	StatusSharingViolation:       "sharing violation",
	StatusQuotaExceeded:          "quota exceeded",
	StatusLogonFailure:           "logon failure",
	StatusIOTimeout:              "i/o timeout",
	StatusFileIsADirectory:       "file is a directory",
	StatusBadNetworkPath:         "bad network path",
	StatusBadNetworkName:         "bad network name",
	StatusDirectoryNotEmpty:      "directory not empty",
	StatusNotADirectory:          "not a directory",
	StatusCancelled:              "request cancelled",
	StatusUserSessionDeleted:     "user session deleted",
	StatusAccountLockedOut:       "account locked out",
}

// StatusText returns the protocol description of an NT status code, or the
// hex code itself when unknown.
func StatusText(status uint32) string {
	if s, ok := StatusMap[status]; ok {
		return s
	}
	return fmt.Sprintf("NT status 0x%08x", status)
}
