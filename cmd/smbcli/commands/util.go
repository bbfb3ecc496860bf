package commands

import "github.com/nordfjell/smbclient/smbfile"

// readable turns a client error into its consumer-facing message.
func readable(err error) string {
	return smbfile.ReadableError(err)
}
