// Package smbfile is the adapter-facing surface of the SMB client: a
// Credential record, a Client bound to one share, and the readable-error
// mapping automation consumers depend on. Policy decisions (retries, batch
// abort-or-continue) belong to the caller; every operation here works on one
// path and reports one error.
package smbfile

import (
	"fmt"
	"io"
	"time"

	"github.com/jfjallid/golog"

	"github.com/nordfjell/smbclient/smb2"
)

var log = golog.Get("github.com/nordfjell/smbclient/smbfile")

// Credential carries everything needed to reach one share.
type Credential struct {
	Host           string
	Port           int
	Domain         string
	Username       string
	Password       string
	Share          string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Client is an authenticated connection mounted on a single share.
type Client struct {
	conn  *smb2.Connection
	share *smb2.Share
}

// Connect dials the server, authenticates and mounts the credential's share.
func Connect(cred Credential) (*Client, error) {
	conn, err := smb2.Dial(smb2.Options{
		Host: cred.Host,
		Port: cred.Port,
		Initiator: &smb2.NTLMInitiator{
			User:     cred.Username,
			Password: cred.Password,
			Domain:   cred.Domain,
		},
		DialTimeout:    cred.ConnectTimeout,
		RequestTimeout: cred.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cred.Host, err)
	}
	share, err := conn.Mount(cred.Share)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mount %s: %w", cred.Share, err)
	}
	return &Client{conn: conn, share: share}, nil
}

// Close unmounts the share and tears the connection down.
func (c *Client) Close() error {
	if err := c.share.Umount(); err != nil {
		// The connection teardown below releases the tree anyway.
		log.Debugf("Umount failed: %v", err)
	}
	c.conn.Close()
	return nil
}

// FileInfo is one entry of a listing.
type FileInfo struct {
	Name       string
	Size       uint64
	IsDir      bool
	IsJunction bool
	Created    time.Time
	Modified   time.Time
}

// List returns the entries of a directory, dot entries excluded.
func (c *Client) List(path string) ([]FileInfo, error) {
	entries, err := c.share.ReadDirectory(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, FileInfo{
			Name:       e.Name,
			Size:       e.Size,
			IsDir:      e.IsDir(),
			IsJunction: e.IsJunction(),
			Created:    e.CreationTime,
			Modified:   e.LastWriteTime,
		})
	}
	return infos, nil
}

// Exists reports whether the path names a file or directory on the share.
func (c *Client) Exists(path string) (bool, error) {
	ok, err := c.share.Exists(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// Download opens a streamed reader over the file's content. The caller must
// close it to release the remote handle.
func (c *Client) Download(path string) (io.ReadCloser, error) {
	r, err := c.share.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	return r, nil
}

// Upload streams r into path. With overwrite false an existing file is
// rejected by the server; with overwrite true it is replaced. Both are a
// single atomic open disposition, not a check-then-act sequence.
func (c *Client) Upload(path string, r io.Reader, overwrite bool) error {
	if err := c.share.PutFile(path, r, overwrite); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// Delete removes a file, or with isFolder an empty directory. Non-empty
// directories are refused by the server; nothing is deleted recursively.
func (c *Client) Delete(path string, isFolder bool) error {
	var err error
	if isFolder {
		err = c.share.RemoveDirectory(path)
	} else {
		err = c.share.RemoveFile(path)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Rename moves a file or directory within the share without replacing an
// existing target.
func (c *Client) Rename(oldPath, newPath string) error {
	if err := c.share.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
	return nil
}

// Mkdir creates a directory.
func (c *Client) Mkdir(path string) error {
	if err := c.share.Mkdir(path); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
