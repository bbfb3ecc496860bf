// MIT License
//
// Copyright (c) 2017 stacktitan
// Copyright (c) 2023 Jimmy Fjällid for extensions beyond login for SMB 2.1
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package smb2

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

// Share is a mounted tree connection. All file and directory operations are
// expressed relative to its root.
type Share struct {
	conn   *Connection
	name   string
	treeID uint32
	closed atomic.Bool
}

// DirEntry describes one name in a directory listing.
type DirEntry struct {
	Name           string
	Size           uint64
	Attributes     uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
}

func (e DirEntry) IsDir() bool {
	return e.Attributes&FileAttrDirectory == FileAttrDirectory
}

// IsJunction reports a reparse point (junction or symlink).
func (e DirEntry) IsJunction() bool {
	return e.Attributes&FileAttrReparsePoint == FileAttrReparsePoint
}

// Mount connects to a named share on the server.
func (c *Connection) Mount(share string) (*Share, error) {
	share = strings.Trim(share, "\\/")
	treeID, err := c.treeConnect(share)
	if err != nil {
		return nil, err
	}
	c.treeLock.Lock()
	c.trees[share] = treeID
	c.treeLock.Unlock()
	log.Debugf("Mounted share %s with tree id %d", share, treeID)
	return &Share{conn: c, name: share, treeID: treeID}, nil
}

// Umount disconnects the tree. The share must not be used afterwards.
func (s *Share) Umount() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.conn.treeLock.Lock()
	delete(s.conn.trees, s.name)
	s.conn.treeLock.Unlock()
	return s.conn.treeDisconnect(s.treeID)
}

// Name returns the share name the tree is connected to.
func (s *Share) Name() string {
	return s.name
}

// normalizePath converts slash-separated paths to the wire form: backslash
// separators without a leading separator.
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "\\")
	return strings.Trim(path, "\\")
}

// open issues a CREATE and returns the response carrying the granted file id
// and the file's metadata.
func (s *Share) open(op, path string, access, attrs, shareAccess, disposition, options uint32) (*CreateRes, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	buf, err := s.conn.sendrecv(s.newCreateReq(normalizePath(path), access, attrs, shareAccess, disposition, options))
	if err != nil {
		return nil, annotateTimeout(err, op)
	}
	var res CreateRes
	if err := encoder.Unmarshal(buf, &res); err != nil {
		log.Errorln(err)
		return nil, &ProtocolError{Msg: "failed to decode create response", Err: err}
	}
	if res.Status != StatusOk {
		return nil, operationError(op, path, res.Status)
	}
	return &res, nil
}

// closeHandle closes a file id, logging rather than failing when the server
// objects, since close errors are rarely actionable.
func (s *Share) closeHandle(fileID []byte) {
	if err := s.closeFile(fileID); err != nil {
		log.Debugf("Close of file handle failed: %v", err)
	}
}

func (s *Share) closeFile(fileID []byte) error {
	buf, err := s.conn.sendrecv(s.newCloseReq(fileID))
	if err != nil {
		return err
	}
	var res CloseRes
	if err := encoder.Unmarshal(buf, &res); err != nil {
		return &ProtocolError{Msg: "failed to decode close response", Err: err}
	}
	if res.Status != StatusOk {
		return operationError("close", "", res.Status)
	}
	return nil
}

// Exists reports whether a file or directory with the given path is present
// on the share.
func (s *Share) Exists(path string) (bool, error) {
	res, err := s.open("stat", path,
		FAccMaskFileReadAttributes,
		FileAttrNormal,
		FileShareRead|FileShareWrite|FileShareDelete,
		FileOpen,
		0)
	if err != nil {
		var opErr *OperationError
		if errors.As(err, &opErr) {
			switch opErr.Status {
			case StatusObjectNameNotFound, StatusObjectPathNotFound, StatusNoSuchFile:
				return false, nil
			}
		}
		return false, err
	}
	s.closeHandle(res.FileId)
	return true, nil
}

// ReadDirectory lists the entries of a directory, excluding the dot entries.
func (s *Share) ReadDirectory(path string) ([]DirEntry, error) {
	res, err := s.open("readdir", path,
		DAccMaskFileListDirectory|DAccMaskFileReadAttributes,
		FileAttrDirectory,
		FileShareRead|FileShareWrite,
		FileOpen,
		FileDirectoryFile)
	if err != nil {
		return nil, err
	}
	fileID := res.FileId
	defer s.closeHandle(fileID)

	var entries []DirEntry
	for {
		buf, err := s.conn.sendrecv(s.newQueryDirectoryReq("*", fileID, 0, 65536))
		if err != nil {
			return nil, annotateTimeout(err, "readdir")
		}
		var res QueryDirectoryRes
		if err := encoder.Unmarshal(buf, &res); err != nil {
			log.Errorln(err)
			return nil, &ProtocolError{Msg: "failed to decode query directory response", Err: err}
		}
		if res.Status == StatusNoMoreFiles {
			break
		}
		if res.Status != StatusOk {
			return nil, operationError("readdir", path, res.Status)
		}

		batch, err := parseDirectoryBuffer(res.Buffer)
		if err != nil {
			return nil, err
		}
		entries = append(entries, batch...)
	}
	return entries, nil
}

// parseDirectoryBuffer walks a chain of FILE_BOTH_DIR_INFORMATION records.
func parseDirectoryBuffer(buf []byte) ([]DirEntry, error) {
	var entries []DirEntry
	for offset := uint32(0); ; {
		var info FileBothDirectoryInformationEntry
		if err := encoder.Unmarshal(buf[offset:], &info); err != nil {
			log.Errorln(err)
			return nil, &ProtocolError{Msg: "failed to decode directory entry", Err: err}
		}
		name, err := encoder.FromUnicodeString(info.FileName)
		if err != nil {
			return nil, &ProtocolError{Msg: "directory entry name is not valid UTF-16", Err: err}
		}
		if name != "." && name != ".." {
			entries = append(entries, DirEntry{
				Name:           name,
				Size:           info.EndOfFile,
				Attributes:     info.FileAttributes,
				CreationTime:   filetimeToTime(info.CreationTime),
				LastAccessTime: filetimeToTime(info.LastAccessTime),
				LastWriteTime:  filetimeToTime(info.LastWriteTime),
				ChangeTime:     filetimeToTime(info.ChangeTime),
			})
		}
		if info.NextEntryOffset == 0 {
			break
		}
		offset += info.NextEntryOffset
		if offset >= uint32(len(buf)) {
			return nil, &ProtocolError{Msg: "directory entry chain extends past end of buffer"}
		}
	}
	return entries, nil
}

// Mkdir creates a directory. Parent directories must already exist.
func (s *Share) Mkdir(path string) error {
	res, err := s.open("mkdir", path,
		DAccMaskFileReadAttributes,
		FileAttrDirectory,
		FileShareRead|FileShareWrite,
		FileCreate,
		FileDirectoryFile)
	if err != nil {
		return err
	}
	s.closeHandle(res.FileId)
	return nil
}

// Rename moves a file or directory within the share. An existing target is
// not replaced.
func (s *Share) Rename(oldPath, newPath string) error {
	res, err := s.open("rename", oldPath,
		FAccMaskDelete|FAccMaskFileReadAttributes|FAccMaskFileWriteAttributes|FAccMaskReadControl,
		FileAttrNormal,
		FileShareRead|FileShareWrite|FileShareDelete,
		FileOpen,
		0)
	if err != nil {
		return err
	}
	defer s.closeHandle(res.FileId)

	info := renameInfoBuffer(normalizePath(newPath), false)
	return s.setInfo("rename", oldPath, res.FileId, FileRenameInformation, info)
}

// RemoveFile deletes a file. Directories are refused with a not-a-directory
// style error from the server.
func (s *Share) RemoveFile(path string) error {
	return s.remove("remove", path, FileNonDirectoryFile)
}

// RemoveDirectory deletes an empty directory. The server rejects non-empty
// directories with StatusDirectoryNotEmpty.
func (s *Share) RemoveDirectory(path string) error {
	return s.remove("rmdir", path, FileDirectoryFile)
}

func (s *Share) remove(op, path string, createOptions uint32) error {
	res, err := s.open(op, path,
		FAccMaskDelete|FAccMaskFileReadAttributes,
		FileAttrNormal,
		FileShareRead|FileShareWrite|FileShareDelete,
		FileOpen,
		createOptions)
	if err != nil {
		return err
	}
	defer s.closeHandle(res.FileId)

	// FileDispositionInformation with DeletePending set. The node is removed
	// when the last handle closes.
	return s.setInfo(op, path, res.FileId, FileDispositionInformation, []byte{1})
}

func (s *Share) setInfo(op, path string, fileID []byte, infoClass byte, info []byte) error {
	buf, err := s.conn.sendrecv(s.newSetInfoReq(fileID, infoClass, info))
	if err != nil {
		return annotateTimeout(err, op)
	}
	var res SetInfoRes
	if err := encoder.Unmarshal(buf, &res); err != nil {
		log.Errorln(err)
		return &ProtocolError{Msg: "failed to decode set info response", Err: err}
	}
	if res.Status != StatusOk {
		return operationError(op, path, res.Status)
	}
	return nil
}

// renameInfoBuffer encodes FILE_RENAME_INFORMATION. MS-FSCC Section 2.4.37.
func renameInfoBuffer(target string, replaceIfExists bool) []byte {
	name := encoder.ToUnicode(target)
	buf := make([]byte, 20+len(name))
	if replaceIfExists {
		buf[0] = 1
	}
	// Bytes 1 through 7 are reserved, 8 through 15 hold the root directory
	// handle which is zero for paths relative to the share root.
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(name)))
	copy(buf[20:], name)
	return buf
}

func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	// FILETIME counts 100ns ticks since 1601-01-01.
	ns := (int64(ft) - 116444736000000000) * 100
	return time.Unix(0, ns).UTC()
}

// annotateTimeout fills in the operation name on timeout errors raised below
// the operation layer.
func annotateTimeout(err error, op string) error {
	if te, ok := err.(*TimeoutError); ok && te.Op == "" {
		te.Op = op
	}
	return err
}
