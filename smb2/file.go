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
	"io"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

// Transfers are chunked to stay within one credit window per request even on
// servers granting large MTUs.
const preferredChunkSize = 1048576

func (s *Share) readChunkSize() uint32 {
	if s.conn.maxReadSize < preferredChunkSize {
		return s.conn.maxReadSize
	}
	return preferredChunkSize
}

func (s *Share) writeChunkSize() uint32 {
	if s.conn.maxWriteSize < preferredChunkSize {
		return s.conn.maxWriteSize
	}
	return preferredChunkSize
}

// FileReader streams a remote file's content sequentially. It implements
// io.ReadCloser; a failed read closes the remote handle.
type FileReader struct {
	share  *Share
	fileID []byte
	path   string
	size   uint64
	offset uint64
	buf    []byte // Unconsumed tail of the last response
	eof    bool
	closed bool
}

// OpenReader opens a file for streamed reading.
func (s *Share) OpenReader(path string) (*FileReader, error) {
	res, err := s.open("download", path,
		FAccMaskFileReadData|FAccMaskFileReadAttributes,
		FileAttrNormal,
		FileShareRead|FileShareWrite,
		FileOpen,
		FileNonDirectoryFile)
	if err != nil {
		return nil, err
	}
	return &FileReader{
		share:  s,
		fileID: res.FileId,
		path:   path,
		size:   res.EndOfFile,
	}, nil
}

// Size returns the file size reported when the handle was opened.
func (r *FileReader) Size() uint64 {
	return r.size
}

func (r *FileReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(r.buf) == 0 && !r.eof {
		if err := r.fill(); err != nil {
			r.Close()
			return 0, err
		}
	}
	if len(r.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// fill issues one READ at the current offset.
func (r *FileReader) fill() error {
	buf, err := r.share.conn.sendrecv(r.share.newReadReq(r.fileID, r.share.readChunkSize(), r.offset))
	if err != nil {
		return annotateTimeout(err, "download")
	}
	var res ReadRes
	if err := encoder.Unmarshal(buf, &res); err != nil {
		log.Errorln(err)
		return &ProtocolError{Msg: "failed to decode read response", Err: err}
	}
	switch res.Status {
	case StatusOk, StatusBufferOverflow:
		r.buf = res.Buffer
		r.offset += uint64(len(res.Buffer))
		if len(res.Buffer) == 0 {
			r.eof = true
		}
		return nil
	case StatusEndOfFile:
		r.eof = true
		return nil
	default:
		return operationError("download", r.path, res.Status)
	}
}

// Close releases the remote handle. It is safe to call more than once.
func (r *FileReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.share.closeFile(r.fileID)
}

// RetrieveFile streams the file at path into w.
func (s *Share) RetrieveFile(path string, w io.Writer) error {
	r, err := s.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := io.Copy(w, r); err != nil {
		return err
	}
	return r.Close()
}

// PutFile streams r into a new file at path. With overwrite false the upload
// fails if the file already exists; with overwrite true an existing file is
// replaced. Both dispositions are applied atomically by the server.
func (s *Share) PutFile(path string, r io.Reader, overwrite bool) error {
	disposition := uint32(FileCreate)
	if overwrite {
		disposition = FileOverwriteIf
	}
	res, err := s.open("upload", path,
		FAccMaskFileWriteData|FAccMaskFileReadAttributes,
		FileAttrNormal,
		FileShareRead,
		disposition,
		FileNonDirectoryFile)
	if err != nil {
		return err
	}
	fileID := res.FileId

	chunk := make([]byte, s.writeChunkSize())
	var offset uint64
	for {
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			if werr := s.writeAt(path, fileID, offset, chunk[:n]); werr != nil {
				s.closeHandle(fileID)
				return werr
			}
			offset += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			s.closeHandle(fileID)
			return err
		}
	}
	return s.closeFile(fileID)
}

// writeAt pushes one buffer to the given offset, retrying the remainder when
// the server accepts a short write.
func (s *Share) writeAt(path string, fileID []byte, offset uint64, data []byte) error {
	for len(data) > 0 {
		buf, err := s.conn.sendrecv(s.newWriteReq(fileID, offset, data))
		if err != nil {
			return annotateTimeout(err, "upload")
		}
		var res WriteRes
		if err := encoder.Unmarshal(buf, &res); err != nil {
			log.Errorln(err)
			return &ProtocolError{Msg: "failed to decode write response", Err: err}
		}
		if res.Status != StatusOk {
			return operationError("upload", path, res.Status)
		}
		if res.Count == 0 {
			return &ProtocolError{Msg: "server accepted a write of zero bytes"}
		}
		if res.Count > uint32(len(data)) {
			res.Count = uint32(len(data))
		}
		data = data[res.Count:]
		offset += uint64(res.Count)
	}
	return nil
}
