// MIT License
//
// # Copyright (c) 2023 Jimmy Fjällid
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
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

// fakeConn wires a Connection to the client end of a pipe with sender and
// receiver loops running, skipping negotiate and session setup.
func fakeConn(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()

	c := &Connection{
		opts:                Options{RequestTimeout: 5 * time.Second},
		conn:                client,
		outstandingRequests: newOutstandingRequests(),
		credits:             1,
		wdone:               make(chan struct{}, 1),
		rdone:               make(chan struct{}, 1),
		write:               make(chan []byte, 1),
		werr:                make(chan error, 1),
		trees:               make(map[string]uint32),
		dialect:             DialectSmb_2_1,
		supportsMultiCredit: true,
		maxReadSize:         65536,
		maxWriteSize:        65536,
		maxTransactSize:     65536,
		sessionID:           1,
	}
	go c.runSender()
	go c.runReceiver()
	t.Cleanup(func() {
		server.Close()
		c.teardown()
	})
	return c, server
}

func readFrame(conn net.Conn) ([]byte, error) {
	var size uint32
	if err := binary.Read(conn, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	pkt := make([]byte, size)
	if _, err := io.ReadFull(conn, pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

func writeFrame(conn net.Conn, pkt []byte) error {
	frame := binary.BigEndian.AppendUint32(nil, uint32(len(pkt)))
	return binary.Write(conn, binary.BigEndian, append(frame, pkt...))
}

// noResponse tells serve to leave a request pending and keep reading.
type noResponse struct{}

// serve answers each incoming request with whatever the handler returns,
// copying the request's message id into the response. A nil response stops
// the loop.
func serve(t *testing.T, server net.Conn, handler func(cmd uint16, req []byte) interface{}) {
	t.Helper()
	go func() {
		for {
			req, err := readFrame(server)
			if err != nil {
				return
			}
			res := handler(binary.LittleEndian.Uint16(req[12:14]), req)
			if res == nil {
				return
			}
			if _, ok := res.(noResponse); ok {
				continue
			}
			buf, err := encoder.Marshal(res)
			if err != nil {
				t.Errorf("fake server failed to marshal response: %v", err)
				return
			}
			copy(buf[24:32], req[24:32])
			if err := writeFrame(server, buf); err != nil {
				return
			}
		}
	}()
}

func resHeader(command uint16, status uint32) Header {
	hdr := newHeader(command)
	hdr.Status = status
	hdr.Flags = SMB2_FLAGS_SERVER_TO_REDIR
	return hdr
}

func TestMountUmount(t *testing.T) {
	c, server := fakeConn(t)
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandTreeConnect:
			hdr := resHeader(cmd, StatusOk)
			hdr.TreeID = 42
			return TreeConnectRes{Header: hdr, StructureSize: 16}
		case CommandTreeDisconnect:
			return TreeDisconnectRes{Header: resHeader(cmd, StatusOk), StructureSize: 4}
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	share, err := c.Mount("docs")
	if err != nil {
		t.Fatal(err)
	}
	if share.Name() != "docs" || share.treeID != 42 {
		t.Errorf("Unexpected share state %q tree %d", share.Name(), share.treeID)
	}

	if err := share.Umount(); err != nil {
		t.Fatal(err)
	}
	if _, err := share.Exists("x"); err != ErrClosed {
		t.Errorf("Operations on an unmounted share should fail with ErrClosed, got %v", err)
	}
}

func TestMountRejected(t *testing.T) {
	c, server := fakeConn(t)
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		return TreeConnectRes{Header: resHeader(cmd, StatusBadNetworkName), StructureSize: 16}
	})

	_, err := c.Mount("nosuch")
	var shareErr *ShareError
	if !errors.As(err, &shareErr) {
		t.Fatalf("Expected a ShareError, got %v", err)
	}
	if shareErr.Status != StatusBadNetworkName {
		t.Errorf("Wrong status 0x%08x", shareErr.Status)
	}
}

func createRes(status uint32, fileSize uint64) CreateRes {
	return CreateRes{
		Header:        resHeader(CommandCreate, status),
		StructureSize: 89,
		EndOfFile:     fileSize,
		FileId:        bytes.Repeat([]byte{0xee}, 16),
	}
}

func closeRes() CloseRes {
	return CloseRes{Header: resHeader(CommandClose, StatusOk), StructureSize: 60}
}

func TestExists(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	found := true
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			if found {
				return createRes(StatusOk, 0)
			}
			return createRes(StatusObjectNameNotFound, 0)
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	ok, err := share.Exists("present.txt")
	if err != nil || !ok {
		t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
	}

	found = false
	ok, err = share.Exists("absent.txt")
	if err != nil || ok {
		t.Fatalf("Expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestRemoveFile(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	var infoClass byte
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			return createRes(StatusOk, 0)
		case CommandSetInfo:
			// FileInfoClass sits right after InfoType in the request body.
			infoClass = req[67]
			return SetInfoRes{Header: resHeader(cmd, StatusOk), StructureSize: 2}
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	if err := share.RemoveFile("old.txt"); err != nil {
		t.Fatal(err)
	}
	if infoClass != FileDispositionInformation {
		t.Errorf("Wrong info class %d", infoClass)
	}
}

func TestRetrieveFile(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	content := []byte("streamed file contents")
	reads := 0
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			return createRes(StatusOk, uint64(len(content)))
		case CommandRead:
			reads++
			if reads == 1 {
				res := ReadRes{Header: resHeader(cmd, StatusOk), StructureSize: 17, Buffer: content}
				return res
			}
			return ReadRes{Header: resHeader(cmd, StatusEndOfFile), StructureSize: 17}
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	var out bytes.Buffer
	if err := share.RetrieveFile("file.txt", &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Errorf("Downloaded %q", out.Bytes())
	}
	if reads != 2 {
		t.Errorf("Expected 2 reads, got %d", reads)
	}
}

func TestOpenReaderNotFound(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	serve(t, server, func(cmd uint16, req []byte) interface{} {
		return createRes(StatusObjectNameNotFound, 0)
	})

	_, err := share.OpenReader("absent.txt")
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Expected an OperationError, got %v", err)
	}
	if opErr.Status != StatusObjectNameNotFound {
		t.Errorf("Wrong status 0x%08x", opErr.Status)
	}
}

func TestPutFile(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	content := []byte("uploaded bytes")
	var written []byte
	var disposition uint32
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			disposition = binary.LittleEndian.Uint32(req[100:104])
			return createRes(StatusOk, 0)
		case CommandWrite:
			// Data starts at the announced offset from the packet start.
			off := binary.LittleEndian.Uint16(req[66:68])
			written = append(written, req[off:]...)
			return WriteRes{
				Header:        resHeader(cmd, StatusOk),
				StructureSize: 17,
				Count:         uint32(len(req[off:])),
			}
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	if err := share.PutFile("new.txt", bytes.NewReader(content), false); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(written, content) {
		t.Errorf("Server saw %q", written)
	}
	if disposition != FileCreate {
		t.Errorf("overwrite=false should use FILE_CREATE, got %d", disposition)
	}
}

func TestPutFileExisting(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	serve(t, server, func(cmd uint16, req []byte) interface{} {
		return createRes(StatusObjectNameCollision, 0)
	})

	err := share.PutFile("taken.txt", bytes.NewReader([]byte("x")), false)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Expected an OperationError, got %v", err)
	}
	if opErr.Status != StatusObjectNameCollision {
		t.Errorf("Wrong status 0x%08x", opErr.Status)
	}
}

func TestRetrieveEmptyFile(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			return createRes(StatusOk, 0)
		case CommandRead:
			return ReadRes{Header: resHeader(cmd, StatusEndOfFile), StructureSize: 17}
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	var out bytes.Buffer
	if err := share.RetrieveFile("empty.txt", &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no content, got %q", out.Bytes())
	}
}

func TestRemoveDirectoryNotEmpty(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			return createRes(StatusOk, 0)
		case CommandSetInfo:
			return SetInfoRes{Header: resHeader(cmd, StatusDirectoryNotEmpty), StructureSize: 2}
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	err := share.RemoveDirectory("full")
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Expected OperationError, got %v", err)
	}
	if opErr.Status != StatusDirectoryNotEmpty {
		t.Errorf("Wrong status 0x%08x", opErr.Status)
	}
}

// createName extracts the file name a CREATE request targets.
func createName(t *testing.T, req []byte) string {
	t.Helper()
	off := binary.LittleEndian.Uint16(req[108:110])
	length := binary.LittleEndian.Uint16(req[110:112])
	name, err := encoder.FromUnicodeString(req[off : off+length])
	if err != nil {
		t.Errorf("Bad create name: %v", err)
	}
	return name
}

func TestRenameAccessMask(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	var access uint32
	var target string
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			access = binary.LittleEndian.Uint32(req[88:92])
			return createRes(StatusOk, 0)
		case CommandSetInfo:
			// Destination name starts 20 bytes into the rename info buffer.
			bufOff := binary.LittleEndian.Uint16(req[72:74])
			bufLen := binary.LittleEndian.Uint32(req[68:72])
			nameLen := binary.LittleEndian.Uint32(req[uint32(bufOff)+16 : uint32(bufOff)+20])
			if uint32(bufOff)+20+nameLen > uint32(bufOff)+bufLen {
				t.Error("Rename name extends past the info buffer")
			}
			target, _ = encoder.FromUnicodeString(req[uint32(bufOff)+20 : uint32(bufOff)+20+nameLen])
			return SetInfoRes{Header: resHeader(cmd, StatusOk), StructureSize: 2}
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	if err := share.Rename("old.txt", "sub/new.txt"); err != nil {
		t.Fatal(err)
	}
	want := FAccMaskDelete | FAccMaskFileReadAttributes | FAccMaskFileWriteAttributes | FAccMaskReadControl
	if access != want {
		t.Errorf("Rename opened with access 0x%08x, want 0x%08x", access, want)
	}
	if target != "sub\\new.txt" {
		t.Errorf("Renamed to %q", target)
	}
}

func TestRenameExistsFlip(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	var mu sync.Mutex
	renamed := false
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandCreate:
			name := createName(t, req)
			mu.Lock()
			r := renamed
			mu.Unlock()
			present := (name == "old.txt" && !r) || (name == "new.txt" && r)
			if !present {
				return createRes(StatusObjectNameNotFound, 0)
			}
			return createRes(StatusOk, 0)
		case CommandSetInfo:
			mu.Lock()
			renamed = true
			mu.Unlock()
			return SetInfoRes{Header: resHeader(cmd, StatusOk), StructureSize: 2}
		case CommandClose:
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	if ok, _ := share.Exists("old.txt"); !ok {
		t.Fatal("Source should exist before the rename")
	}
	if ok, _ := share.Exists("new.txt"); ok {
		t.Fatal("Destination should not exist before the rename")
	}
	if err := share.Rename("old.txt", "new.txt"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := share.Exists("old.txt"); ok {
		t.Error("Source still exists after the rename")
	}
	if ok, _ := share.Exists("new.txt"); !ok {
		t.Error("Destination missing after the rename")
	}
}

func TestWatchLifecycle(t *testing.T) {
	c, server := fakeConn(t)
	share := &Share{conn: c, name: "docs", treeID: 42}

	var mu sync.Mutex
	notifies := 0
	closeSeen := false
	rearmed := make(chan struct{})
	serve(t, server, func(cmd uint16, req []byte) interface{} {
		switch cmd {
		case CommandChangeNotify:
			mu.Lock()
			notifies++
			n := notifies
			mu.Unlock()
			if n == 1 {
				return ChangeNotifyRes{
					Header:        resHeader(cmd, StatusOk),
					StructureSize: 9,
					Buffer:        buildNotifyEntry(0, FileActionAdded, "a.txt"),
				}
			}
			// Leave the re-armed request pending, as a quiet directory would.
			close(rearmed)
			return noResponse{}
		case CommandCreate:
			return createRes(StatusOk, 0)
		case CommandClose:
			mu.Lock()
			closeSeen = true
			mu.Unlock()
			return closeRes()
		}
		t.Errorf("unexpected command %d", cmd)
		return nil
	})

	w, err := share.Watch("dir", true, FileNotifyChangeFileName)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.Action != FileActionAdded || ev.Name != "a.txt" {
			t.Errorf("Unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("No event delivered")
	}

	select {
	case <-rearmed:
	case <-time.After(time.Second):
		t.Fatal("Watch did not re-arm after delivering events")
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	sawClose := closeSeen
	mu.Unlock()
	if !sawClose {
		t.Error("Close did not release the directory handle")
	}

	select {
	case ev, ok := <-w.Events():
		if ok {
			t.Fatalf("Event %+v delivered after Close", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}

	// The pending request fails when the transport goes away; a closed
	// watcher reports that as a clean stop.
	server.Close()
	select {
	case _, ok := <-w.Events():
		if ok {
			t.Fatal("Expected the event channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("Event channel never closed")
	}
	if err := w.Err(); err != nil {
		t.Errorf("Closed watcher reported %v", err)
	}
}
