// MIT License
//
// Copyright (c) 2023 Jimmy Fjällid
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
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

// notifyBufferSize is the output buffer offered to the server per
// CHANGE_NOTIFY request.
const notifyBufferSize = 65536

// ChangeEvent is one change reported by the server for a watched directory.
// Name is the path relative to the watched directory, slash separated.
type ChangeEvent struct {
	Action uint32
	Name   string
}

// Watcher delivers directory change notifications. The server permits one
// outstanding CHANGE_NOTIFY per handle, so the watcher re-arms after every
// response. Events arriving between responses are queued server-side.
type Watcher struct {
	share     *Share
	fileID    []byte
	path      string
	recursive bool
	filter    uint32

	events    chan ChangeEvent
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once

	errLock sync.Mutex
	err     error
}

// Watch opens a directory for change notification. filter is a mask of
// FileNotifyChange* bits; recursive extends the watch to the whole subtree.
// The returned watcher delivers events until Close is called or the
// connection fails.
func (s *Share) Watch(path string, recursive bool, filter uint32) (*Watcher, error) {
	res, err := s.open("watch", path,
		DAccMaskFileListDirectory|DAccMaskFileReadAttributes,
		FileAttrDirectory,
		FileShareRead|FileShareWrite|FileShareDelete,
		FileOpen,
		FileDirectoryFile)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		share:     s,
		fileID:    res.FileId,
		path:      path,
		recursive: recursive,
		filter:    filter,
		events:    make(chan ChangeEvent, 64),
		done:      make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Events returns the channel change events arrive on. It is closed when the
// watcher stops; check Err afterwards to distinguish Close from failure.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Err reports why the watcher stopped. It returns nil after a clean Close.
// Only call it once the events channel is closed.
func (w *Watcher) Err() error {
	w.errLock.Lock()
	defer w.errLock.Unlock()
	return w.err
}

// Close cancels the watch by closing the directory handle, which completes
// the outstanding request with StatusNotifyCleanup. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.closing.Store(true)
		close(w.done)
		err = w.share.closeFile(w.fileID)
	})
	return err
}

func (w *Watcher) fail(err error) {
	if w.closing.Load() {
		return
	}
	w.errLock.Lock()
	w.err = err
	w.errLock.Unlock()
}

func (w *Watcher) run() {
	defer close(w.events)
	for {
		rr, err := w.share.conn.send(w.share.newChangeNotifyReq(w.fileID, w.recursive, w.filter, notifyBufferSize))
		if err != nil {
			w.fail(err)
			return
		}

		// Notifications can be arbitrarily far apart; wait without a
		// deadline until the server completes the request.
		buf, err := w.share.conn.recv(rr, 0)
		if err != nil {
			w.fail(err)
			return
		}

		var res ChangeNotifyRes
		if err := encoder.Unmarshal(buf, &res); err != nil {
			log.Errorln(err)
			w.fail(&ProtocolError{Msg: "failed to decode change notify response", Err: err})
			return
		}

		switch res.Status {
		case StatusOk:
			events, err := parseNotifyBuffer(res.Buffer)
			if err != nil {
				w.fail(err)
				return
			}
			for _, ev := range events {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}
		case StatusNotifyEnumDir:
			// Too many changes accumulated for the buffer. The watch is
			// still armed on re-issue, but the individual events are lost.
			log.Noticef("Change notify overflow on %s, events were dropped", w.path)
		case StatusNotifyCleanup, StatusCancelled, StatusUserSessionDeleted:
			// The handle went away, normally because of Close.
			return
		default:
			w.fail(operationError("watch", w.path, res.Status))
			return
		}
	}
}

// parseNotifyBuffer walks a FILE_NOTIFY_INFORMATION chain. MS-FSCC 2.7.1.
func parseNotifyBuffer(buf []byte) ([]ChangeEvent, error) {
	var events []ChangeEvent
	if len(buf) == 0 {
		return nil, nil
	}
	for offset := uint32(0); ; {
		var info FileNotifyInformationEntry
		if err := encoder.Unmarshal(buf[offset:], &info); err != nil {
			log.Errorln(err)
			return nil, &ProtocolError{Msg: "failed to decode change notify entry", Err: err}
		}
		name, err := encoder.FromUnicodeString(info.FileName)
		if err != nil {
			return nil, &ProtocolError{Msg: "change notify name is not valid UTF-16", Err: err}
		}
		events = append(events, ChangeEvent{
			Action: info.Action,
			Name:   strings.ReplaceAll(name, "\\", "/"),
		})
		if info.NextEntryOffset == 0 {
			break
		}
		offset += info.NextEntryOffset
		if offset >= uint32(len(buf)) {
			return nil, &ProtocolError{Msg: "change notify chain extends past end of buffer"}
		}
	}
	return events, nil
}
