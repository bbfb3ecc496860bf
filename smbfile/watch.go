package smbfile

import (
	"fmt"
	"sync"

	"github.com/nordfjell/smbclient/smb2"
)

// EventKind is the change category a subscription filters on. A watched
// change is delivered only when its mapped kind equals the subscription's
// filter; everything else is dropped and the watch re-arms.
type EventKind string

const (
	FileCreated   EventKind = "fileCreated"
	FileDeleted   EventKind = "fileDeleted"
	FileUpdated   EventKind = "fileUpdated"
	FolderCreated EventKind = "folderCreated"
	FolderDeleted EventKind = "folderDeleted"
	FolderUpdated EventKind = "folderUpdated"
)

// Event is one delivered change.
type Event struct {
	Kind EventKind
	Name string // Path relative to the watched directory
}

// CancelFunc stops a subscription: it closes the remote directory handle and
// guarantees no callback runs after it returns. Safe to call once; further
// calls are no-ops.
type CancelFunc func() error

// Watch subscribes to changes under path. The callback runs on the
// subscription's own goroutine, serialized with cancellation.
func (c *Client) Watch(path string, recursive bool, filter EventKind, callback func(Event)) (CancelFunc, error) {
	cf, err := completionFilter(filter)
	if err != nil {
		return nil, err
	}
	w, err := c.share.Watch(path, recursive, cf)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	sub := &subscription{watcher: w, callback: callback}
	go sub.loop(filter, path)
	return sub.cancel, nil
}

// changeWatcher is the part of smb2.Watcher a subscription drives.
type changeWatcher interface {
	Events() <-chan smb2.ChangeEvent
	Err() error
	Close() error
}

type subscription struct {
	watcher  changeWatcher
	callback func(Event)

	mu        sync.Mutex
	cancelled bool
}

func (s *subscription) loop(filter EventKind, path string) {
	for ev := range s.watcher.Events() {
		kind, ok := mapAction(filter, ev.Action)
		if !ok || kind != filter {
			continue
		}
		s.mu.Lock()
		if !s.cancelled {
			s.callback(Event{Kind: kind, Name: ev.Name})
		}
		s.mu.Unlock()
	}
	if err := s.watcher.Err(); err != nil {
		log.Errorf("Watch on %s failed: %v", path, err)
	}
}

func (s *subscription) cancel() error {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	return s.watcher.Close()
}

// completionFilter picks the server-side completion filter for the event
// class being watched. The server does not say whether a changed name is a
// file or a directory, so the class is fixed by the filter bits instead:
// file kinds watch file-name/content bits, folder kinds directory-name and
// attribute bits.
func completionFilter(filter EventKind) (uint32, error) {
	switch filter {
	case FileCreated, FileDeleted:
		return smb2.FileNotifyChangeFileName, nil
	case FileUpdated:
		return smb2.FileNotifyChangeLastWrite | smb2.FileNotifyChangeSize, nil
	case FolderCreated, FolderDeleted:
		return smb2.FileNotifyChangeDirName, nil
	case FolderUpdated:
		return smb2.FileNotifyChangeAttributes | smb2.FileNotifyChangeLastWrite, nil
	}
	return 0, fmt.Errorf("unknown event filter %q", filter)
}

// mapAction converts a wire action into the event kind of the filter's
// class. Renames surface as a delete of the old name and a create of the
// new one.
func mapAction(filter EventKind, action uint32) (EventKind, bool) {
	folder := false
	switch filter {
	case FolderCreated, FolderDeleted, FolderUpdated:
		folder = true
	}

	switch action {
	case smb2.FileActionAdded, smb2.FileActionRenamedNewName:
		if folder {
			return FolderCreated, true
		}
		return FileCreated, true
	case smb2.FileActionRemoved, smb2.FileActionRenamedOldName:
		if folder {
			return FolderDeleted, true
		}
		return FileDeleted, true
	case smb2.FileActionModified:
		if folder {
			return FolderUpdated, true
		}
		return FileUpdated, true
	}
	return "", false
}
