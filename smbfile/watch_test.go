package smbfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordfjell/smbclient/smb2"
)

func TestCompletionFilter(t *testing.T) {
	cases := []struct {
		kind EventKind
		want uint32
	}{
		{FileCreated, smb2.FileNotifyChangeFileName},
		{FileDeleted, smb2.FileNotifyChangeFileName},
		{FileUpdated, smb2.FileNotifyChangeLastWrite | smb2.FileNotifyChangeSize},
		{FolderCreated, smb2.FileNotifyChangeDirName},
		{FolderDeleted, smb2.FileNotifyChangeDirName},
		{FolderUpdated, smb2.FileNotifyChangeAttributes | smb2.FileNotifyChangeLastWrite},
	}
	for _, tc := range cases {
		got, err := completionFilter(tc.kind)
		require.NoError(t, err, "kind %s", tc.kind)
		assert.Equal(t, tc.want, got, "kind %s", tc.kind)
	}

	_, err := completionFilter(EventKind("bogus"))
	assert.Error(t, err)
}

func TestMapAction(t *testing.T) {
	cases := []struct {
		filter EventKind
		action uint32
		want   EventKind
	}{
		{FileCreated, smb2.FileActionAdded, FileCreated},
		{FileCreated, smb2.FileActionRenamedNewName, FileCreated},
		{FileDeleted, smb2.FileActionRemoved, FileDeleted},
		{FileDeleted, smb2.FileActionRenamedOldName, FileDeleted},
		{FileUpdated, smb2.FileActionModified, FileUpdated},
		{FolderCreated, smb2.FileActionAdded, FolderCreated},
		{FolderDeleted, smb2.FileActionRemoved, FolderDeleted},
		{FolderUpdated, smb2.FileActionModified, FolderUpdated},
	}
	for _, tc := range cases {
		got, ok := mapAction(tc.filter, tc.action)
		require.True(t, ok, "filter %s action %d", tc.filter, tc.action)
		assert.Equal(t, tc.want, got)
	}

	// Unknown actions are dropped.
	_, ok := mapAction(FileCreated, 999)
	assert.False(t, ok)
}

// A deletion observed under a create filter maps to a different kind and is
// therefore dropped by the subscription loop.
func TestMapActionCrossClass(t *testing.T) {
	got, ok := mapAction(FileCreated, smb2.FileActionRemoved)
	require.True(t, ok)
	assert.NotEqual(t, FileCreated, got)
}

type fakeWatcher struct {
	ch     chan smb2.ChangeEvent
	closed bool
	err    error
}

func (f *fakeWatcher) Events() <-chan smb2.ChangeEvent { return f.ch }

func (f *fakeWatcher) Err() error { return f.err }
func (f *fakeWatcher) Close() error {
	f.closed = true
	return nil
}

func TestSubscriptionDelivery(t *testing.T) {
	fake := &fakeWatcher{ch: make(chan smb2.ChangeEvent)}
	got := make(chan Event, 8)
	sub := &subscription{watcher: fake, callback: func(e Event) { got <- e }}
	done := make(chan struct{})
	go func() {
		sub.loop(FileCreated, "dir")
		close(done)
	}()

	// A matching change triggers exactly one callback.
	fake.ch <- smb2.ChangeEvent{Action: smb2.FileActionAdded, Name: "a.txt"}
	ev := <-got
	assert.Equal(t, Event{Kind: FileCreated, Name: "a.txt"}, ev)

	// A non-matching change for the same name is dropped.
	fake.ch <- smb2.ChangeEvent{Action: smb2.FileActionModified, Name: "a.txt"}

	// After cancel, even matching changes stop reaching the callback and
	// the remote handle is released.
	require.NoError(t, sub.cancel())
	assert.True(t, fake.closed)
	fake.ch <- smb2.ChangeEvent{Action: smb2.FileActionAdded, Name: "b.txt"}

	close(fake.ch)
	<-done
	assert.Empty(t, got)
}
