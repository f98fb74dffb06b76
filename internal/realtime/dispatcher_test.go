package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifyUnknownIdentityIsSilent(t *testing.T) {
	reg := NewRegistry(8)
	d := NewDispatcher(reg, NewResolver(&fakeAuthority{keys: map[string]string{}}))

	// Must complete without error and without observable delivery.
	d.Notify(context.Background(), "ghost@example.com", Event{Type: EventMessageReceived})
}

func TestNotifyOfflineTargetIsSilent(t *testing.T) {
	reg := NewRegistry(8)
	auth := &fakeAuthority{keys: map[string]string{"bob@example.com": "u-2"}}
	d := NewDispatcher(reg, NewResolver(auth))

	d.Notify(context.Background(), "bob@example.com", Event{Type: EventFriendRequestReceived})
}

func TestNotifyDeliversToConnectedTarget(t *testing.T) {
	reg := NewRegistry(8)
	auth := &fakeAuthority{keys: map[string]string{"bob@example.com": "u-2"}}
	d := NewDispatcher(reg, NewResolver(auth))

	conn := reg.Connect("u-2")
	ev := Event{Type: EventFriendRequestReceived, Data: map[string]any{"message": "hi"}}
	d.Notify(context.Background(), "bob@example.com", ev)

	got := <-conn.Events()
	require.Equal(t, ev, got)
	require.Len(t, conn.ch, 0, "exactly one delivery")
}

func TestNotifyAfterReconnectHitsNewestConn(t *testing.T) {
	reg := NewRegistry(8)
	auth := &fakeAuthority{keys: map[string]string{"bob@example.com": "u-2"}}
	d := NewDispatcher(reg, NewResolver(auth))

	first := reg.Connect("u-2")
	second := reg.Connect("u-2")

	d.Notify(context.Background(), "bob@example.com", Event{Type: EventMessageReceived})

	require.Len(t, first.ch, 0)
	require.Len(t, second.ch, 1)
}

func TestNotifyStaleCacheEntryIsSilent(t *testing.T) {
	reg := NewRegistry(8)
	auth := &fakeAuthority{keys: map[string]string{"bob@example.com": "u-2"}}
	res := NewResolver(auth)
	d := NewDispatcher(reg, res)

	// Prime the cache, then simulate the identity going away upstream. The
	// stale key just fails the registry lookup.
	_, ok := res.Resolve(context.Background(), "bob@example.com")
	require.True(t, ok)
	delete(auth.keys, "bob@example.com")

	d.Notify(context.Background(), "bob@example.com", Event{Type: EventMessageReceived})
}
