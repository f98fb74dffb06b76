package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAuthority struct {
	keys  map[string]string
	err   error
	calls int
}

func (a *fakeAuthority) ConnectionKey(_ context.Context, identity string) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	key, ok := a.keys[identity]
	if !ok {
		return "", errors.New("unknown identity")
	}
	return key, nil
}

func TestResolverCachesAfterFirstHit(t *testing.T) {
	auth := &fakeAuthority{keys: map[string]string{"alice@example.com": "u-1"}}
	r := NewResolver(auth)

	key, ok := r.Resolve(context.Background(), "alice@example.com")
	require.True(t, ok)
	require.Equal(t, "u-1", key)

	key, ok = r.Resolve(context.Background(), "alice@example.com")
	require.True(t, ok)
	require.Equal(t, "u-1", key)
	require.Equal(t, 1, auth.calls, "second resolve must be served from cache")
}

func TestResolverMissIsNotCached(t *testing.T) {
	auth := &fakeAuthority{keys: map[string]string{}}
	r := NewResolver(auth)

	_, ok := r.Resolve(context.Background(), "ghost@example.com")
	require.False(t, ok)

	// A later registration becomes visible: misses are retried.
	auth.keys["ghost@example.com"] = "u-9"
	key, ok := r.Resolve(context.Background(), "ghost@example.com")
	require.True(t, ok)
	require.Equal(t, "u-9", key)
}

func TestResolverAuthorityFailureIsAMiss(t *testing.T) {
	auth := &fakeAuthority{err: errors.New("authority down")}
	r := NewResolver(auth)

	_, ok := r.Resolve(context.Background(), "alice@example.com")
	require.False(t, ok)
}
