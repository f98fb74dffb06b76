package realtime

import (
	"context"
	"sync"
)

// IdentityAuthority maps a stable identity (an email) to the connection key
// used to address a live connection.
type IdentityAuthority interface {
	ConnectionKey(ctx context.Context, identity string) (string, error)
}

// Resolver memoizes identity -> connection key lookups for the process
// lifetime. Entries are never invalidated; a stale key simply fails the
// registry lookup downstream.
type Resolver struct {
	authority IdentityAuthority

	mu    sync.RWMutex
	cache map[string]string
}

func NewResolver(authority IdentityAuthority) *Resolver {
	return &Resolver{authority: authority, cache: map[string]string{}}
}

// Resolve returns the connection key for identity. A miss (unknown identity,
// authority failure) is a normal outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, identity string) (string, bool) {
	r.mu.RLock()
	key, ok := r.cache[identity]
	r.mu.RUnlock()
	if ok {
		return key, true
	}

	key, err := r.authority.ConnectionKey(ctx, identity)
	if err != nil || key == "" {
		return "", false
	}

	r.mu.Lock()
	r.cache[identity] = key
	r.mu.Unlock()
	return key, true
}
