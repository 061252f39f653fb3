// Package switchlock enforces spec §5's single-ownership rule: a switch IP
// has at most one live CLI session at a time. The ZTP engine blocks to
// acquire a switch before opening a session; on-demand RPCs fail fast with
// Busy instead of queuing, per the spec's default "fail fast" policy.
package switchlock

import (
	"context"
	"sync"
)

// Registry hands out one lock per switch IP, created on first use.
type Registry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]chan struct{})}
}

func (r *Registry) chanFor(ip string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[ip]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[ip] = ch
	}
	return ch
}

// Acquire blocks until ip's lock is free or ctx is cancelled, for the ZTP
// engine's own tick flow — it is the lock's rightful owner and is willing
// to wait its turn behind an in-flight RPC.
func (r *Registry) Acquire(ctx context.Context, ip string) (release func(), err error) {
	ch := r.chanFor(ip)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire attempts to acquire ip's lock without blocking, for on-demand
// RPCs: ok is false if the engine (or another RPC) currently holds it.
func (r *Registry) TryAcquire(ip string) (release func(), ok bool) {
	ch := r.chanFor(ip)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}
