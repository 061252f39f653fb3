// Package rpc correlates a dashboard-initiated rpc_call frame with the
// rpc_result frame the agent eventually sends back (C9), turning the
// agent protocol's asynchronous frames into a synchronous call for the
// API layer's POST /api/edge-agents/{agent_id}/command handler.
package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

type waiter struct {
	agentID string
	ch      chan wire.RPCResultPayload
}

// Registry tracks in-flight calls keyed by request_id.
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{waiters: make(map[string]*waiter)}
}

// Call registers a waiter for call.RequestID, invokes send to dispatch the
// frame, and blocks until the matching result arrives, ctx is done (the
// caller's timeout, capped at 120s per spec §4.9), or the agent
// disconnects (CancelAgent).
func (r *Registry) Call(ctx context.Context, agentID string, call wire.RPCCallPayload, send func(wire.RPCCallPayload) error) (wire.RPCResultPayload, error) {
	w := &waiter{agentID: agentID, ch: make(chan wire.RPCResultPayload, 1)}

	r.mu.Lock()
	r.waiters[call.RequestID] = w
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.waiters, call.RequestID)
		r.mu.Unlock()
	}()

	if err := send(call); err != nil {
		return wire.RPCResultPayload{}, fmt.Errorf("rpc: dispatching call to agent %s: %w", agentID, err)
	}

	select {
	case <-ctx.Done():
		return wire.RPCResultPayload{}, ctx.Err()
	case res, ok := <-w.ch:
		if !ok {
			return wire.RPCResultPayload{}, fmt.Errorf("rpc: agent %s disconnected before responding", agentID)
		}
		return res, nil
	}
}

// Resolve delivers result to the waiter for its RequestID, if one is still
// registered. Returns false for a late or unknown request id (e.g. the
// caller already timed out), which the transport layer logs and discards.
func (r *Registry) Resolve(result wire.RPCResultPayload) bool {
	r.mu.Lock()
	w, ok := r.waiters[result.RequestID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case w.ch <- result:
	default:
	}
	return true
}

// CancelAgent unblocks every in-flight call addressed to agentID, e.g.
// when its connection drops — a waiter left open on disconnect would
// otherwise only resolve via its own timeout.
func (r *Registry) CancelAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.waiters {
		if w.agentID == agentID {
			close(w.ch)
			delete(r.waiters, id)
		}
	}
}
