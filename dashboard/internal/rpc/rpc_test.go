package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

func TestCallResolvesWithMatchingResult(t *testing.T) {
	r := New()
	call := wire.RPCCallPayload{RequestID: "req-1", TargetIP: "10.0.0.5", Op: wire.RPCOpRunShow}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if !r.Resolve(wire.RPCResultPayload{RequestID: "req-1", OK: true, Output: "up"}) {
			t.Error("expected Resolve to find the waiter")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := r.Call(ctx, "agent-1", call, func(wire.RPCCallPayload) error { return nil })
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.OK || res.Output != "up" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCallTimesOutWithoutResult(t *testing.T) {
	r := New()
	call := wire.RPCCallPayload{RequestID: "req-1", TargetIP: "10.0.0.5", Op: wire.RPCOpRunShow}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Call(ctx, "agent-1", call, func(wire.RPCCallPayload) error { return nil })
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestResolveReturnsFalseForUnknownRequest(t *testing.T) {
	r := New()
	if r.Resolve(wire.RPCResultPayload{RequestID: "never-registered"}) {
		t.Fatal("expected Resolve to report no waiter found")
	}
}

func TestCancelAgentUnblocksInFlightCalls(t *testing.T) {
	r := New()
	call := wire.RPCCallPayload{RequestID: "req-1", TargetIP: "10.0.0.5", Op: wire.RPCOpRunShow}

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.CancelAgent("agent-1")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := r.Call(ctx, "agent-1", call, func(wire.RPCCallPayload) error { return nil })
	if err == nil {
		t.Fatal("expected an error when the agent disconnects mid-call")
	}
}

func TestCallPropagatesSendError(t *testing.T) {
	r := New()
	call := wire.RPCCallPayload{RequestID: "req-1", TargetIP: "10.0.0.5", Op: wire.RPCOpRunShow}

	_, err := r.Call(context.Background(), "agent-1", call, func(wire.RPCCallPayload) error {
		return context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("expected send error to propagate")
	}
}
