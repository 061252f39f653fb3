package transport

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/rpc"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

func newTestHandler() (*Handler, *registry.Registry, *eventlog.Log, *rpc.Registry) {
	reg := registry.New(zap.NewNop())
	events := eventlog.New(10)
	rpcs := rpc.New()
	tokens := auth.NewTokenManager([]byte("test-secret-at-least-32-bytes-ok"), "ztp-dashboard")
	return New(reg, events, rpcs, tokens, zap.NewNop()), reg, events, rpcs
}

func TestDispatchHeartbeatUpdatesRegistry(t *testing.T) {
	h, reg, _, _ := newTestHandler()
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})})

	h.dispatch("agent-1", wire.Frame{Type: wire.FrameHeartbeat, Heartbeat: &wire.HeartbeatPayload{ZTPRunning: true}})

	got, _ := reg.Get("agent-1")
	if !got.Running {
		t.Fatal("expected heartbeat to mark engine as running")
	}
}

func TestDispatchEventAppendsToLogAndTagsAgent(t *testing.T) {
	h, reg, events, _ := newTestHandler()
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})})

	h.dispatch("agent-1", wire.Frame{Type: wire.FrameEvent, Event: &wire.Event{Type: wire.EventDeviceDiscovered}})

	got := events.Query(eventlog.Filter{AgentID: "agent-1"})
	if len(got) != 1 || got[0].Type != wire.EventDeviceDiscovered {
		t.Fatalf("expected discovered event recorded for agent-1, got %+v", got)
	}
}

func TestDispatchEventDropsOverRateLimit(t *testing.T) {
	h, reg, events, _ := newTestHandler()
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})})

	for i := 0; i < 40; i++ {
		h.dispatch("agent-1", wire.Frame{Type: wire.FrameEvent, Event: &wire.Event{Type: wire.EventDeviceUpdated}})
	}

	got := events.Query(eventlog.Filter{AgentID: "agent-1"})
	if len(got) != 30 {
		t.Fatalf("expected rate limit to cap recorded events at 30, got %d", len(got))
	}
}

func TestDispatchInventoryUpdatesShadow(t *testing.T) {
	h, reg, _, _ := newTestHandler()
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})})

	h.dispatch("agent-1", wire.Frame{Type: wire.FrameInventory, Inventory: &wire.InventoryPayload{
		Full:    true,
		Devices: []wire.Device{{IP: "10.0.0.5", DeviceType: wire.DeviceTypeSwitch}},
	}})

	got, _ := reg.Get("agent-1")
	if len(got.Inventory) != 1 {
		t.Fatalf("expected 1 device in shadow inventory, got %d", len(got.Inventory))
	}
}

func TestDispatchRPCResultResolvesWaiter(t *testing.T) {
	h, reg, _, rpcs := newTestHandler()
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})})

	resultCh := make(chan wire.RPCResultPayload, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		res, err := rpcs.Call(ctx, "agent-1", wire.RPCCallPayload{RequestID: "req-1", Op: wire.RPCOpRunShow}, func(wire.RPCCallPayload) error { return nil })
		if err == nil {
			resultCh <- res
		}
	}()

	time.Sleep(10 * time.Millisecond)
	h.dispatch("agent-1", wire.Frame{Type: wire.FrameRPCResult, RPCResult: &wire.RPCResultPayload{RequestID: "req-1", OK: true, Output: "done"}})

	select {
	case res := <-resultCh:
		if res.Output != "done" {
			t.Fatalf("unexpected output: %s", res.Output)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rpc result to resolve")
	}
}

func TestResendConfigSendsStoredConfigOnRegister(t *testing.T) {
	h, reg, _, _ := newTestHandler()
	conn1 := &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})}
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", conn1)
	reg.SetConfig("agent-1", wire.ConfigurePayload{Seeds: []string{"10.0.0.5"}})

	reg.Deregister("agent-1", conn1)

	conn2 := &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})}
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", conn2)
	h.resendConfig("agent-1", conn2)

	select {
	case frame := <-conn2.send:
		if frame.Type != wire.FrameConfigure || frame.Configure == nil || len(frame.Configure.Seeds) != 1 || frame.Configure.Seeds[0] != "10.0.0.5" {
			t.Fatalf("unexpected re-sent frame: %+v", frame)
		}
	default:
		t.Fatal("expected a configure frame queued for the reconnecting agent")
	}
}

func TestResendConfigIsNoopWithoutStoredConfig(t *testing.T) {
	h, reg, _, _ := newTestHandler()
	conn := &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})}
	reg.Register("agent-1", "host-1", "10.0.0.0/24", "1.0", "hash", conn)

	h.resendConfig("agent-1", conn)

	select {
	case frame := <-conn.send:
		t.Fatalf("expected no frame queued, got %+v", frame)
	default:
	}
}

func TestServerConnSendFailsAfterClose(t *testing.T) {
	sc := &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})}
	sc.Close()
	if err := sc.Send(&wire.Frame{Type: wire.FramePing}); err == nil {
		t.Fatal("expected Send to fail on a closed connection")
	}
}

func TestServerConnSendFailsWhenQueueFull(t *testing.T) {
	sc := &serverConn{send: make(chan *wire.Frame, 1), closed: make(chan struct{})}
	if err := sc.Send(&wire.Frame{Type: wire.FramePing}); err != nil {
		t.Fatalf("expected first send to succeed: %v", err)
	}
	if err := sc.Send(&wire.Frame{Type: wire.FramePing}); err == nil {
		t.Fatal("expected second send to fail once the buffer is full")
	}
}
