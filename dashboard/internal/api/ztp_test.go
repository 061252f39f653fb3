package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

func newTestZTPHandler() (*ZTPHandler, *registry.Registry, *eventlog.Log) {
	reg := registry.New(zap.NewNop())
	events := eventlog.New(10)
	return NewZTPHandler(reg, events), reg, events
}

func TestZTPStatusAggregatesAcrossAgents(t *testing.T) {
	h, reg, _ := newTestZTPHandler()
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", nil)
	reg.Heartbeat("sw1", true)

	req := httptest.NewRequest(http.MethodGet, "/api/ztp/status", nil)
	w := httptest.NewRecorder()
	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestZTPEventsRejectsBadSince(t *testing.T) {
	h, _, _ := newTestZTPHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/ztp/events?since=not-a-time", nil)
	w := httptest.NewRecorder()
	h.Events(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestZTPEventsRejectsNegativeLimit(t *testing.T) {
	h, _, _ := newTestZTPHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/ztp/events?limit=-1", nil)
	w := httptest.NewRecorder()
	h.Events(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestZTPEventsFiltersAndLimits(t *testing.T) {
	h, _, events := newTestZTPHandler()
	events.Append(wire.Event{AgentID: "sw1", Type: wire.EventDeviceDiscovered, Timestamp: time.Now()})
	events.Append(wire.Event{AgentID: "sw2", Type: wire.EventHeartbeat, Timestamp: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/api/ztp/events?agent_id=sw1&limit=5", nil)
	w := httptest.NewRecorder()
	h.Events(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestZTPInventoryReturnsMergedDevices(t *testing.T) {
	h, _, _ := newTestZTPHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/ztp/inventory", nil)
	w := httptest.NewRecorder()
	h.Inventory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
