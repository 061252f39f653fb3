package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/rpc"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

type fakeConn struct {
	sent  chan *wire.Frame
	fails bool
}

func newFakeConn() *fakeConn { return &fakeConn{sent: make(chan *wire.Frame, 4)} }

func (c *fakeConn) Send(f *wire.Frame) error {
	if c.fails {
		return context.DeadlineExceeded
	}
	c.sent <- f
	return nil
}
func (c *fakeConn) Close() {}

func newTestAgentHandler() (*AgentHandler, *registry.Registry, *rpc.Registry) {
	reg := registry.New(zap.NewNop())
	rpcs := rpc.New()
	return NewAgentHandler(reg, rpcs, zap.NewNop()), reg, rpcs
}

func mountAgentRoutes(h *AgentHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/edge-agents", h.List)
	r.Get("/api/edge-agents/{agent_id}", h.Get)
	r.Post("/api/edge-agents/{agent_id}/command", h.Command)
	r.Post("/api/edge-agents/{agent_id}/config", h.Config)
	r.Post("/api/edge-agents/{agent_id}/control", h.Control)
	return r
}

func TestAgentListReturnsEmptyFleet(t *testing.T) {
	h, _, _ := newTestAgentHandler()
	r := mountAgentRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/api/edge-agents", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAgentGetReturns404ForUnknownAgent(t *testing.T) {
	h, _, _ := newTestAgentHandler()
	r := mountAgentRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/api/edge-agents/sw1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAgentCommandReturnsOfflineWhenAgentHasNoConnection(t *testing.T) {
	h, reg, _ := newTestAgentHandler()
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", nil)
	r := mountAgentRoutes(h)

	body, _ := json.Marshal(commandRequest{TargetIP: "10.0.0.5", Command: "show version"})
	req := httptest.NewRequest(http.MethodPost, "/api/edge-agents/sw1/command", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != wire.KindAgentOffline.HTTPStatus() {
		t.Fatalf("status = %d, want %d", w.Code, wire.KindAgentOffline.HTTPStatus())
	}
}

func TestAgentCommandRejectsMissingFields(t *testing.T) {
	h, reg, _ := newTestAgentHandler()
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", newFakeConn())
	r := mountAgentRoutes(h)

	body, _ := json.Marshal(commandRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/edge-agents/sw1/command", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAgentCommandResolvesWithRPCResult(t *testing.T) {
	h, reg, rpcs := newTestAgentHandler()
	conn := newFakeConn()
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", conn)
	r := mountAgentRoutes(h)

	go func() {
		frame := <-conn.sent
		rpcs.Resolve(wire.RPCResultPayload{RequestID: frame.RPCCall.RequestID, OK: true, Output: "version 1.0"})
	}()

	body, _ := json.Marshal(commandRequest{TargetIP: "10.0.0.5", Command: "show version"})
	req := httptest.NewRequest(http.MethodPost, "/api/edge-agents/sw1/command", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestAgentConfigPersistsForLaterResend(t *testing.T) {
	h, reg, _ := newTestAgentHandler()
	conn := newFakeConn()
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", conn)
	r := mountAgentRoutes(h)

	body, _ := json.Marshal(wire.ConfigurePayload{Seeds: []string{"10.0.0.5"}, PreferredPassword: "sp-admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/edge-agents/sw1/config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	stored, ok := reg.Config("sw1")
	if !ok {
		t.Fatal("expected config to be persisted on the registry")
	}
	if len(stored.Seeds) != 1 || stored.Seeds[0] != "10.0.0.5" {
		t.Fatalf("unexpected stored config: %+v", stored)
	}
}

func TestAgentConfigPersistsEvenWhenSendFails(t *testing.T) {
	h, reg, _ := newTestAgentHandler()
	conn := newFakeConn()
	conn.fails = true
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", conn)
	r := mountAgentRoutes(h)

	body, _ := json.Marshal(wire.ConfigurePayload{Seeds: []string{"10.0.0.9"}})
	req := httptest.NewRequest(http.MethodPost, "/api/edge-agents/sw1/config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code == http.StatusOK {
		t.Fatalf("expected the live send to fail, got 200")
	}
	if _, ok := reg.Config("sw1"); !ok {
		t.Fatal("expected config to still be persisted so a later reconnect can pick it up")
	}
}

func TestAgentControlRejectsInvalidAction(t *testing.T) {
	h, reg, _ := newTestAgentHandler()
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", newFakeConn())
	r := mountAgentRoutes(h)

	body, _ := json.Marshal(controlRequest{Action: "pause"})
	req := httptest.NewRequest(http.MethodPost, "/api/edge-agents/sw1/control", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAgentControlAcceptsStart(t *testing.T) {
	h, reg, _ := newTestAgentHandler()
	conn := newFakeConn()
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", conn)
	r := mountAgentRoutes(h)

	body, _ := json.Marshal(controlRequest{Action: wire.ControlStart})
	req := httptest.NewRequest(http.MethodPost, "/api/edge-agents/sw1/control", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	select {
	case f := <-conn.sent:
		if f.Type != wire.FrameControl || f.Control.Action != wire.ControlStart {
			t.Fatalf("unexpected frame sent: %+v", f)
		}
	default:
		t.Fatal("expected a control frame to be sent to the agent")
	}
}
