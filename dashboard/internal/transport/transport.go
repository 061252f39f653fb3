// Package transport is the dashboard's half of the edge↔dashboard channel
// (C5): it upgrades an agent's incoming WebSocket connection, validates its
// bearer token, performs the register handshake, and runs the read/write
// pumps that route inbound frames into registry/eventlog/rpc and carry
// outbound configure/control/rpc_call frames the other way.
package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/rpc"
	"github.com/neuralconfig/ruckus-ztp/shared/ids"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin validation is the reverse proxy's job in production, same as
	// the teacher's browser-facing upgrader; agents authenticate by bearer
	// token regardless of origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades and services agent WebSocket connections.
type Handler struct {
	registry *registry.Registry
	events   *eventlog.Log
	rpcs     *rpc.Registry
	tokens   *auth.TokenManager
	logger   *zap.Logger
}

// New builds a Handler wired to the dashboard's shared registry, event
// log, and RPC correlation table.
func New(reg *registry.Registry, events *eventlog.Log, rpcs *rpc.Registry, tokens *auth.TokenManager, logger *zap.Logger) *Handler {
	return &Handler{registry: reg, events: events, rpcs: rpcs, tokens: tokens, logger: logger.Named("transport")}
}

// ServeHTTP validates the agent's bearer token, performs the upgrade, and
// blocks running the connection's pumps until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Agent-Token")
	agentID, err := h.tokens.Validate(token)
	if err != nil {
		http.Error(w, "invalid or missing agent token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", zap.Error(err), zap.String("agent_id", agentID))
		return
	}

	sc := &serverConn{conn: conn, send: make(chan *wire.Frame, sendBufferSize), closed: make(chan struct{})}
	h.run(agentID, sc)
}

func (h *Handler) run(expectedAgentID string, sc *serverConn) {
	defer sc.conn.Close()

	sc.conn.SetReadLimit(maxMessageSize)
	sc.conn.SetReadDeadline(time.Now().Add(pongWait))
	sc.conn.SetPongHandler(func(string) error {
		sc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var frame wire.Frame
	if err := sc.conn.ReadJSON(&frame); err != nil || frame.Type != wire.FrameRegister || frame.Register == nil {
		h.logger.Warn("ws: expected register frame first", zap.Error(err), zap.String("agent_id", expectedAgentID))
		return
	}
	if frame.Register.AgentID != expectedAgentID {
		h.logger.Warn("ws: register agent_id does not match bearer token", zap.String("token_agent_id", expectedAgentID), zap.String("register_agent_id", frame.Register.AgentID))
		return
	}

	reg := frame.Register
	h.registry.Register(reg.AgentID, reg.Hostname, reg.Subnet, reg.Version, reg.PasswordHash, sc)
	h.events.Append(wire.Event{EventID: ids.NewEventID(), AgentID: reg.AgentID, Timestamp: time.Now(), Type: wire.EventAgentRegistered})
	h.resendConfig(reg.AgentID, sc)

	defer func() {
		h.registry.Deregister(reg.AgentID, sc)
		h.rpcs.CancelAgent(reg.AgentID)
		h.events.Append(wire.Event{EventID: ids.NewEventID(), AgentID: reg.AgentID, Timestamp: time.Now(), Type: wire.EventAgentDisconnected})
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(sc)
	}()

	h.readPump(reg.AgentID, sc)
	sc.Close()
	<-done
}

// resendConfig re-sends agentID's last pushed configuration, if any, to its
// newly registered connection. configure/control frames sent while an agent
// is disconnected are lost by design (§4.5) — this is what makes a
// reconnect converge back to the intended fleet state instead of sitting
// idle until an operator notices and re-POSTs it by hand.
func (h *Handler) resendConfig(agentID string, conn registry.Conn) {
	cfg, ok := h.registry.Config(agentID)
	if !ok {
		return
	}
	if err := conn.Send(&wire.Frame{Type: wire.FrameConfigure, Timestamp: time.Now(), Configure: &cfg}); err != nil {
		h.logger.Warn("ws: failed to re-send configuration on register", zap.Error(err), zap.String("agent_id", agentID))
	}
}

func (h *Handler) readPump(agentID string, sc *serverConn) {
	for {
		var frame wire.Frame
		if err := sc.conn.ReadJSON(&frame); err != nil {
			return
		}
		h.dispatch(agentID, frame)
	}
}

func (h *Handler) dispatch(agentID string, frame wire.Frame) {
	switch frame.Type {
	case wire.FrameHeartbeat:
		if frame.Heartbeat != nil {
			h.registry.Heartbeat(agentID, frame.Heartbeat.ZTPRunning)
		}
	case wire.FrameEvent:
		if frame.Event != nil {
			if !h.registry.AllowEvent(agentID) {
				h.logger.Warn("transport: agent exceeded event rate limit, dropping", zap.String("agent_id", agentID))
				return
			}
			ev := *frame.Event
			ev.AgentID = agentID
			h.events.Append(ev)
		}
	case wire.FrameInventory:
		if frame.Inventory != nil {
			h.registry.ApplyInventory(agentID, frame.Inventory.Full, frame.Inventory.Devices)
		}
	case wire.FrameRPCResult:
		if frame.RPCResult != nil {
			if !h.rpcs.Resolve(*frame.RPCResult) {
				h.logger.Warn("transport: rpc_result with no matching waiter", zap.String("agent_id", agentID), zap.String("request_id", frame.RPCResult.RequestID))
			}
		}
	default:
		h.logger.Warn("transport: unexpected frame type from agent", zap.String("agent_id", agentID), zap.String("type", string(frame.Type)))
	}
}

func (h *Handler) writePump(sc *serverConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sc.closed:
			_ = sc.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-sc.send:
			sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sc.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serverConn implements registry.Conn, handing frames addressed to one
// agent off to that connection's writePump.
type serverConn struct {
	conn      *websocket.Conn
	send      chan *wire.Frame
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *serverConn) Send(frame *wire.Frame) error {
	select {
	case <-c.closed:
		return fmt.Errorf("transport: connection closed")
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("transport: outbound queue full, dropping frame")
	}
}

func (c *serverConn) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
