// Package transport is the agent's half of the edge↔dashboard channel
// (C5): an outbound gorilla/websocket client carrying the JSON frame
// protocol defined in shared/wire, with exponential reconnect+jitter and a
// bounded, drop-oldest outbound queue so a slow or down dashboard never
// blocks the ZTP engine's tick flow.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neuralconfig/ruckus-ztp/shared/ids"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	handshakeWait  = 10 * time.Second
)

// Config is the fixed identity and endpoint a Client dials with.
type Config struct {
	URL          string // e.g. wss://dashboard.example.com/ws/agent
	AgentID      string
	Hostname     string
	Subnet       string
	Version      string
	AuthToken    string
	PasswordHash string
}

// Client owns the single persistent WebSocket connection to the dashboard.
// All outbound sends go through Send* methods and are queued; a background
// Run loop owns the actual socket and reconnects on failure.
type Client struct {
	cfg    Config
	logger *zap.Logger
	dialer *websocket.Dialer

	queue *boundedQueue

	Configure chan wire.ConfigurePayload
	Control   chan wire.ControlPayload
	RPCCalls  chan wire.RPCCallPayload

	// OnConnected is invoked after a successful register handshake, so the
	// engine can push a full inventory snapshot on every (re)connect.
	OnConnected func()

	connMu    sync.Mutex
	connected bool
}

// New builds a Client. Call Run to start connecting.
func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:       cfg,
		logger:    logger.Named("transport"),
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeWait},
		queue:     newBoundedQueue(),
		Configure: make(chan wire.ConfigurePayload, 4),
		Control:   make(chan wire.ControlPayload, 4),
		RPCCalls:  make(chan wire.RPCCallPayload, 16),
	}
}

// Connected reports whether the socket is currently up, for heartbeat/UI
// purposes.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SendEvent queues an event frame.
func (c *Client) SendEvent(ev wire.Event) {
	c.queue.Push(&wire.Frame{Type: wire.FrameEvent, Timestamp: time.Now(), Event: &ev})
}

// SendInventory queues a full or incremental inventory frame.
func (c *Client) SendInventory(full bool, devices []wire.Device) {
	c.queue.Push(&wire.Frame{
		Type:      wire.FrameInventory,
		Timestamp: time.Now(),
		Inventory: &wire.InventoryPayload{Full: full, Devices: devices},
	})
}

// SendHeartbeat queues a heartbeat frame.
func (c *Client) SendHeartbeat(hb wire.HeartbeatPayload) {
	c.queue.Push(&wire.Frame{Type: wire.FrameHeartbeat, Timestamp: time.Now(), Heartbeat: &hb})
}

// SendRPCResult queues the agent's reply to a dashboard rpc_call.
func (c *Client) SendRPCResult(res wire.RPCResultPayload) {
	c.queue.Push(&wire.Frame{Type: wire.FrameRPCResult, Timestamp: time.Now(), RPCResult: &res})
}

// Run dials and redials the dashboard until ctx is cancelled, running the
// read/write pumps for each successful connection in turn. It never
// returns a reconnectable error to the caller — per spec §5.3, transport
// errors cause reconnect and are never propagated to the engine.
func (c *Client) Run(ctx context.Context) error {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			delay := bo.Next()
			c.logger.Warn("transport: dial failed, retrying", zap.Error(err), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		bo.Reset()
		c.setConnected(true)
		c.logger.Info("transport: connected", zap.String("url", c.cfg.URL))

		if err := c.runConnection(ctx, conn); err != nil && ctx.Err() == nil {
			c.logger.Warn("transport: connection ended, reconnecting", zap.Error(err))
		}
		c.setConnected(false)
		_ = conn.Close()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("X-Agent-Id", c.cfg.AgentID)
	header.Set("X-Agent-Token", c.cfg.AuthToken)

	dialCtx, cancel := context.WithTimeout(ctx, handshakeWait)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, header)
	return conn, err
}

// runConnection sends the register frame, then runs the read and write
// pumps until either fails or ctx is cancelled.
func (c *Client) runConnection(ctx context.Context, conn *websocket.Conn) error {
	regFrame := &wire.Frame{
		Type:      wire.FrameRegister,
		Timestamp: time.Now(),
		Register: &wire.RegisterPayload{
			AgentID:      c.cfg.AgentID,
			Hostname:     c.cfg.Hostname,
			Subnet:       c.cfg.Subnet,
			Version:      c.cfg.Version,
			PasswordHash: c.cfg.PasswordHash,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(regFrame); err != nil {
		return fmt.Errorf("transport: register: %w", err)
	}

	if c.OnConnected != nil {
		c.OnConnected()
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	g, gctx := errgroup.WithContext(connCtx)
	g.Go(func() error { return c.readPump(gctx, conn, cancel) })
	g.Go(func() error { return c.writePump(gctx, conn, cancel) })
	return g.Wait()
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) error {
	defer cancel()
	for {
		var frame wire.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Client) dispatch(ctx context.Context, frame wire.Frame) {
	switch frame.Type {
	case wire.FramePing:
		// Liveness only; pong/read-deadline handling covers the rest.
	case wire.FrameConfigure:
		if frame.Configure != nil {
			select {
			case c.Configure <- *frame.Configure:
			case <-ctx.Done():
			}
		}
	case wire.FrameControl:
		if frame.Control != nil {
			select {
			case c.Control <- *frame.Control:
			case <-ctx.Done():
			}
		}
	case wire.FrameRPCCall:
		if frame.RPCCall != nil {
			select {
			case c.RPCCalls <- *frame.RPCCall:
			case <-ctx.Done():
			}
		}
	default:
		c.logger.Warn("transport: unknown frame type, dropping", zap.String("type", string(frame.Type)))
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) error {
	defer cancel()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}

		case <-c.queue.Wait():
			frames, dropped := c.queue.Drain()
			if dropped > 0 {
				c.logger.Warn("transport: outbound queue overflowed, events dropped", zap.Int("dropped", dropped))
				frames = append(frames, droppedEventsFrame(dropped))
			}
			for _, f := range frames {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(f); err != nil {
					return err
				}
			}
		}
	}
}

func droppedEventsFrame(count int) *wire.Frame {
	payload := wire.ErrorPayload{
		Phase:   "events_dropped",
		Kind:    string(wire.KindTransientError),
		Message: fmt.Sprintf("%d buffered events dropped: outbound queue overflowed", count),
	}
	ev := wire.Event{
		EventID:   ids.NewEventID(),
		Timestamp: time.Now(),
		Type:      wire.EventError,
		Payload:   payload.ToPayload(),
	}
	return &wire.Frame{Type: wire.FrameEvent, Timestamp: time.Now(), Event: &ev}
}
