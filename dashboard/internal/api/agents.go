package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/rpc"
	"github.com/neuralconfig/ruckus-ztp/shared/ids"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

const defaultCommandTimeout = 60 * time.Second

const maxCommandTimeout = 120 * time.Second

// AgentHandler groups the edge-agent fleet endpoints: fleet summary,
// per-agent detail, and the three actions the dashboard can push to an
// agent (ad-hoc command, config replacement, start/stop).
type AgentHandler struct {
	registry *registry.Registry
	rpcs     *rpc.Registry
	logger   *zap.Logger
}

// NewAgentHandler builds an AgentHandler.
func NewAgentHandler(reg *registry.Registry, rpcs *rpc.Registry, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{registry: reg, rpcs: rpcs, logger: logger.Named("agent_handler")}
}

// List handles GET /api/edge-agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.registry.Summaries())
}

// Get handles GET /api/edge-agents/{agent_id}.
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	detail, ok := h.registry.Detail(agentID)
	if !ok {
		ErrNotFound(w, "no such agent")
		return
	}
	Ok(w, detail)
}

// commandRequest is the body of POST /api/edge-agents/{agent_id}/command.
type commandRequest struct {
	TargetIP  string `json:"target_ip"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Command   string `json:"command"`
	TimeoutMS int64  `json:"timeout"`
}

// Command handles POST /api/edge-agents/{agent_id}/command. The
// username/password fields are carried through to the agent in the call's
// args, where the agent's executor does not read them; execution always uses the credential
// list the engine already has configured for that agent — a per-call
// credential override would undermine the engine's single source of
// truth for what a switch's current password is.
func (h *AgentHandler) Command(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	if _, ok := h.registry.Get(agentID); !ok {
		ErrNotFound(w, "no such agent")
		return
	}

	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetIP == "" || req.Command == "" {
		ErrBadRequest(w, "target_ip and command are required")
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	call := wire.RPCCallPayload{
		RequestID: ids.NewRequestID(),
		TargetIP:  req.TargetIP,
		Op:        wire.RPCOpRunShow,
		Args: map[string]any{
			"command":  req.Command,
			"username": req.Username,
			"password": req.Password,
		},
		TimeoutMS: timeout.Milliseconds(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	res, err := h.rpcs.Call(ctx, agentID, call, func(c wire.RPCCallPayload) error {
		return h.registry.Send(agentID, &wire.Frame{Type: wire.FrameRPCCall, Timestamp: time.Now(), RPCCall: &c})
	})
	if err != nil {
		h.handleRPCDispatchError(w, agentID, err)
		return
	}
	if !res.OK {
		ErrKind(w, wire.ErrorKind(res.ErrorKind), res.Error)
		return
	}
	Ok(w, res)
}

// Config handles POST /api/edge-agents/{agent_id}/config.
func (h *AgentHandler) Config(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")

	var cfg wire.ConfigurePayload
	if !decodeJSON(w, r, &cfg) {
		return
	}

	// Persisted regardless of whether the immediate push below succeeds, so
	// a reconnect shortly after a failed live send still picks up the
	// intended configuration (spec §4.5 register-resend).
	h.registry.SetConfig(agentID, cfg)

	if err := h.registry.Send(agentID, &wire.Frame{Type: wire.FrameConfigure, Timestamp: time.Now(), Configure: &cfg}); err != nil {
		h.handleSendError(w, agentID, err)
		return
	}
	Ok(w, envelope{"accepted": true})
}

// controlRequest is the body of POST /api/edge-agents/{agent_id}/control.
type controlRequest struct {
	Action wire.ControlAction `json:"action"`
}

// Control handles POST /api/edge-agents/{agent_id}/control.
func (h *AgentHandler) Control(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")

	var req controlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action != wire.ControlStart && req.Action != wire.ControlStop {
		ErrBadRequest(w, "action must be start or stop")
		return
	}

	ctrl := wire.ControlPayload{Action: req.Action}
	if err := h.registry.Send(agentID, &wire.Frame{Type: wire.FrameControl, Timestamp: time.Now(), Control: &ctrl}); err != nil {
		h.handleSendError(w, agentID, err)
		return
	}
	Ok(w, envelope{"accepted": true})
}

func (h *AgentHandler) handleSendError(w http.ResponseWriter, agentID string, err error) {
	h.logger.Warn("api: failed to deliver frame to agent", zap.String("agent_id", agentID), zap.Error(err))
	ErrKind(w, wire.KindAgentOffline, err.Error())
}

func (h *AgentHandler) handleRPCDispatchError(w http.ResponseWriter, agentID string, err error) {
	if err == context.DeadlineExceeded {
		ErrKind(w, wire.KindTimeout, "agent did not respond before the command timeout")
		return
	}
	h.handleSendError(w, agentID, err)
}
