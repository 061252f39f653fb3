package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/metrics"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/rpc"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/transport"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It is
// populated in main.go after every component is constructed and passed to
// NewRouter as a single struct to keep the constructor signature manageable
// as the number of dependencies grows.
type RouterConfig struct {
	Registry *registry.Registry
	Events   *eventlog.Log
	RPCs     *rpc.Registry
	Sessions *auth.SessionStore
	Tokens   *auth.TokenManager
	Logger   *zap.Logger

	// AgentWSPath is where edge agents dial in, e.g. "/ws/agent".
	AgentWSPath string
}

// NewRouter builds the fully configured Chi router: the agent-facing
// WebSocket endpoint, the JSON API under /api, and the operator-facing HTML
// pages at the root.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	// --- Initialize handlers ---
	agentHandler := NewAgentHandler(cfg.Registry, cfg.RPCs, cfg.Logger)
	ztpHandler := NewZTPHandler(cfg.Registry, cfg.Events)
	pageHandler := NewPageHandler(cfg.Registry, cfg.Sessions)
	wsHandler := transport.New(cfg.Registry, cfg.Events, cfg.RPCs, cfg.Tokens, cfg.Logger)
	collector := metrics.New(cfg.Registry, cfg.Events)

	// --- Metrics ---
	metricsHandler := promhttp.Handler()
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		collector.Sample()
		metricsHandler.ServeHTTP(w, r)
	})

	// --- Agent-facing transport ---
	// Bearer-token gated inside wsHandler itself (X-Agent-Token header), so
	// no auth middleware is layered on top here.
	r.Handle(cfg.AgentWSPath, wsHandler)

	// --- JSON API ---
	r.Route("/api", func(r chi.Router) {
		// Fleet-wide aggregates are ungated — the password gate in spec §4.8
		// is scoped to the per-agent view, not the fleet summary.
		r.Get("/edge-agents", agentHandler.List)
		r.Get("/ztp/status", ztpHandler.Status)
		r.Get("/ztp/inventory", ztpHandler.Inventory)
		r.Get("/ztp/events", ztpHandler.Events)

		// Per-agent routes require the session cookie issued by the
		// password form at GET /{agent_id}.
		r.Group(func(r chi.Router) {
			r.Use(RequireAgentSession(cfg.Sessions))

			r.Get("/edge-agents/{agent_id}", agentHandler.Get)
			r.Post("/edge-agents/{agent_id}/command", agentHandler.Command)
			r.Post("/edge-agents/{agent_id}/config", agentHandler.Config)
			r.Post("/edge-agents/{agent_id}/control", agentHandler.Control)
		})
	})

	// --- Operator-facing HTML pages ---
	r.Get("/", pageHandler.List)
	r.Get("/{agent_id}", pageHandler.Agent)
	r.Post("/{agent_id}", pageHandler.Agent)

	return r
}
