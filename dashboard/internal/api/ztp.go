package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// ZTPHandler groups the fleet-wide aggregate endpoints: status, event
// history, and merged inventory.
type ZTPHandler struct {
	registry *registry.Registry
	events   *eventlog.Log
}

// NewZTPHandler builds a ZTPHandler.
func NewZTPHandler(reg *registry.Registry, events *eventlog.Log) *ZTPHandler {
	return &ZTPHandler{registry: reg, events: events}
}

// Status handles GET /api/ztp/status.
func (h *ZTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.registry.Status())
}

// Inventory handles GET /api/ztp/inventory.
func (h *ZTPHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	Ok(w, h.registry.MergedInventory())
}

// Events handles GET /api/ztp/events?agent_id=&type=&since=&limit=.
func (h *ZTPHandler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := eventlog.Filter{
		AgentID: q.Get("agent_id"),
		Type:    wire.EventType(q.Get("type")),
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			ErrBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = t
	}

	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			ErrBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	Ok(w, h.events.Query(filter))
}
