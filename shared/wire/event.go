package wire

import "time"

// EventType enumerates the kinds of events the agent emits. The dashboard's
// event log and GUI never need to interpret Payload structurally beyond
// this tag.
type EventType string

const (
	EventAgentRegistered   EventType = "agent_registered"
	EventAgentDisconnected EventType = "agent_disconnected"
	EventHeartbeat         EventType = "heartbeat"
	EventZTPStarted        EventType = "ztp_started"
	EventZTPStopped        EventType = "ztp_stopped"
	EventDeviceDiscovered  EventType = "device_discovered"
	EventDeviceUpdated     EventType = "device_updated"
	EventDeviceConfigured  EventType = "device_configured"
	EventError             EventType = "error"
)

// Event is the envelope for every ZTP occurrence, whether produced by the
// agent's engine tick or synthesized by the dashboard itself (e.g.
// agent_registered / agent_disconnected). Seq and Tick give per-agent
// monotonic ordering; the dashboard relies on this only for events it has
// actually received, never across agents.
type Event struct {
	EventID   string         `json:"event_id"`
	AgentID   string         `json:"agent_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Tick      uint64         `json:"tick"`
	Seq       uint64         `json:"seq"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ErrorPayload is the conventional shape of an EventError's Payload,
// converted with ToPayload so every emitter agrees on field names.
type ErrorPayload struct {
	IP      string `json:"ip,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToPayload converts an ErrorPayload to the generic map Event.Payload expects.
func (e ErrorPayload) ToPayload() map[string]any {
	return map[string]any{
		"ip":      e.IP,
		"phase":   e.Phase,
		"kind":    e.Kind,
		"message": e.Message,
	}
}
