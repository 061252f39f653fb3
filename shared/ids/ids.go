// Package ids centralizes ID generation for the wire protocol, so every
// emitter (agent engine, agent transport, dashboard transport, dashboard
// API) agrees on one scheme instead of each reaching for uuid directly.
package ids

import "github.com/google/uuid"

// NewEventID returns a new unique identifier for a wire.Event.
func NewEventID() string {
	return uuid.NewString()
}

// NewRequestID returns a new unique identifier for an RPCCallPayload.
func NewRequestID() string {
	return uuid.NewString()
}
