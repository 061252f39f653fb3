// Package eventlog is the dashboard's bounded in-memory history of ZTP
// events (C7), backing GET /api/ztp/events. It is a ring buffer, not a
// queue: once full, the oldest entry is simply overwritten, since this is
// an operator-facing tail of recent activity, not a delivery-guaranteed
// channel (that job belongs to the agent's own bounded outbound queue).
package eventlog

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// DefaultCapacity is the default number of events retained, per spec §4.7.
const DefaultCapacity = 1000

// eventsTotal counts every event ever appended, labeled by type — unlike
// Len(), this survives the ring buffer overwriting old entries, so it is
// the correct source for the dashboard_events_total{type} metric.
var eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "dashboard_events_total",
	Help: "Total ZTP events received from edge agents, by event type.",
}, []string{"type"})

func init() {
	prometheus.MustRegister(eventsTotal)
}

// Log is a fixed-capacity, newest-first event history, safe for concurrent
// use by the transport layer (appending) and the API layer (querying).
type Log struct {
	mu       sync.RWMutex
	entries  []wire.Event
	next     int
	size     int
	capacity int
}

// New returns a Log that retains at most capacity entries. A capacity <= 0
// uses DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]wire.Event, capacity), capacity: capacity}
}

// Append records ev, overwriting the oldest entry once the log is full.
func (l *Log) Append(ev wire.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = ev
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
	eventsTotal.WithLabelValues(string(ev.Type)).Inc()
}

// Filter narrows a Query: zero-value fields match everything.
type Filter struct {
	AgentID string
	Type    wire.EventType
	Since   time.Time
	Limit   int
}

// Query returns matching events newest-first, applying Limit last (0 means
// unbounded).
func (l *Log) Query(f Filter) []wire.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]wire.Event, 0, l.size)
	for i := 0; i < l.size; i++ {
		idx := (l.next - 1 - i + l.capacity) % l.capacity
		ev := l.entries[idx]
		if f.AgentID != "" && ev.AgentID != f.AgentID {
			continue
		}
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && !ev.Timestamp.After(f.Since) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len reports how many events are currently retained.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
