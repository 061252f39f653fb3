package eventlog

import (
	"testing"
	"time"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

func mkEvent(agentID string, typ wire.EventType, when time.Time) wire.Event {
	return wire.Event{AgentID: agentID, Type: typ, Timestamp: when}
}

func TestQueryReturnsNewestFirst(t *testing.T) {
	l := New(10)
	base := time.Now()
	l.Append(mkEvent("a1", wire.EventHeartbeat, base))
	l.Append(mkEvent("a1", wire.EventDeviceDiscovered, base.Add(time.Second)))
	l.Append(mkEvent("a1", wire.EventDeviceConfigured, base.Add(2*time.Second)))

	got := l.Query(Filter{})
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != wire.EventDeviceConfigured || got[2].Type != wire.EventHeartbeat {
		t.Fatalf("expected newest-first ordering, got %+v", got)
	}
}

func TestAppendOverwritesOldestWhenFull(t *testing.T) {
	l := New(2)
	base := time.Now()
	l.Append(mkEvent("a1", wire.EventHeartbeat, base))
	l.Append(mkEvent("a1", wire.EventDeviceDiscovered, base.Add(time.Second)))
	l.Append(mkEvent("a1", wire.EventDeviceConfigured, base.Add(2*time.Second)))

	if l.Len() != 2 {
		t.Fatalf("expected log capped at 2 entries, got %d", l.Len())
	}
	got := l.Query(Filter{})
	if got[0].Type != wire.EventDeviceConfigured || got[1].Type != wire.EventDeviceDiscovered {
		t.Fatalf("expected oldest entry evicted, got %+v", got)
	}
}

func TestQueryFiltersByAgentTypeSinceAndLimit(t *testing.T) {
	l := New(10)
	base := time.Now()
	l.Append(mkEvent("a1", wire.EventHeartbeat, base))
	l.Append(mkEvent("a2", wire.EventDeviceDiscovered, base.Add(time.Second)))
	l.Append(mkEvent("a1", wire.EventDeviceDiscovered, base.Add(2*time.Second)))
	l.Append(mkEvent("a1", wire.EventDeviceConfigured, base.Add(3*time.Second)))

	byAgent := l.Query(Filter{AgentID: "a1"})
	if len(byAgent) != 3 {
		t.Fatalf("expected 3 events for a1, got %d", len(byAgent))
	}

	byType := l.Query(Filter{Type: wire.EventDeviceDiscovered})
	if len(byType) != 2 {
		t.Fatalf("expected 2 device_discovered events, got %d", len(byType))
	}

	bySince := l.Query(Filter{Since: base.Add(time.Second)})
	if len(bySince) != 2 {
		t.Fatalf("expected 2 events after cutoff, got %d", len(bySince))
	}

	limited := l.Query(Filter{Limit: 1})
	if len(limited) != 1 || limited[0].Type != wire.EventDeviceConfigured {
		t.Fatalf("expected limit to keep only the newest event, got %+v", limited)
	}
}
