package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

type fakeConn struct{}

func (fakeConn) Send(*wire.Frame) error { return nil }
func (fakeConn) Close()                 {}

func TestSampleReflectsRegistryAndEventLogState(t *testing.T) {
	reg := registry.New(zap.NewNop())
	events := eventlog.New(10)
	c := New(reg, events)

	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", "", fakeConn{})
	reg.Register("sw2", "host2", "10.0.1.0/24", "dev", "", nil)

	events.Append(wire.Event{AgentID: "sw1", Type: wire.EventDeviceDiscovered, Timestamp: time.Now()})

	c.Sample()

	if got := testutil.ToFloat64(agentsTotal); got != 2 {
		t.Errorf("agentsTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(agentsConnected); got != 1 {
		t.Errorf("agentsConnected = %v, want 1 (only sw1 has a live conn)", got)
	}
	if got := testutil.ToFloat64(eventLogDepth); got != 1 {
		t.Errorf("eventLogDepth = %v, want 1", got)
	}
}
