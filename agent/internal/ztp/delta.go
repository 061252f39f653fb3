package ztp

import (
	"sync"
	"time"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/inventory"
	"github.com/neuralconfig/ruckus-ztp/shared/ids"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// deltaTracker accumulates which device IPs were touched during one tick,
// and which of those newly transitioned into status=configured, so step 7
// can emit the right combination of device_discovered/device_updated/
// device_configured events (spec §4.4 step 7).
type deltaTracker struct {
	inv  *inventory.Inventory
	seen map[string]bool // persists across ticks; owned by Engine

	mu         sync.Mutex
	touched    map[string]bool
	configured map[string]bool
}

func newDeltaTracker(inv *inventory.Inventory, seen map[string]bool) *deltaTracker {
	return &deltaTracker{
		inv:        inv,
		seen:       seen,
		touched:    make(map[string]bool),
		configured: make(map[string]bool),
	}
}

// touch records that ip was mutated (or at least inspected and found
// unchanged-but-relevant, e.g. a discovery pass) during this tick.
func (d *deltaTracker) touch(ip string) {
	if ip == "" {
		return
	}
	d.mu.Lock()
	d.touched[ip] = true
	d.mu.Unlock()
}

// touchConfigured records ip as touched AND as having just transitioned
// into status=configured this tick.
func (d *deltaTracker) touchConfigured(ip string) {
	d.mu.Lock()
	d.touched[ip] = true
	d.configured[ip] = true
	d.mu.Unlock()
}

// emitAll walks every touched IP and calls emit with the right event
// type(s), advancing seq for each event and stamping tick/seq.
func (d *deltaTracker) emitAll(tick uint64, seq *uint64, emit func(wire.Event)) {
	if emit == nil {
		return
	}

	d.mu.Lock()
	touched := make([]string, 0, len(d.touched))
	for ip := range d.touched {
		touched = append(touched, ip)
	}
	configured := d.configured
	d.mu.Unlock()

	for _, ip := range touched {
		first := !d.seen[ip]
		d.seen[ip] = true

		t := wire.EventDeviceUpdated
		if first {
			t = wire.EventDeviceDiscovered
		}
		*seq++
		emit(wire.Event{EventID: ids.NewEventID(), Timestamp: time.Now(), Type: t, Tick: tick, Seq: *seq, Payload: devicePayload(d.inv, ip)})

		if configured[ip] {
			*seq++
			emit(wire.Event{EventID: ids.NewEventID(), Timestamp: time.Now(), Type: wire.EventDeviceConfigured, Tick: tick, Seq: *seq, Payload: devicePayload(d.inv, ip)})
		}
	}
}

func devicePayload(inv *inventory.Inventory, ip string) map[string]any {
	dev, ok := inv.Get(ip)
	if !ok {
		return map[string]any{"ip": ip}
	}
	return map[string]any{
		"ip":         dev.IP,
		"device_type": dev.DeviceType,
		"status":     dev.Status,
		"model":      dev.Model,
	}
}
