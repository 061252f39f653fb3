// Package inventory holds the agent's single authoritative device table.
// It is mutated only from the ZTP engine's tick flow (single-writer); every
// other reader (transport, RPC handlers) calls Snapshot for a deep,
// immutable copy, per spec §5's "no lock held across a suspension point"
// rule.
package inventory

import (
	"sync"
	"time"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// Inventory is safe for concurrent use: writes are expected from a single
// goroutine (the engine tick), reads from any number of goroutines.
type Inventory struct {
	mu      sync.Mutex
	devices map[string]wire.Device
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{devices: make(map[string]wire.Device)}
}

// UpsertSeed creates a Device for ip if it does not already exist, marking
// it as a seed switch in status=discovered. Re-accepting an already-known
// seed is a no-op (I5: device IP is immutable, re-discovery merges).
func (inv *Inventory) UpsertSeed(ip string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if d, ok := inv.devices[ip]; ok {
		d.IsSeed = true
		inv.devices[ip] = d
		return
	}

	inv.devices[ip] = wire.Device{
		IP:         ip,
		DeviceType: wire.DeviceTypeSwitch,
		Status:     wire.DeviceStatusDiscovered,
		IsSeed:     true,
		LastSeen:   time.Now(),
	}
}

// ObserveNeighbor records a neighbor learned via LLDP/L2-trace from
// localSwitchIP's localPort. For an AP neighbor it sets connected_switch/
// connected_port on the AP's own Device entry and adds localPort to the
// local switch's ap_ports. For a switch neighbor it only records the
// management IP if newly learned — the neighbor's own Device entry (if its
// IP is known) is created or merged so it becomes an intake candidate on
// the engine's next tick.
//
// Model preservation rule (spec §4.3): a later observation with an empty
// model never overwrites a Device's already-known model.
//
// Returns (localChanged, remoteChanged): whether localSwitchIP's own record
// (ap_ports/neighbors) changed, and whether the neighbor's own Device record
// changed. Re-observing the same LLDP/trace output tick after tick must
// report false/false so the engine doesn't keep re-emitting
// device_updated for devices nothing actually changed about (spec §8
// convergence property) — LastSeen is always refreshed but deliberately
// excluded from that comparison since it isn't part of any emitted payload.
func (inv *Inventory) ObserveNeighbor(localSwitchIP, localPort string, n wire.Neighbor, deviceType wire.DeviceType, model string) (localChanged, remoteChanged bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	sw, ok := inv.devices[localSwitchIP]
	if !ok {
		return false, false
	}

	switch deviceType {
	case wire.DeviceTypeAP:
		apIP := n.MgmtIP
		if apIP == "" {
			// No management IP yet for this AP; key it by chassis MAC until
			// one is learned so it isn't silently dropped.
			apIP = "mac:" + n.ChassisMAC
		}
		ap, exists := inv.devices[apIP]
		if !exists {
			ap = wire.Device{
				IP:         apIP,
				MAC:        n.ChassisMAC,
				DeviceType: wire.DeviceTypeAP,
				Status:     wire.DeviceStatusDiscovered,
			}
		}
		beforeModel, beforeHostname := ap.Model, ap.Hostname
		beforeSwitch, beforePort := ap.ConnectedSwitch, ap.ConnectedPort

		if model != "" {
			ap.Model = model
		}
		ap.Hostname = orKeep(ap.Hostname, n.SystemName)
		ap.ConnectedSwitch = localSwitchIP
		ap.ConnectedPort = localPort
		ap.LastSeen = time.Now()
		inv.devices[apIP] = ap

		remoteChanged = !exists ||
			ap.Model != beforeModel ||
			ap.Hostname != beforeHostname ||
			ap.ConnectedSwitch != beforeSwitch ||
			ap.ConnectedPort != beforePort

		if sw.APPorts == nil {
			sw.APPorts = []string{}
		}
		if !containsString(sw.APPorts, localPort) {
			sw.APPorts = append(sw.APPorts, localPort)
			localChanged = true
		}

	case wire.DeviceTypeSwitch:
		if sw.Neighbors == nil {
			sw.Neighbors = make(map[string]wire.Neighbor)
		}
		if prev, had := sw.Neighbors[localPort]; !had || prev != n {
			localChanged = true
		}
		sw.Neighbors[localPort] = n

		if n.MgmtIP != "" {
			if _, exists := inv.devices[n.MgmtIP]; !exists {
				inv.devices[n.MgmtIP] = wire.Device{
					IP:         n.MgmtIP,
					MAC:        n.ChassisMAC,
					Hostname:   n.SystemName,
					Model:      model,
					DeviceType: wire.DeviceTypeSwitch,
					Status:     wire.DeviceStatusDiscovered,
					LastSeen:   time.Now(),
				}
				remoteChanged = true
			}
		}
	}

	sw.LastSeen = time.Now()
	inv.devices[localSwitchIP] = sw
	return localChanged, remoteChanged
}

// orKeep returns existing unless candidate is non-empty, implementing the
// model/hostname preservation rule for any string field.
func orKeep(existing, candidate string) string {
	if candidate != "" {
		return candidate
	}
	return existing
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// Transition moves device ip to newStatus. Returns false if ip is unknown.
func (inv *Inventory) Transition(ip string, newStatus wire.DeviceStatus) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	d, ok := inv.devices[ip]
	if !ok {
		return false
	}
	d.Status = newStatus
	d.LastSeen = time.Now()
	inv.devices[ip] = d
	return true
}

// MarkTaskDone appends task to the device's tasks_completed list and, if
// present, removes it from tasks_failed.
func (inv *Inventory) MarkTaskDone(ip, task string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	d, ok := inv.devices[ip]
	if !ok {
		return
	}
	d.TasksCompleted = append(d.TasksCompleted, task)
	d.TasksFailed = removeString(d.TasksFailed, task)
	d.LastSeen = time.Now()
	inv.devices[ip] = d
}

// MarkTaskFailed appends task to tasks_failed and transitions the device to
// status=error, per I4.
func (inv *Inventory) MarkTaskFailed(ip, task string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	d, ok := inv.devices[ip]
	if !ok {
		return
	}
	d.TasksFailed = append(d.TasksFailed, task)
	d.Status = wire.DeviceStatusError
	d.LastSeen = time.Now()
	inv.devices[ip] = d
}

func removeString(ss []string, v string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// Update applies fn to a copy of the device at ip and stores the result.
// fn must not retain the Device it receives beyond its own call — mutating
// slice/map fields in place is safe since Get/Snapshot always deep-copy.
func (inv *Inventory) Update(ip string, fn func(d *wire.Device)) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	d, ok := inv.devices[ip]
	if !ok {
		return false
	}
	fn(&d)
	d.LastSeen = time.Now()
	inv.devices[ip] = d
	return true
}

// Get returns a deep copy of the device at ip.
func (inv *Inventory) Get(ip string) (wire.Device, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	d, ok := inv.devices[ip]
	if !ok {
		return wire.Device{}, false
	}
	return d.Clone(), true
}

// Snapshot returns a deep, immutable copy of the entire inventory, as a
// slice with one entry per IP, for transport (spec §4.3 / §3).
func (inv *Inventory) Snapshot() []wire.Device {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	out := make([]wire.Device, 0, len(inv.devices))
	for _, d := range inv.devices {
		out = append(out, d.Clone())
	}
	return out
}

// Len reports the number of known devices.
func (inv *Inventory) Len() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.devices)
}
