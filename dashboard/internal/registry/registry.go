// Package registry is the dashboard's in-memory record of connected and
// recently-seen edge agents (C6). It is deliberately non-persistent — on
// restart, agents simply reconnect and re-register (spec's Non-goals rule
// out cross-restart persistence).
package registry

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// eventRateLimit is the default per-agent inbound event frame limit, per
// spec §4.6 ("default 30/minute for events plus unlimited heartbeats").
const eventRateLimit = 30

// Conn is the subset of a live agent connection the registry needs in
// order to push frames and force-close a superseded connection. The
// concrete implementation lives in dashboard/internal/transport, which
// depends on this package rather than the other way around.
type Conn interface {
	Send(*wire.Frame) error
	Close()
}

// Agent is one edge agent's dashboard-side record: identity, liveness, and
// shadow inventory. The dashboard is a read-only shadow of the agent's own
// authoritative inventory (spec §3 ownership rule).
type Agent struct {
	ID           string
	Hostname     string
	Subnet       string
	Version      string
	PasswordHash string

	Status      wire.AgentStatus
	Running     bool
	ConnectedAt time.Time
	LastSeen    time.Time

	Inventory map[string]wire.Device

	// LastConfig is the most recent configure payload pushed via the API,
	// re-sent on every successful register per spec §4.5 — configure/
	// control frames received while an agent is disconnected are lost by
	// design, so reconnect is the only recovery path.
	LastConfig *wire.ConfigurePayload

	conn Conn

	eventWindowStart time.Time
	eventCount       int
}

// snapshot returns a deep copy of a, safe to read without the registry's
// lock held.
func (a *Agent) snapshot() *Agent {
	cp := *a
	cp.conn = nil
	if a.Inventory != nil {
		cp.Inventory = make(map[string]wire.Device, len(a.Inventory))
		for ip, d := range a.Inventory {
			cp.Inventory[ip] = d.Clone()
		}
	}
	return &cp
}

func (a *Agent) summary() wire.AgentSummary {
	return wire.AgentSummary{
		AgentID:     a.ID,
		Hostname:    a.Hostname,
		Subnet:      a.Subnet,
		Version:     a.Version,
		Status:      a.Status,
		ConnectedAt: a.ConnectedAt,
		LastSeen:    a.LastSeen,
		ZTPRunning:  a.Running,
	}
}

// Registry is the process-wide agent table, one mutex, O(1) critical
// sections, grounded on the teacher's agentmanager.Manager.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	logger *zap.Logger
}

// New returns an empty Registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{agents: make(map[string]*Agent), logger: logger.Named("registry")}
}

// Register handles an agent's `register` frame. If the agent id is already
// online under a different connection, the old connection is closed (new
// wins); if it was offline, the existing shadow inventory and history are
// retained and the record is reattached — it is never recreated from
// scratch (spec §4.6).
func (r *Registry) Register(id, hostname, subnet, version, passwordHash string, conn Conn) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	a, exists := r.agents[id]
	if !exists {
		a = &Agent{ID: id, Inventory: make(map[string]wire.Device)}
		r.agents[id] = a
	} else if a.conn != nil {
		r.logger.Warn("replacing existing agent connection", zap.String("agent_id", id))
		a.conn.Close()
	}

	a.Hostname = hostname
	a.Subnet = subnet
	a.Version = version
	if passwordHash != "" {
		a.PasswordHash = passwordHash
	}
	a.Status = wire.AgentStatusOnline
	a.ConnectedAt = now
	a.LastSeen = now
	a.conn = conn
	a.eventWindowStart = now
	a.eventCount = 0

	r.logger.Info("agent connected", zap.String("agent_id", id), zap.String("hostname", hostname), zap.Int("total", len(r.agents)))
	return a
}

// Deregister marks id offline if conn is still its current connection —
// guards against a stale readPump's deferred cleanup racing a newer
// Register call that already replaced the connection.
func (r *Registry) Deregister(id string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok || a.conn != conn {
		return
	}
	a.conn = nil
	a.Status = wire.AgentStatusOffline
	r.logger.Info("agent disconnected", zap.String("agent_id", id))
}

// Heartbeat refreshes LastSeen and the engine-running flag for id.
func (r *Registry) Heartbeat(id string, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[id]; ok {
		a.LastSeen = time.Now()
		a.Running = running
	}
}

// ApplyInventory merges an incoming inventory frame into id's shadow.
// Full replaces the whole map; otherwise devices are upserted individually.
func (r *Registry) ApplyInventory(id string, full bool, devices []wire.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	if full || a.Inventory == nil {
		a.Inventory = make(map[string]wire.Device, len(devices))
	}
	for _, d := range devices {
		a.Inventory[d.IP] = d
	}
	a.LastSeen = time.Now()
}

// AllowEvent reports whether id may emit another event frame this minute,
// per the §4.6 rate limit. Heartbeats are not subject to this check.
func (r *Registry) AllowEvent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	now := time.Now()
	if now.Sub(a.eventWindowStart) >= time.Minute {
		a.eventWindowStart = now
		a.eventCount = 0
	}
	if a.eventCount >= eventRateLimit {
		return false
	}
	a.eventCount++
	return true
}

// Send forwards frame to id's live connection, or returns an AgentOffline
// classified error if it has none.
func (r *Registry) Send(id string, frame *wire.Frame) error {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok || a.conn == nil {
		return fmt.Errorf("registry: agent %s is offline: %w", id, ErrAgentOffline)
	}
	return a.conn.Send(frame)
}

// SetConfig records cfg as id's most recently pushed configuration, so it
// can be re-sent on the agent's next successful register. It is a no-op if
// id has never registered — there is no mechanism to pre-provision an
// agent that has not yet connected at least once.
func (r *Registry) SetConfig(id string, cfg wire.ConfigurePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	cp := cfg
	a.LastConfig = &cp
}

// Config returns a copy of id's most recently pushed configuration, if any.
func (r *Registry) Config(id string) (wire.ConfigurePayload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok || a.LastConfig == nil {
		return wire.ConfigurePayload{}, false
	}
	return *a.LastConfig, true
}

// Get returns a deep copy of id's record.
func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return a.snapshot(), true
}

// Detail returns id's full summary plus shadow inventory, for
// GET /api/edge-agents/{agent_id}.
func (r *Registry) Detail(id string) (wire.AgentDetail, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return wire.AgentDetail{}, false
	}
	inv := make(map[string]wire.Device, len(a.Inventory))
	for ip, d := range a.Inventory {
		inv[ip] = d.Clone()
	}
	return wire.AgentDetail{AgentSummary: a.summary(), ShadowInventory: inv}, true
}

// PasswordHash returns id's stored Argon2id hash, for the C8 password gate.
func (r *Registry) PasswordHash(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return "", false
	}
	return a.PasswordHash, true
}

// Summaries returns every known agent's summary, for GET /api/edge-agents.
func (r *Registry) Summaries() []wire.AgentSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.AgentSummary, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.summary())
	}
	return out
}

// MergedInventory returns every agent's shadow devices tagged by agent id,
// for GET /api/ztp/inventory.
func (r *Registry) MergedInventory() []wire.InventoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []wire.InventoryEntry
	for _, a := range r.agents {
		for _, d := range a.Inventory {
			out = append(out, wire.InventoryEntry{AgentID: a.ID, Device: d.Clone()})
		}
	}
	return out
}

// Status aggregates every agent's shadow into the GET /api/ztp/status view.
func (r *Registry) Status() wire.ZTPStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var st wire.ZTPStatus
	st.Agents = len(r.agents)
	for _, a := range r.agents {
		if a.Running {
			st.Running++
		}
		for _, d := range a.Inventory {
			switch d.DeviceType {
			case wire.DeviceTypeSwitch:
				st.SwitchesDiscovered++
				if d.Status == wire.DeviceStatusConfigured {
					st.SwitchesConfigured++
				}
			case wire.DeviceTypeAP:
				st.APsDiscovered++
			}
		}
	}
	return st
}

// ConnectedCount returns the number of agents with a live connection right
// now, for the dashboard_agents_connected metric.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.conn != nil {
			n++
		}
	}
	return n
}

// ReapOffline transitions any agent whose LastSeen is older than
// 3*heartbeatInterval to offline, per spec §4.6. Shadow inventory and event
// history are retained — only connectivity status changes. Intended to run
// on a periodic gocron tick, symmetric to the agent's own tick scheduling.
func (r *Registry) ReapOffline(heartbeatInterval time.Duration) {
	cutoff := time.Now().Add(-3 * heartbeatInterval)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.Status == wire.AgentStatusOnline && a.LastSeen.Before(cutoff) {
			if a.conn != nil {
				a.conn.Close()
				a.conn = nil
			}
			a.Status = wire.AgentStatusOffline
			r.logger.Warn("agent missed heartbeats, marking offline", zap.String("agent_id", a.ID))
		}
	}
}
