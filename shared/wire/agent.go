package wire

import "time"

// AgentStatus is the dashboard's view of an edge agent's connectivity.
type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
)

// AgentSummary is the shape returned by GET /api/edge-agents — enough to
// render a fleet list without pulling each agent's full shadow inventory.
type AgentSummary struct {
	AgentID     string      `json:"agent_id"`
	Hostname    string      `json:"hostname"`
	Subnet      string      `json:"subnet"`
	Version     string      `json:"version"`
	Status      AgentStatus `json:"status"`
	ConnectedAt time.Time   `json:"connected_at"`
	LastSeen    time.Time   `json:"last_seen"`
	ZTPRunning  bool        `json:"ztp_running"`
}

// AgentDetail extends AgentSummary with the agent's full shadow inventory,
// returned by GET /api/edge-agents/{agent_id}.
type AgentDetail struct {
	AgentSummary
	ShadowInventory map[string]Device `json:"shadow_inventory"`
}

// ZTPStatus is the aggregated cross-agent summary returned by
// GET /api/ztp/status.
type ZTPStatus struct {
	Agents             int `json:"agents"`
	Running            int `json:"running"`
	SwitchesDiscovered int `json:"switches_discovered"`
	SwitchesConfigured int `json:"switches_configured"`
	APsDiscovered      int `json:"aps_discovered"`
}

// InventoryEntry tags a Device with the agent it came from, for the merged
// cross-agent view at GET /api/ztp/inventory.
type InventoryEntry struct {
	AgentID string `json:"agent_id"`
	Device  Device `json:"device"`
}
