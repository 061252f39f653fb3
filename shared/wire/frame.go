package wire

import "time"

// FrameType identifies the kind of JSON object carried over the persistent
// agent↔dashboard WebSocket. Unknown types are logged and dropped by the
// receiver — they never close the socket (§6 of the spec).
type FrameType string

const (
	// Agent → Dashboard
	FrameRegister   FrameType = "register"
	FrameHeartbeat  FrameType = "heartbeat"
	FrameEvent      FrameType = "event"
	FrameInventory  FrameType = "inventory"
	FrameRPCResult  FrameType = "rpc_result"

	// Dashboard → Agent
	FrameConfigure FrameType = "configure"
	FrameControl   FrameType = "control"
	FrameRPCCall   FrameType = "rpc_call"
	FramePing      FrameType = "ping"
)

// Frame is the envelope every WebSocket message is wrapped in. Type
// dictates how the receiver should interpret the nested payload fields
// below — exactly one of them is populated per frame, matching the
// direction/type combination in the spec's frame table.
type Frame struct {
	Type      FrameType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`

	Register  *RegisterPayload  `json:"register,omitempty"`
	Heartbeat *HeartbeatPayload `json:"heartbeat,omitempty"`
	Event     *Event            `json:"event,omitempty"`
	Inventory *InventoryPayload `json:"inventory,omitempty"`
	RPCResult *RPCResultPayload `json:"rpc_result,omitempty"`

	Configure *ConfigurePayload `json:"configure,omitempty"`
	Control   *ControlPayload   `json:"control,omitempty"`
	RPCCall   *RPCCallPayload   `json:"rpc_call,omitempty"`
}

// RegisterPayload is sent once immediately after the agent connects.
// PasswordHash is the Argon2id hash of the agent's locally generated
// per-agent secret (shown to the operator once at install); the dashboard
// stores only this hash and never learns the plaintext (§4.8).
type RegisterPayload struct {
	AgentID      string   `json:"agent_id"`
	Hostname     string   `json:"hostname"`
	Subnet       string   `json:"subnet"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities,omitempty"`
	PasswordHash string   `json:"password_hash,omitempty"`
}

// HeartbeatPayload is sent every 30s and carries lightweight host status
// collected via gopsutil, plus whether the ZTP engine is currently running.
type HeartbeatPayload struct {
	ZTPRunning  bool    `json:"ztp_running"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	LoadAvg1    float64 `json:"load_avg1"`
}

// InventoryPayload carries either a full snapshot or an incremental delta of
// the agent's device map. Full is set on the first inventory frame after
// register; subsequent frames may set only Devices for the IPs that changed.
type InventoryPayload struct {
	Full    bool     `json:"full"`
	Devices []Device `json:"devices"`
}

// ConfigurePayload is a full configuration replacement pushed by the
// dashboard. It is applied atomically at the next tick boundary — never
// mid-tick (§4.4 step 1).
type ConfigurePayload struct {
	Seeds           []string     `json:"seeds"`
	Credentials     []Credential `json:"credentials"`
	PreferredPassword string     `json:"preferred_password"`
	BaseConfigText  string       `json:"base_config_text"`
	VLANPlan        VLANPlan     `json:"vlan_plan"`
	PollInterval    time.Duration `json:"poll_interval"`
	WirelessVLANs   []int        `json:"wireless_vlans"`
	APPortProfile   string       `json:"ap_port_profile"`
	FastDiscovery   bool         `json:"fast_discovery"`
}

// Credential is one username/password pair tried, in order, against a
// switch that has not yet been identified.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VLANPlan is the set of device-config values applied once a switch's base
// config has been pasted in (§4.4 step 4).
type VLANPlan struct {
	ManagementVLAN int    `json:"management_vlan"`
	Gateway        string `json:"gateway"`
	DNS            string `json:"dns"`
	DomainName     string `json:"domain_name"`
}

// ControlAction starts or stops the agent's ZTP engine.
type ControlAction string

const (
	ControlStart ControlAction = "start"
	ControlStop  ControlAction = "stop"
)

// ControlPayload carries a start/stop instruction for the engine.
type ControlPayload struct {
	Action ControlAction `json:"action"`
}

// RPCOp enumerates the ad-hoc commands the dashboard can issue against a
// device through an agent.
type RPCOp string

const (
	RPCOpRunShow   RPCOp = "run_show"
	RPCOpPortStatus RPCOp = "port_status"
	RPCOpSetVLAN   RPCOp = "set_vlan"
	RPCOpSetPoE    RPCOp = "set_poe"
)

// RPCCallPayload is a dashboard-initiated request executed by the agent
// against one device. Correlated to its response by RequestID.
type RPCCallPayload struct {
	RequestID string         `json:"request_id"`
	TargetIP  string         `json:"target_ip"`
	Op        RPCOp          `json:"op"`
	Args      map[string]any `json:"args,omitempty"`
	TimeoutMS int64          `json:"timeout_ms"`
}

// RPCResultPayload is the agent's response to an RPCCallPayload.
type RPCResultPayload struct {
	RequestID string         `json:"request_id"`
	OK        bool           `json:"ok"`
	Output    string         `json:"output,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
}
