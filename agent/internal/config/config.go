// Package config loads the agent's INI configuration file once, via Load;
// it provides no reload. The file format and section layout are fixed by
// the spec: [agent], [network], [backend], [logging], [ztp].
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the agent's static startup configuration. Unlike the ZTP engine
// configuration pushed live by the dashboard (seeds, credentials, VLAN plan),
// this describes how the agent process itself connects and logs — read once
// at startup and not re-read while the process runs.
type Config struct {
	Agent   AgentSection
	Network NetworkSection
	Backend BackendSection
	Logging LoggingSection
	ZTP     ZTPSection
	Metrics MetricsSection
}

// AgentSection is the [agent] INI section.
type AgentSection struct {
	AgentID        string
	AuthToken      string
	PasswordHash   string
	CommandTimeout time.Duration
}

// NetworkSection is the [network] INI section.
type NetworkSection struct {
	Hostname string
	Subnet   string
}

// BackendSection is the [backend] INI section.
type BackendSection struct {
	ServerURL         string
	WebSocketPath     string
	ReconnectInterval time.Duration
}

// LoggingSection is the [logging] INI section.
type LoggingSection struct {
	Level   string
	LogFile string
}

// ZTPSection is the [ztp] INI section.
type ZTPSection struct {
	EnableZTP    bool
	PollInterval time.Duration
}

// MetricsSection is the [metrics] INI section. The agent's /metrics
// endpoint is off by default — most installs only care about the
// dashboard's fleet-wide view — and is opt-in per agent for the
// operator who wants to scrape an individual box directly.
type MetricsSection struct {
	Enabled    bool
	ListenAddr string
}

// Load reads and parses the INI file at path.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (*Config, error) {
	cfg := &Config{}

	agentSec := f.Section("agent")
	cfg.Agent.AgentID = agentSec.Key("agent_id").String()
	cfg.Agent.AuthToken = agentSec.Key("auth_token").String()
	cfg.Agent.PasswordHash = agentSec.Key("password_hash").String()
	cfg.Agent.CommandTimeout = secondsOr(agentSec.Key("command_timeout"), 30*time.Second)

	netSec := f.Section("network")
	cfg.Network.Hostname = netSec.Key("hostname").String()
	cfg.Network.Subnet = netSec.Key("subnet").String()

	backendSec := f.Section("backend")
	cfg.Backend.ServerURL = backendSec.Key("server_url").String()
	cfg.Backend.WebSocketPath = backendSec.Key("websocket_path").MustString("/ws/agent")
	cfg.Backend.ReconnectInterval = secondsOr(backendSec.Key("reconnect_interval"), 30*time.Second)

	logSec := f.Section("logging")
	cfg.Logging.Level = logSec.Key("level").MustString("info")
	cfg.Logging.LogFile = logSec.Key("log_file").String()

	ztpSec := f.Section("ztp")
	cfg.ZTP.EnableZTP = ztpSec.Key("enable_ztp").MustBool(true)
	cfg.ZTP.PollInterval = secondsOr(ztpSec.Key("poll_interval"), 60*time.Second)

	metricsSec := f.Section("metrics")
	cfg.Metrics.Enabled = metricsSec.Key("enabled").MustBool(false)
	cfg.Metrics.ListenAddr = metricsSec.Key("listen_addr").MustString("127.0.0.1:9090")

	if cfg.Agent.AgentID == "" {
		return nil, fmt.Errorf("config: [agent] agent_id is required")
	}
	if cfg.Backend.ServerURL == "" {
		return nil, fmt.Errorf("config: [backend] server_url is required")
	}

	return cfg, nil
}

func secondsOr(k *ini.Key, def time.Duration) time.Duration {
	n, err := k.Int()
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
