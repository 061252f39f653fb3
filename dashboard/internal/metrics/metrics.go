// Package metrics exposes the dashboard's Prometheus gauges: fleet size,
// connected agents, and event-log depth. These are sampled on scrape
// directly from the registry and event log rather than updated inline on
// every mutation, since the values are cheap to compute and this avoids
// scattering metric-update calls through unrelated packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/eventlog"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
)

var (
	agentsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ztp_dashboard_agents_total",
		Help: "Number of edge agents known to the dashboard, connected or not.",
	})
	agentsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_agents_connected",
		Help: "Number of edge agents with a live WebSocket connection right now.",
	})
	agentsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ztp_dashboard_agents_running",
		Help: "Number of edge agents with ZTP discovery currently enabled.",
	})
	devicesDiscovered = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ztp_devices_total",
		Help: "Devices discovered across the fleet, by status.",
	}, []string{"status"})
	eventLogDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ztp_dashboard_event_log_depth",
		Help: "Number of events currently held in the in-memory ring buffer.",
	})
)

func init() {
	prometheus.MustRegister(agentsTotal, agentsConnected, agentsRunning, devicesDiscovered, eventLogDepth)
}

// Collector samples the registry and event log into the registered gauges.
// It implements no periodic loop of its own — Sample is meant to be called
// from a promhttp.Handler wrapper right before the scrape is served.
type Collector struct {
	registry *registry.Registry
	events   *eventlog.Log
}

// New builds a Collector over reg and events.
func New(reg *registry.Registry, events *eventlog.Log) *Collector {
	return &Collector{registry: reg, events: events}
}

// Sample refreshes every gauge from current state.
func (c *Collector) Sample() {
	status := c.registry.Status()
	agentsTotal.Set(float64(status.Agents))
	agentsConnected.Set(float64(c.registry.ConnectedCount()))
	agentsRunning.Set(float64(status.Running))
	devicesDiscovered.WithLabelValues("switch_discovered").Set(float64(status.SwitchesDiscovered))
	devicesDiscovered.WithLabelValues("switch_configured").Set(float64(status.SwitchesConfigured))
	devicesDiscovered.WithLabelValues("ap_discovered").Set(float64(status.APsDiscovered))
	eventLogDepth.Set(float64(c.events.Len()))
}
