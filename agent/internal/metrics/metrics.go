// Package metrics exposes the agent's own Prometheus metrics — a local,
// opt-in /metrics endpoint for the operator who wants to scrape one agent
// directly rather than relying solely on the dashboard's fleet-wide view.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "ztp_tick_duration_seconds",
	Help:    "Wall-clock duration of one ZTP engine control-loop tick.",
	Buckets: prometheus.DefBuckets,
})

func init() {
	prometheus.MustRegister(tickDuration)
}

// ObserveTick records how long one Engine.Tick call took.
func ObserveTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// Handler returns the scrape endpoint for the agent's local /metrics server.
func Handler() http.Handler {
	return promhttp.Handler()
}
