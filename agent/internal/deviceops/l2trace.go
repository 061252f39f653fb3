package deviceops

import (
	"context"
	"regexp"
	"time"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/clisession"
)

// hopLineRe matches one hop row of "trace-l2 show": a path number followed
// somewhere on the line by an IPv4 address and a dotted-triplet MAC.
var hopLineRe = regexp.MustCompile(`(?m)^\s*\d+\s+.*?(\d{1,3}(?:\.\d{1,3}){3}).*?([0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4})`)

// L2Trace runs "trace-l2 show" and returns a chassis-MAC -> management-IP
// map recovered from its multi-path hop table. This is the fallback used
// when a neighbor's LLDP detail record did not advertise a usable
// management address (spec §4.2 / edge case: Management address 0.0.0.0).
func L2Trace(ctx context.Context, r clisession.Runner, timeout time.Duration) (map[string]string, bool) {
	out, ok := r.Run(ctx, "trace-l2 show", timeout)
	if !ok {
		return nil, false
	}
	return parseL2Trace(out), true
}

func parseL2Trace(out string) map[string]string {
	byMAC := make(map[string]string)
	for _, m := range hopLineRe.FindAllStringSubmatch(out, -1) {
		ip, mac := m[1], normalizeMAC(m[2])
		if ip == "0.0.0.0" {
			continue
		}
		byMAC[mac] = ip
	}
	return byMAC
}
