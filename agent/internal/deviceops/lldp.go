package deviceops

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/clisession"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// apDescriptionMarker identifies an AP by its LLDP system-description, per
// spec §4.2. Matched case-insensitively against vendor naming variants.
var apDescriptionMarker = regexp.MustCompile(`(?i)ruckus.*wireless ap|wireless ap.*ruckus`)

// switchModelMarker identifies a neighbor as a switch when its
// system-description both names an ICX model and the neighbor advertised
// bridge/router capabilities (checked by the caller via capabilitiesRe).
var switchModelMarker = regexp.MustCompile(`(?i)\bICX[\w-]*\b`)

var capabilitiesRe = regexp.MustCompile(`(?i)capabilities\s*:.*(bridge|router)`)

var localPortRe = regexp.MustCompile(`(?m)^\s*(\d+/\d+/\d+)\s`)

var (
	chassisMACRe  = regexp.MustCompile(`(?i)chassis\s*id\s*:?\s*([0-9a-fA-F:.]+)`)
	remotePortRe  = regexp.MustCompile(`(?i)port\s*id\s*:?\s*(\S+)`)
	sysNameRe     = regexp.MustCompile(`(?i)system\s*name\s*:?\s*(.+)`)
	sysDescRe     = regexp.MustCompile(`(?i)system\s*description\s*:?\s*(.+)`)
	mgmtAddrRe    = regexp.MustCompile(`(?i)management address\s*\(ipv4\)\s*:?\s*([\d.]+)`)
)

// LLDPNeighbors runs "show lldp neighbors" to enumerate local ports with an
// active neighbor, then "show lldp neighbors detail ports ethernet <port>"
// for each to build a normalized neighbor record and its device-type
// classification. Returns local_port -> (neighbor, classified type).
func LLDPNeighbors(ctx context.Context, r clisession.Runner, timeout time.Duration) (map[string]wire.Neighbor, map[string]wire.DeviceType, bool) {
	summary, ok := r.Run(ctx, "show lldp neighbors", timeout)
	if !ok {
		return nil, nil, false
	}

	ports := parseLocalPorts(summary)
	neighbors := make(map[string]wire.Neighbor, len(ports))
	types := make(map[string]wire.DeviceType, len(ports))

	for _, port := range ports {
		cmd := fmt.Sprintf("show lldp neighbors detail ports ethernet %s", port)
		detail, ok := r.Run(ctx, cmd, timeout)
		if !ok {
			continue
		}
		n, dt, ok := parseNeighborDetail(detail, port)
		if !ok {
			continue
		}
		neighbors[port] = n
		types[port] = dt
	}

	return neighbors, types, true
}

func parseLocalPorts(summary string) []string {
	matches := localPortRe.FindAllStringSubmatch(summary, -1)
	seen := make(map[string]bool, len(matches))
	var ports []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			ports = append(ports, m[1])
		}
	}
	return ports
}

// parseNeighborDetail extracts a normalized Neighbor and classifies it as a
// switch or AP. A zero management address (0.0.0.0) is treated as "not
// advertised" — MgmtIP is left empty so the engine falls back to L2 trace.
func parseNeighborDetail(detail, localPort string) (wire.Neighbor, wire.DeviceType, bool) {
	n := wire.Neighbor{PortID: localPort}

	if m := chassisMACRe.FindStringSubmatch(detail); m != nil {
		n.ChassisMAC = normalizeMAC(m[1])
	}
	if m := remotePortRe.FindStringSubmatch(detail); m != nil {
		n.PortID = strings.TrimSpace(m[1])
	}
	if m := sysNameRe.FindStringSubmatch(detail); m != nil {
		n.SystemName = strings.TrimSpace(m[1])
	}
	if m := sysDescRe.FindStringSubmatch(detail); m != nil {
		n.SystemDescription = strings.TrimSpace(m[1])
	}
	if m := mgmtAddrRe.FindStringSubmatch(detail); m != nil && m[1] != "0.0.0.0" {
		n.MgmtIP = m[1]
	}

	if n.ChassisMAC == "" && n.SystemName == "" {
		return wire.Neighbor{}, "", false
	}

	return n, classify(detail, n.SystemDescription), true
}

func classify(detail, systemDescription string) wire.DeviceType {
	if apDescriptionMarker.MatchString(systemDescription) {
		return wire.DeviceTypeAP
	}
	if switchModelMarker.MatchString(systemDescription) && capabilitiesRe.MatchString(detail) {
		return wire.DeviceTypeSwitch
	}
	// Default to switch: a neighbor that isn't recognizably an AP is
	// assumed to be further ICX infrastructure worth chasing via L2 trace.
	return wire.DeviceTypeSwitch
}

func normalizeMAC(raw string) string {
	raw = strings.ToLower(raw)
	raw = strings.NewReplacer(".", "", ":", "", "-", "").Replace(raw)
	if len(raw) != 12 {
		return strings.ToLower(raw)
	}
	var sb strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(raw[i : i+2])
	}
	return sb.String()
}
