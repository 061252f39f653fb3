// Package deviceops implements the typed ICX CLI commands (C2) that the
// ZTP engine drives over a clisession.Runner: identity discovery, LLDP
// neighbor discovery, L2 trace fallback, and port programming.
package deviceops

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/clisession"
)

// Identity is the parsed result of "show version".
type Identity struct {
	Model    string
	Serial   string
	Firmware string
	Uptime   string
}

var (
	modelLineRe    = regexp.MustCompile(`(?i)\b(ICX[\w-]*)\b`)
	serialLineRe   = regexp.MustCompile(`(?i)serial\s*#?\s*:?\s*([A-Za-z0-9]+)`)
	firmwareLineRe = regexp.MustCompile(`(?i)(?:SW: Version|Version)\s+([\d.a-zA-Z]+)`)
	uptimeLineRe   = regexp.MustCompile(`(?i)up(?:time\s+is)?\s+(\d+.*)`)
)

// DiscoverIdentity runs "show version" and parses model, serial, firmware,
// and uptime out of its free-form text. Tolerant of extra whitespace and
// firmware-string variation, per spec §4.2.
func DiscoverIdentity(ctx context.Context, r clisession.Runner, timeout time.Duration) (Identity, bool) {
	out, ok := r.Run(ctx, "show version", timeout)
	if !ok {
		return Identity{}, false
	}
	return parseIdentity(out), true
}

func parseIdentity(out string) Identity {
	var id Identity
	if m := modelLineRe.FindStringSubmatch(out); m != nil {
		id.Model = strings.ToUpper(m[1])
	}
	if m := serialLineRe.FindStringSubmatch(out); m != nil {
		id.Serial = m[1]
	}
	if m := firmwareLineRe.FindStringSubmatch(out); m != nil {
		id.Firmware = m[1]
	}
	if m := uptimeLineRe.FindStringSubmatch(out); m != nil {
		id.Uptime = strings.TrimSpace(m[1])
	}
	return id
}
