package ztp

import (
	"context"
	"regexp"
	"strings"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/deviceops"
)

// configureAPPort programs port as a trunk carrying managementVLAN native
// plus wirelessVLANs tagged, enables PoE, and sets the port description —
// spec §4.4 step 6. The AP itself is never logged into.
func configureAPPort(ctx context.Context, sw Session, port string, managementVLAN int, wirelessVLANs []int, description string) error {
	if managementVLAN > 0 {
		if err := deviceops.SetPortVLAN(ctx, sw, port, managementVLAN, deviceops.VLANModeTrunkNative); err != nil {
			return err
		}
	}
	if len(wirelessVLANs) > 0 {
		if err := deviceops.AddTrunkVLANs(ctx, sw, port, wirelessVLANs); err != nil {
			return err
		}
	}
	if err := deviceops.SetPoE(ctx, sw, port, true); err != nil {
		return err
	}
	if description != "" {
		if err := deviceops.SetPortDescription(ctx, sw, port, description); err != nil {
			return err
		}
	}
	_, err := sw.Save(ctx)
	return err
}

var apModelRe = regexp.MustCompile(`(?i)ruckus\s+(\S+)\s+.*wireless ap`)

// parseAPModel extracts the AP model token from an LLDP system-description
// such as "Ruckus R350 Multimedia Hotzone Wireless AP".
func parseAPModel(systemDescription string) string {
	if m := apModelRe.FindStringSubmatch(systemDescription); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}
