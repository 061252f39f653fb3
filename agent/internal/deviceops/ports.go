package deviceops

import (
	"context"
	"fmt"
	"time"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/clisession"
)

// VLANMode selects whether SetPortVLAN assigns an access VLAN or adds the
// port to a trunk as the native VLAN.
type VLANMode int

const (
	VLANModeAccess VLANMode = iota
	VLANModeTrunkNative
)

const portOpTimeout = 15 * time.Second

// SetPortVLAN wraps C1's config-mode discipline to assign port's VLAN
// membership, per spec §4.2.
func SetPortVLAN(ctx context.Context, r clisession.Runner, port string, vlan int, mode VLANMode) error {
	return withInterfaceConfig(ctx, r, port, func() error {
		switch mode {
		case VLANModeTrunkNative:
			if !runOK(ctx, r, fmt.Sprintf("dual-mode %d", vlan)) {
				return fmt.Errorf("deviceops: set dual-mode native vlan %d on %s failed", vlan, port)
			}
		default:
			if !runOK(ctx, r, fmt.Sprintf("untagged vlan %d", vlan)) {
				return fmt.Errorf("deviceops: set access vlan %d on %s failed", vlan, port)
			}
		}
		return nil
	})
}

// AddTrunkVLANs tags additional VLANs (e.g. the wireless VLAN set) onto a
// port already carrying a native VLAN via SetPortVLAN(..., VLANModeTrunkNative).
func AddTrunkVLANs(ctx context.Context, r clisession.Runner, port string, vlans []int) error {
	return withInterfaceConfig(ctx, r, port, func() error {
		for _, vlan := range vlans {
			if !runOK(ctx, r, fmt.Sprintf("tagged vlan %d", vlan)) {
				return fmt.Errorf("deviceops: tag vlan %d on %s failed", vlan, port)
			}
		}
		return nil
	})
}

// SetPoE turns PoE on or off for port.
func SetPoE(ctx context.Context, r clisession.Runner, port string, on bool) error {
	return withInterfaceConfig(ctx, r, port, func() error {
		cmd := "inline power"
		if !on {
			cmd = "no inline power"
		}
		if !runOK(ctx, r, cmd) {
			return fmt.Errorf("deviceops: set poe=%v on %s failed", on, port)
		}
		return nil
	})
}

// SetPortDescription sets port's free-text description.
func SetPortDescription(ctx context.Context, r clisession.Runner, port, text string) error {
	return withInterfaceConfig(ctx, r, port, func() error {
		if !runOK(ctx, r, fmt.Sprintf("port-name %s", text)) {
			return fmt.Errorf("deviceops: set description on %s failed", port)
		}
		return nil
	})
}

// SetPortAdmin sets the administrative state of port.
func SetPortAdmin(ctx context.Context, r clisession.Runner, port string, up bool) error {
	return withInterfaceConfig(ctx, r, port, func() error {
		cmd := "enable"
		if !up {
			cmd = "disable"
		}
		if !runOK(ctx, r, cmd) {
			return fmt.Errorf("deviceops: set admin up=%v on %s failed", up, port)
		}
		return nil
	})
}

// withInterfaceConfig enters global config, selects the interface, runs fn,
// and always attempts to return to exec mode before returning fn's error.
func withInterfaceConfig(ctx context.Context, r clisession.Runner, port string, fn func() error) error {
	if err := r.EnterConfig(ctx); err != nil {
		return err
	}
	defer r.ExitConfig(ctx)

	if !runOK(ctx, r, fmt.Sprintf("interface ethernet %s", port)) {
		return fmt.Errorf("deviceops: select interface %s failed", port)
	}

	return fn()
}

func runOK(ctx context.Context, r clisession.Runner, cmd string) bool {
	_, ok := r.Run(ctx, cmd, portOpTimeout)
	return ok
}
