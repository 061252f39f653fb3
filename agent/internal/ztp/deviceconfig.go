package ztp

import (
	"context"
	"fmt"
	"time"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

const deviceConfigLineTimeout = 15 * time.Second

// applyDeviceConfig applies the per-device management settings from plan
// (management VLAN, gateway, DNS, domain name) once a switch's base config
// has already been pasted in, per spec §4.4 step 4.
func applyDeviceConfig(ctx context.Context, r Session, plan wire.VLANPlan) error {
	if err := r.EnterConfig(ctx); err != nil {
		return err
	}

	lines := []string{}
	if plan.ManagementVLAN > 0 {
		lines = append(lines, fmt.Sprintf("vlan %d name mgmt-vlan", plan.ManagementVLAN))
		lines = append(lines, "exit")
	}
	if plan.DomainName != "" {
		lines = append(lines, fmt.Sprintf("ip dns domain-name %s", plan.DomainName))
	}
	if plan.DNS != "" {
		lines = append(lines, fmt.Sprintf("ip dns server-address %s", plan.DNS))
	}
	if plan.Gateway != "" {
		lines = append(lines, fmt.Sprintf("ip default-gateway %s", plan.Gateway))
	}

	for _, line := range lines {
		if _, ok := r.Run(ctx, line, deviceConfigLineTimeout); !ok {
			_ = r.ExitConfig(ctx)
			return fmt.Errorf("ztp: device config line %q failed", line)
		}
	}

	if err := r.ExitConfig(ctx); err != nil {
		return err
	}
	ok, err := r.Save(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ztp: save after device config did not confirm")
	}
	return nil
}
