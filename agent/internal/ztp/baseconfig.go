package ztp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	baseConfigLineTimeout = 15 * time.Second
)

// applyBaseConfig enters config mode and pastes text line by line, skipping
// blank lines and comment lines (beginning with "!"). A bare "exit" line is
// sent like any other command — the switch's own prompt state machine
// handles whether it leaves a nested interface context or global config,
// per spec §4.4 step 3.
func applyBaseConfig(ctx context.Context, r Session, text string) error {
	if err := r.EnterConfig(ctx); err != nil {
		return err
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "!") {
			continue
		}
		if _, ok := r.Run(ctx, trimmed, baseConfigLineTimeout); !ok {
			_ = r.ExitConfig(ctx)
			return fmt.Errorf("ztp: base config line %q failed", trimmed)
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
		return fmt.Errorf("ztp: save after base config did not confirm")
	}
	return nil
}
