package ztp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/clisession"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// Session is the subset of clisession.Session the engine depends on,
// widened with Close/SSHActive so the engine can manage connection
// lifetime without importing clisession's concrete type directly — this
// is what lets engine_test.go substitute a fake switch.
type Session interface {
	clisession.Runner
	Close()
	SSHActive() bool
}

// Dialer opens a Session to a switch. The production implementation wraps
// clisession.Open; tests substitute a fake that never touches the network.
type Dialer func(ctx context.Context, ip string, creds []wire.Credential, preferredPassword string) (Session, error)

// NewSSHDialer returns a Dialer backed by real SSH connections.
func NewSSHDialer(logger *zap.Logger) Dialer {
	return func(ctx context.Context, ip string, creds []wire.Credential, preferredPassword string) (Session, error) {
		return clisession.Open(ctx, ip, creds, preferredPassword, logger)
	}
}

// defaultDialTimeout bounds how long Tick waits for a single switch's SSH
// handshake before treating it as this tick's failure for that device.
const defaultDialTimeout = 15 * time.Second
