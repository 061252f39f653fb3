// Package rpcexec dispatches dashboard-initiated rpc_call requests against
// a device. It shares a switchlock.Registry with the ZTP engine so a
// command targeting a switch the engine currently owns fails fast with
// Busy instead of interleaving commands on the same CLI session (spec §5:
// "fail fast by default to avoid surprising command interleaving").
package rpcexec

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/clisession"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/deviceops"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/switchlock"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/ztp"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// maxRPCTimeout bounds any caller-supplied timeout, per spec §5.
const maxRPCTimeout = 120 * time.Second

// Executor runs RPCCallPayloads against devices via dialer, producing an
// RPCResultPayload correlated by RequestID.
type Executor struct {
	dialer      ztp.Dialer
	locks       *switchlock.Registry
	credentials func() []wire.Credential
	preferred   func() string
	logger      *zap.Logger
}

// New builds an Executor. credentials/preferred are called at dispatch
// time so the executor always uses the engine's current configuration,
// not a snapshot taken at construction.
func New(dialer ztp.Dialer, locks *switchlock.Registry, credentials func() []wire.Credential, preferred func() string, logger *zap.Logger) *Executor {
	return &Executor{dialer: dialer, locks: locks, credentials: credentials, preferred: preferred, logger: logger.Named("rpcexec")}
}

// Execute runs one RPC call and always returns a populated result — errors
// are reported in the result's OK/ErrorKind/Error fields rather than as a
// Go error, since the result is what gets sent back over the transport.
func (x *Executor) Execute(ctx context.Context, call wire.RPCCallPayload) wire.RPCResultPayload {
	timeout := time.Duration(call.TimeoutMS) * time.Millisecond
	if timeout <= 0 || timeout > maxRPCTimeout {
		timeout = maxRPCTimeout
	}

	release, ok := x.locks.TryAcquire(call.TargetIP)
	if !ok {
		return failResult(call.RequestID, wire.KindBusy, fmt.Errorf("switch %s is busy with a ZTP operation", call.TargetIP))
	}
	defer release()

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := x.dialer(dctx, call.TargetIP, x.credentials(), x.preferred())
	if err != nil {
		return failResult(call.RequestID, clisession.Kind(err), err)
	}
	defer sess.Close()

	out, err := x.run(dctx, sess, call)
	if err != nil {
		return failResult(call.RequestID, clisession.Kind(err), err)
	}
	return wire.RPCResultPayload{RequestID: call.RequestID, OK: true, Output: out}
}

func (x *Executor) run(ctx context.Context, sess ztp.Session, call wire.RPCCallPayload) (string, error) {
	switch call.Op {
	case wire.RPCOpRunShow:
		cmd, _ := call.Args["command"].(string)
		if cmd == "" {
			return "", fmt.Errorf("rpcexec: run_show requires args.command")
		}
		out, ok := sess.Run(ctx, cmd, maxRPCTimeout)
		if !ok {
			return "", fmt.Errorf("rpcexec: command %q failed", cmd)
		}
		return out, nil

	case wire.RPCOpPortStatus:
		port, _ := call.Args["port"].(string)
		out, ok := sess.Run(ctx, fmt.Sprintf("show interfaces ethernet %s", port), maxRPCTimeout)
		if !ok {
			return "", fmt.Errorf("rpcexec: port_status failed for %s", port)
		}
		return out, nil

	case wire.RPCOpSetVLAN:
		port, _ := call.Args["port"].(string)
		vlan, _ := call.Args["vlan"].(float64) // JSON numbers decode as float64
		if err := deviceops.SetPortVLAN(ctx, sess, port, int(vlan), deviceops.VLANModeAccess); err != nil {
			return "", err
		}
		return "ok", nil

	case wire.RPCOpSetPoE:
		port, _ := call.Args["port"].(string)
		on, _ := call.Args["on"].(bool)
		if err := deviceops.SetPoE(ctx, sess, port, on); err != nil {
			return "", err
		}
		return "ok", nil

	default:
		return "", fmt.Errorf("rpcexec: unknown op %q", call.Op)
	}
}

func failResult(requestID string, kind wire.ErrorKind, err error) wire.RPCResultPayload {
	return wire.RPCResultPayload{RequestID: requestID, OK: false, ErrorKind: string(kind), Error: err.Error()}
}
