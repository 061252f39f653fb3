package clisession

import (
	"errors"
	"fmt"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// TransientError wraps a recoverable I/O failure (dial timeout, reset
// connection). The ZTP engine retries on the next tick without surfacing an
// error event unless the failure persists across several ticks.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "clisession: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }
func (e *TransientError) Kind() wire.ErrorKind { return wire.KindTransientError }

// ProtocolError wraps an unexpected prompt, banner, or response shape. The
// engine fails only the command that produced it and continues the tick.
type ProtocolError struct{ Err error }

func (e *ProtocolError) Error() string { return "clisession: protocol: " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }
func (e *ProtocolError) Kind() wire.ErrorKind { return wire.KindProtocolError }

// AuthError wraps an authentication failure against a reachable device. It
// surfaces immediately as an error event; the device stays in status=error
// until credentials change.
type AuthError struct{ Err error }

func (e *AuthError) Error() string { return "clisession: auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }
func (e *AuthError) Kind() wire.ErrorKind { return wire.KindAuthError }

// TimeoutError wraps a command or save that did not complete within its
// allotted timeout.
type TimeoutError struct{ Op string }

func (e *TimeoutError) Error() string { return fmt.Sprintf("clisession: timeout running %q", e.Op) }
func (e *TimeoutError) Kind() wire.ErrorKind { return wire.KindTimeout }

// ErrUnreachable is returned by Open when the device never responds at the
// transport level — distinguishable from a reachable device rejecting every
// credential.
var ErrUnreachable = errors.New("clisession: device unreachable")

// kinder is implemented by every error type in this package so callers can
// classify an error without a type switch.
type kinder interface{ Kind() wire.ErrorKind }

// Kind extracts the wire.ErrorKind from err, defaulting to KindProtocolError
// for errors this package did not itself produce.
func Kind(err error) wire.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnreachable) {
		return wire.KindTransientError
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return wire.KindProtocolError
}
