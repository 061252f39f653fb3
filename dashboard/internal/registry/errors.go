package registry

import "errors"

// ErrAgentOffline is wrapped into the error returned by Send when the
// target agent has no live connection.
var ErrAgentOffline = errors.New("agent offline")

// ErrAgentUnknown is returned by lookups for an agent id the registry has
// never seen.
var ErrAgentUnknown = errors.New("agent unknown")
