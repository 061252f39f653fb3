package wire

// ErrorKind is the machine-readable classification of a failure, carried in
// {error:{kind,message}} HTTP bodies and in RPCResultPayload/ErrorPayload.
// Kinds are named after the cause, not the Go error type, so they stay
// meaningful across the WebSocket boundary.
type ErrorKind string

const (
	KindAuthError      ErrorKind = "AuthError"
	KindTransientError ErrorKind = "TransientError"
	KindProtocolError  ErrorKind = "ProtocolError"
	KindParseError     ErrorKind = "ParseError"
	KindTimeout        ErrorKind = "Timeout"
	KindBusy           ErrorKind = "Busy"
	KindAgentOffline   ErrorKind = "AgentOffline"
	KindRateLimited    ErrorKind = "RateLimited"
	KindConfigError    ErrorKind = "ConfigError"
	KindNotFound       ErrorKind = "NotFound"
)

// HTTPStatus maps an ErrorKind to the HTTP status code the dashboard API
// should return for it.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindAuthError:
		return 401
	case KindBusy:
		return 409
	case KindAgentOffline:
		return 502
	case KindRateLimited:
		return 429
	case KindConfigError, KindParseError, KindProtocolError:
		return 422
	case KindTimeout:
		return 504
	case KindNotFound:
		return 404
	default:
		return 500
	}
}
