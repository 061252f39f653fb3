// Package api implements the HTTP surface of the dashboard (C8): a
// go-chi/chi router exposing agent fleet status, inventory, events, and
// on-demand command/config/control endpoints, plus the per-agent
// password-gated HTML views.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// envelope is the standard JSON response wrapper. Success responses wrap
// the payload under "data"; error responses use wire's own {kind,message}
// error shape so a failure surfaced from an agent's ErrorKind and one
// originating in the dashboard itself look identical on the wire.
//
//	Success: {"data": <payload>}
//	Error:   {"error": {"kind": "...", "message": "..."}}
type envelope map[string]any

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Ok writes a 200 OK response with payload wrapped under "data".
func Ok(w http.ResponseWriter, payload any) {
	JSON(w, http.StatusOK, envelope{"data": payload})
}

// errBody is the shape of the "error" object.
type errBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrKind writes an error response, mapping kind to its HTTP status via
// wire.ErrorKind.HTTPStatus.
func ErrKind(w http.ResponseWriter, kind wire.ErrorKind, message string) {
	JSON(w, kind.HTTPStatus(), envelope{"error": errBody{Kind: string(kind), Message: message}})
}

// ErrBadRequest writes a 400 with a ParseError kind.
func ErrBadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, envelope{"error": errBody{Kind: string(wire.KindParseError), Message: message}})
}

// ErrUnauthorized writes a 401 with an AuthError kind.
func ErrUnauthorized(w http.ResponseWriter, message string) {
	ErrKind(w, wire.KindAuthError, message)
}

// ErrNotFound writes a 404 with a NotFound kind.
func ErrNotFound(w http.ResponseWriter, message string) {
	ErrKind(w, wire.KindNotFound, message)
}

// ErrInternal writes a 500 response. The internal error detail is
// intentionally not echoed back to the client.
func ErrInternal(w http.ResponseWriter) {
	ErrKind(w, wire.ErrorKind("InternalError"), "an internal error occurred")
}

// decodeJSON decodes the request body into dst, writing a 400 and
// returning false on failure so callers can early-return.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		ErrBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
