package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
)

// sessionCookieName is the per-agent browser session cookie set by the
// password form at GET /{agent_id}, per spec §4.8.
const sessionCookieName = "ztp_session"

// RequireAgentSession gates a per-agent-scoped route behind the opaque
// session cookie issued by the password form — unauthenticated API calls
// for that agent return 401, per spec §4.8. The agent_id in the URL must
// match the session's bound agent; a valid cookie for a different agent
// does not grant access.
func RequireAgentSession(sessions *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := chi.URLParam(r, "agent_id")

			cookie, err := r.Cookie(sessionCookieName)
			if err != nil {
				ErrUnauthorized(w, "missing session cookie")
				return
			}

			sessionAgentID, ok := sessions.Validate(cookie.Value)
			if !ok || sessionAgentID != agentID {
				ErrUnauthorized(w, "session is not valid for this agent")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs each request's method, path, status, and latency,
// using Chi's wrapped response writer to capture the status code.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
