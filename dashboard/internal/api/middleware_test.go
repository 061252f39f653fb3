package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func mountGatedRoute(sessions *auth.SessionStore) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(RequireAgentSession(sessions))
		r.Get("/{agent_id}/secret", okHandler)
	})
	return r
}

func TestRequireAgentSessionRejectsMissingCookie(t *testing.T) {
	sessions := auth.NewSessionStore()
	r := mountGatedRoute(sessions)

	req := httptest.NewRequest(http.MethodGet, "/sw1/secret", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireAgentSessionRejectsSessionForDifferentAgent(t *testing.T) {
	sessions := auth.NewSessionStore()
	token, _, err := sessions.Issue("sw2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r := mountGatedRoute(sessions)

	req := httptest.NewRequest(http.MethodGet, "/sw1/secret", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireAgentSessionAllowsMatchingSession(t *testing.T) {
	sessions := auth.NewSessionStore()
	token, _, err := sessions.Issue("sw1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r := mountGatedRoute(sessions)

	req := httptest.NewRequest(http.MethodGet, "/sw1/secret", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
