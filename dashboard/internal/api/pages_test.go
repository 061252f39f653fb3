package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
	"github.com/neuralconfig/ruckus-ztp/shared/authhash"
)

func mountPageRoutes(h *PageHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{agent_id}", h.Agent)
	r.Post("/{agent_id}", h.Agent)
	return r
}

func TestPageListRendersWithoutAgents(t *testing.T) {
	reg := registry.New(zap.NewNop())
	h := NewPageHandler(reg, auth.NewSessionStore())
	r := mountPageRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Edge agents") {
		t.Fatal("expected fleet list heading in response body")
	}
}

func TestPageAgentReturns404ForUnknownAgent(t *testing.T) {
	reg := registry.New(zap.NewNop())
	h := NewPageHandler(reg, auth.NewSessionStore())
	r := mountPageRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/sw1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestPageAgentRendersLoginFormWithoutSession(t *testing.T) {
	reg := registry.New(zap.NewNop())
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", mustHash(t, "secret"), nil)
	h := NewPageHandler(reg, auth.NewSessionStore())
	r := mountPageRoutes(h)

	req := httptest.NewRequest(http.MethodGet, "/sw1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Unlock") {
		t.Fatal("expected password form in response body")
	}
}

func TestPageAgentLoginRejectsWrongPassword(t *testing.T) {
	reg := registry.New(zap.NewNop())
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", mustHash(t, "secret"), nil)
	h := NewPageHandler(reg, auth.NewSessionStore())
	r := mountPageRoutes(h)

	form := url.Values{"password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/sw1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (re-rendered form)", w.Code)
	}
	if !strings.Contains(w.Body.String(), "incorrect password") {
		t.Fatal("expected incorrect-password message in response body")
	}
	if cookies := w.Result().Cookies(); len(cookies) != 0 {
		t.Fatal("expected no session cookie to be set on failed login")
	}
}

func TestPageAgentLoginIssuesSessionCookieOnSuccess(t *testing.T) {
	reg := registry.New(zap.NewNop())
	reg.Register("sw1", "host1", "10.0.0.0/24", "dev", mustHash(t, "secret"), nil)
	h := NewPageHandler(reg, auth.NewSessionStore())
	r := mountPageRoutes(h)

	form := url.Values{"password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/sw1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 redirect", w.Code)
	}

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ztp_session cookie to be set on successful login")
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := authhash.Hash(password)
	if err != nil {
		t.Fatalf("authhash.Hash: %v", err)
	}
	return hash
}
