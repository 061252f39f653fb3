package api

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/auth"
	"github.com/neuralconfig/ruckus-ztp/dashboard/internal/registry"
)

// PageHandler serves the operator-facing HTML views: the fleet list and
// the per-agent password-gated view, per spec §4.8. There is no SPA here
// — these are plain server-rendered pages, intentionally minimal.
type PageHandler struct {
	registry *registry.Registry
	sessions *auth.SessionStore
}

// NewPageHandler builds a PageHandler.
func NewPageHandler(reg *registry.Registry, sessions *auth.SessionStore) *PageHandler {
	return &PageHandler{registry: reg, sessions: sessions}
}

var listTemplate = template.Must(template.New("list").Parse(`<!DOCTYPE html>
<html><head><title>ztp-dashboard</title></head>
<body>
<h1>Edge agents</h1>
<table border="1" cellpadding="4">
<tr><th>Agent</th><th>Hostname</th><th>Subnet</th><th>Status</th><th>Last seen</th></tr>
{{range .}}
<tr>
<td><a href="/{{.AgentID}}">{{.AgentID}}</a></td>
<td>{{.Hostname}}</td>
<td>{{.Subnet}}</td>
<td>{{.Status}}</td>
<td>{{.LastSeen}}</td>
</tr>
{{end}}
</table>
</body></html>`))

// List handles GET /.
func (h *PageHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = listTemplate.Execute(w, h.registry.Summaries())
}

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><head><title>{{.AgentID}} — ztp-dashboard</title></head>
<body>
<h1>{{.AgentID}}</h1>
{{if .Error}}<p style="color:red">{{.Error}}</p>{{end}}
<form method="POST" action="/{{.AgentID}}">
<label>Password: <input type="password" name="password" autofocus></label>
<button type="submit">Unlock</button>
</form>
</body></html>`))

var agentTemplate = template.Must(template.New("agent").Parse(`<!DOCTYPE html>
<html><head><title>{{.AgentID}} — ztp-dashboard</title></head>
<body>
<h1>{{.AgentID}}</h1>
<p>Status: {{.Status}} — ZTP running: {{.ZTPRunning}}</p>
<p>Shadow inventory: {{len .ShadowInventory}} device(s)</p>
<p><a href="/api/edge-agents/{{.AgentID}}">JSON detail</a></p>
</body></html>`))

// Agent handles both GET and POST /{agent_id}. GET with no valid session
// cookie renders the password form; GET with one renders the agent view.
// POST validates the submitted password against the agent's stored hash
// and, on success, issues the opaque session cookie.
func (h *PageHandler) Agent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")

	detail, ok := h.registry.Detail(agentID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodPost {
		h.handleLogin(w, r, agentID)
		return
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionAgentID, ok := h.sessions.Validate(cookie.Value); ok && sessionAgentID == agentID {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_ = agentTemplate.Execute(w, detail)
			return
		}
	}

	h.renderLogin(w, agentID, "")
}

func (h *PageHandler) handleLogin(w http.ResponseWriter, r *http.Request, agentID string) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, agentID, "invalid form submission")
		return
	}

	hash, ok := h.registry.PasswordHash(agentID)
	if !ok || hash == "" {
		h.renderLogin(w, agentID, "this agent has not completed registration yet")
		return
	}

	if err := auth.Login(agentID, r.FormValue("password"), hash); err != nil {
		h.renderLogin(w, agentID, "incorrect password")
		return
	}

	token, expiresAt, err := h.sessions.Issue(agentID)
	if err != nil {
		h.renderLogin(w, agentID, "failed to start a session, try again")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/"+agentID, http.StatusSeeOther)
}

func (h *PageHandler) renderLogin(w http.ResponseWriter, agentID, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginTemplate.Execute(w, struct {
		AgentID string
		Error   string
	}{agentID, errMsg})
}
