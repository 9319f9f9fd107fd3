package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mindusforge/mindus-web/internal/session"
)

// APIHandler serves the small JSON surface consumed by page scripts.
type APIHandler struct {
	Sessions *session.Manager
}

type statusUser struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Avatar   string `json:"avatar"`
}

type statusResponse struct {
	LoggedIn bool        `json:"logged_in"`
	User     *statusUser `json:"user"`
}

// SessionStatus handles GET /api/session-status.
func (h *APIHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Load(r)

	resp := statusResponse{}
	if sess.Data.LoggedIn && sess.Data.UserID != "" {
		resp.LoggedIn = true
		resp.User = &statusUser{
			Email:    sess.Data.Email,
			Name:     sess.Data.Name,
			Platform: sess.Data.Platform,
			Avatar:   sess.Data.AvatarURL,
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}
