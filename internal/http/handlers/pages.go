package handlers

import (
	"net/http"

	"github.com/mindusforge/mindus-web/internal/http/middlewares"
	"github.com/mindusforge/mindus-web/internal/web"
)

// PagesHandler renders the template-backed pages. Public pages carry no
// context; protected pages receive the session principal, already loaded
// by the RequireLogin gate.
type PagesHandler struct {
	Renderer *web.Renderer
}

// Public returns a handler rendering the named page with no context.
func (h *PagesHandler) Public(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Renderer.Render(w, r, http.StatusOK, page, nil)
	}
}

// Protected returns a handler rendering the named page with the logged-in
// user context. Must sit behind middlewares.RequireLogin.
func (h *PagesHandler) Protected(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user *web.User
		if sess := middlewares.GetSession(r.Context()); sess != nil {
			user = &web.User{
				Email:    sess.Data.Email,
				Name:     sess.Data.Name,
				Platform: sess.Data.Platform,
				Avatar:   sess.Data.AvatarURL,
			}
		}
		h.Renderer.Render(w, r, http.StatusOK, page, user)
	}
}

// NotFound renders the index page with a 404 status, matching the app's
// single-page fallback behavior.
func (h *PagesHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, r, http.StatusNotFound, "index", nil)
}
