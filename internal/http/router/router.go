// Package router wires the HTTP surface: auth flow, JSON API, pages,
// static assets and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindusforge/mindus-web/internal/http/handlers"
	mw "github.com/mindusforge/mindus-web/internal/http/middlewares"
	"github.com/mindusforge/mindus-web/internal/rate"
	"github.com/mindusforge/mindus-web/internal/session"
	"github.com/mindusforge/mindus-web/internal/web"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Sessions *session.Manager
	Auth     *handlers.AuthHandler
	API      *handlers.APIHandler
	Pages    *handlers.PagesHandler

	// LoginLimiter limita los endpoints de auth por IP. Nil desactiva.
	LoginLimiter rate.Limiter
}

// New builds the application handler.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID(), mw.WithLogging())

	r.Group(func(ar chi.Router) {
		if d.LoginLimiter != nil {
			ar.Use(mw.WithRateLimit(d.LoginLimiter))
		}
		d.Auth.Register(ar)
	})

	r.Get("/api/session-status", d.API.SessionStatus)

	// Páginas públicas: sin contexto.
	r.Get("/", d.Pages.Public("index"))
	r.Get("/connect", d.Pages.Public("connect"))
	r.Get("/about", d.Pages.Public("about"))
	r.Get("/pricing", d.Pages.Public("pricing"))
	r.Get("/terme", d.Pages.Public("terme"))
	r.Get("/privacy", d.Pages.Public("privacy"))
	r.Get("/notice", d.Pages.Public("notice"))

	// Páginas protegidas: detrás del gate de sesión.
	r.Group(func(pr chi.Router) {
		pr.Use(mw.RequireLogin(d.Sessions))
		pr.Get("/dashboard", d.Pages.Protected("dashboard"))
		pr.Get("/all_project", d.Pages.Protected("all_project"))
		pr.Get("/api-keys", d.Pages.Protected("api_keys"))
		pr.Get("/documentation", d.Pages.Protected("documentation"))
		pr.Get("/api-docs", d.Pages.Protected("api_docs"))
		pr.Get("/forge", d.Pages.Protected("forge"))
	})

	r.Handle("/static/*", web.Static())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(d.Pages.NotFound)
	return r
}
