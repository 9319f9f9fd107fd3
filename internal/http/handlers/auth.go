package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mindusforge/mindus-web/internal/http/middlewares"
	"github.com/mindusforge/mindus-web/internal/metrics"
	"github.com/mindusforge/mindus-web/internal/oauth"
	"github.com/mindusforge/mindus-web/internal/observability/logger"
	"github.com/mindusforge/mindus-web/internal/session"
	"github.com/mindusforge/mindus-web/internal/store"
)

// Error reason codes surfaced to the connect page. Machine-readable; the
// page decides how to word them.
const (
	reasonProviderError = "provider_error"
	reasonNoCode        = "no_code"
	reasonInvalidState  = "invalid_state"
	reasonTokenError    = "token_error"
	reasonNoToken       = "no_token"
	reasonUserinfoError = "userinfo_error"
	reasonDatabaseError = "database_error"
	reasonServerError   = "server_error"
)

// AuthHandler drives the OAuth login flow: redirect out, callback in,
// session establishment, logout.
type AuthHandler struct {
	Registry        *oauth.Registry
	Sessions        *session.Manager
	Store           *store.Client
	RedirectBaseURL string
	DashboardURL    string

	// NotFound renders the app's 404 page (unknown platform is terminal).
	NotFound http.HandlerFunc
}

// Register mounts the auth routes.
func (h *AuthHandler) Register(r chi.Router) {
	r.Get("/auth/logout", h.Logout)
	r.Get("/auth/{platform}", h.Login)
	r.Get("/auth/{platform}/callback", h.Callback)
}

func (h *AuthHandler) redirectURI(p oauth.Platform) string {
	return h.RedirectBaseURL + "/auth/" + p.String() + "/callback"
}

// Login handles GET /auth/{platform}: issues a fresh state token, binds it
// to the session and redirects to the provider's authorize URL.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	platform, ok := oauth.ParsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		h.NotFound(w, r)
		return
	}

	prov, err := h.Registry.Get(platform)
	if err != nil {
		h.NotFound(w, r)
		return
	}

	sess := h.Sessions.Load(r)
	state, err := oauth.IssueState(sess)
	if err != nil {
		h.fail(w, r, platform, reasonServerError, err)
		return
	}
	if err := h.Sessions.Save(r.Context(), w, sess); err != nil {
		h.fail(w, r, platform, reasonServerError, err)
		return
	}

	metrics.LoginStarted.WithLabelValues(platform.String()).Inc()
	http.Redirect(w, r, prov.AuthURL(state, h.redirectURI(platform)), http.StatusFound)
}

// Callback handles GET /auth/{platform}/callback and walks the rest of the
// flow: state check, code exchange, profile fetch, persistence, session.
// Every failure redirects to the connect page with a reason code; nothing
// is retried, the user restarts from Login.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("auth.callback"))

	platform, ok := oauth.ParsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		h.NotFound(w, r)
		return
	}
	log = log.With(logger.Platform(platform.String()))

	sess := h.Sessions.Load(r)
	q := r.URL.Query()

	if provErr := strings.TrimSpace(q.Get("error")); provErr != "" {
		log.Warn("provider returned error",
			logger.String("error", provErr),
			logger.String("description", q.Get("error_description")),
		)
		h.fail(w, r, platform, reasonProviderError, nil)
		return
	}

	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		h.fail(w, r, platform, reasonNoCode, nil)
		return
	}

	// El pop del state se persiste pase lo que pase: un token presentado
	// queda consumido aunque no valide.
	valid := oauth.ValidateState(sess, strings.TrimSpace(q.Get("state")))
	if err := h.Sessions.Save(ctx, w, sess); err != nil {
		h.fail(w, r, platform, reasonServerError, err)
		return
	}
	if !valid {
		h.fail(w, r, platform, reasonInvalidState, nil)
		return
	}

	prov, err := h.Registry.Get(platform)
	if err != nil {
		h.NotFound(w, r)
		return
	}

	token, err := prov.ExchangeCode(ctx, code, h.redirectURI(platform))
	if err != nil {
		if errors.Is(err, oauth.ErrNoAccessToken) {
			h.fail(w, r, platform, reasonNoToken, err)
		} else {
			h.fail(w, r, platform, reasonTokenError, err)
		}
		return
	}

	user, err := prov.FetchUser(ctx, token)
	if err != nil {
		h.fail(w, r, platform, reasonUserinfoError, err)
		return
	}

	rec, err := h.Store.Upsert(ctx, user)
	if err != nil || rec == nil {
		h.fail(w, r, platform, reasonDatabaseError, err)
		return
	}

	// Destino: next_url capturado por el gate si es un path relativo
	// del sitio, sino el dashboard.
	dest := h.DashboardURL
	if next := sess.Data.NextURL; isSafeRelativeURL(next) {
		dest = next
	}

	sess.Data = session.Data{
		UserID:    strconv.FormatInt(rec.ID, 10),
		Email:     rec.Email,
		Name:      rec.Name,
		Platform:  rec.Platform,
		AvatarURL: rec.AvatarURL,
		LoggedIn:  true,
		Permanent: true,
	}
	if err := h.Sessions.Save(ctx, w, sess); err != nil {
		h.fail(w, r, platform, reasonServerError, err)
		return
	}

	metrics.LoginCompleted.WithLabelValues(platform.String()).Inc()
	log.Info("login completed",
		logger.UserID(sess.Data.UserID),
		logger.String("username", rec.Username),
	)
	http.Redirect(w, r, dest, http.StatusFound)
}

// Logout handles GET /auth/logout: full session wipe, back to index.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Load(r)
	if err := h.Sessions.Clear(r.Context(), w, sess); err != nil {
		logger.From(r.Context()).Warn("session clear failed", logger.Err(err))
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, platform oauth.Platform, reason string, err error) {
	logger.From(r.Context()).Warn("oauth flow aborted",
		logger.Platform(platform.String()),
		logger.Reason(reason),
		logger.Err(err),
	)
	metrics.LoginFailed.WithLabelValues(platform.String(), reason).Inc()
	http.Redirect(w, r, middlewares.ConnectPath+"?error="+reason, http.StatusFound)
}

// isSafeRelativeURL acepta solo paths relativos al sitio ("/algo"),
// nunca URLs absolutas ni protocol-relative ("//evil").
func isSafeRelativeURL(u string) bool {
	return u != "" && strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//")
}
