package middlewares

import (
	"net/http"

	"github.com/mindusforge/mindus-web/internal/observability/logger"
	"github.com/mindusforge/mindus-web/internal/session"
)

// ConnectPath is where anonymous visitors are sent when a protected page
// denies access.
const ConnectPath = "/connect"

// RequireLogin gates protected pages on session presence. Without a logged
// in principal it captures the requested URL for a post-login redirect and
// bounces to the connect page. With one, the session rides the context for
// the handler to read.
func RequireLogin(sm *session.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sm.Load(r)
			if sess.Data.UserID == "" {
				sess.Data.NextURL = r.URL.RequestURI()
				if err := sm.Save(r.Context(), w, sess); err != nil {
					logger.From(r.Context()).Warn("failed to capture next_url", logger.Err(err))
				}
				http.Redirect(w, r, ConnectPath, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
		})
	}
}
