package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindusforge/mindus-web/internal/cache"
	"github.com/mindusforge/mindus-web/internal/http/handlers"
	"github.com/mindusforge/mindus-web/internal/http/router"
	"github.com/mindusforge/mindus-web/internal/oauth"
	"github.com/mindusforge/mindus-web/internal/oauth/github"
	"github.com/mindusforge/mindus-web/internal/session"
	"github.com/mindusforge/mindus-web/internal/store"
	"github.com/mindusforge/mindus-web/internal/web"
)

// fakeProvider emulates GitHub's three endpoints for the full flow.
type fakeProvider struct {
	srv *httptest.Server

	exchangeCalls int
	failExchange  bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.exchangeCalls++
		if f.failExchange {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gh-tok"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         583231,
			"login":      "octocat",
			"name":       "The Octocat",
			"email":      "octocat@github.com",
			"avatar_url": "https://avatars.example/u/583231",
			"html_url":   "https://github.com/octocat",
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) adapter() *github.OAuth {
	g := github.New("cid", "secret")
	g.AuthorizeURL = f.srv.URL + "/login/oauth/authorize"
	g.TokenURL = f.srv.URL + "/login/oauth/access_token"
	g.UserURL = f.srv.URL + "/user"
	g.EmailsURL = f.srv.URL + "/user/emails"
	return g
}

// fakeProfileStore emulates the record API with one in-memory table.
type fakeProfileStore struct {
	srv  *httptest.Server
	rows []map[string]any

	failCreate bool
}

func newFakeProfileStore(t *testing.T) *fakeProfileStore {
	t.Helper()
	f := &fakeProfileStore{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			out := []map[string]any{}
			for _, row := range f.rows {
				if row["platform"] == q.Get("filter__platform__equal") &&
					row["platform_id"] == q.Get("filter__platform_id__equal") {
					out = append(out, row)
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"count": len(out), "results": out})
		case http.MethodPost:
			if f.failCreate {
				http.Error(w, `{"error":"ERROR_NO_PERMISSION"}`, http.StatusUnauthorized)
				return
			}
			var row map[string]any
			_ = json.NewDecoder(r.Body).Decode(&row)
			row["id"] = float64(len(f.rows) + 1)
			f.rows = append(f.rows, row)
			_ = json.NewEncoder(w).Encode(row)
		case http.MethodPatch:
			var patch map[string]any
			_ = json.NewDecoder(r.Body).Decode(&patch)
			row := f.rows[0]
			for k, v := range patch {
				row[k] = v
			}
			_ = json.NewEncoder(w).Encode(row)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

type env struct {
	app      *httptest.Server
	client   *http.Client
	provider *fakeProvider
	profiles *fakeProfileStore
}

func newEnv(t *testing.T) *env {
	t.Helper()

	provider := newFakeProvider(t)
	profiles := newFakeProfileStore(t)

	sessions := session.NewManager(cache.NewMemory("test:"), session.Options{
		CookieName: "mindus_session",
		SameSite:   "lax",
		TTL:        time.Hour,
	})

	renderer, err := web.NewRenderer()
	require.NoError(t, err)
	pages := &handlers.PagesHandler{Renderer: renderer}

	app := httptest.NewServer(router.New(router.Deps{
		Sessions: sessions,
		Auth: &handlers.AuthHandler{
			Registry:        oauth.NewRegistry(provider.adapter()),
			Sessions:        sessions,
			Store:           store.New(profiles.srv.URL, "tok", "900"),
			RedirectBaseURL: "http://app.test",
			DashboardURL:    "/dashboard",
			NotFound:        pages.NotFound,
		},
		API:   &handlers.APIHandler{Sessions: sessions},
		Pages: pages,
	}))
	t.Cleanup(app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &env{
		app:      app,
		provider: provider,
		profiles: profiles,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (e *env) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.app.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// startLogin walks /auth/github and returns the state bound to the session.
func (e *env) startLogin(t *testing.T) string {
	t.Helper()
	resp := e.get(t, "/auth/github")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/login/oauth/authorize", loc.Path)

	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (e *env) sessionStatus(t *testing.T) (bool, map[string]any) {
	t.Helper()
	resp := e.get(t, "/api/session-status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		LoggedIn bool           `json:"logged_in"`
		User     map[string]any `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.LoggedIn, body.User
}

func TestLogin_UnknownPlatform(t *testing.T) {
	e := newEnv(t)
	resp := e.get(t, "/auth/google")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Zero(t, e.provider.exchangeCalls)
}

func TestLogin_RedirectsWithState(t *testing.T) {
	e := newEnv(t)

	first := e.startLogin(t)
	second := e.startLogin(t)
	require.NotEqual(t, first, second, "every attempt gets a fresh state")
}

func TestCallback_FullFlow(t *testing.T) {
	e := newEnv(t)
	state := e.startLogin(t)

	resp := e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))

	loggedIn, user := e.sessionStatus(t)
	require.True(t, loggedIn)
	require.Equal(t, "octocat@github.com", user["email"])
	require.Equal(t, "github", user["platform"])

	// The profile landed in the store exactly once.
	require.Len(t, e.profiles.rows, 1)
	require.Equal(t, "583231", e.profiles.rows[0]["platform_id"])

	// And protected pages open.
	page := e.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, page.StatusCode)
}

func TestCallback_ReplayIsRejected(t *testing.T) {
	e := newEnv(t)
	state := e.startLogin(t)

	resp := e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, 1, e.provider.exchangeCalls)

	// Same callback again: the state was consumed, no second exchange.
	resp = e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/connect?error=invalid_state", resp.Header.Get("Location"))
	require.Equal(t, 1, e.provider.exchangeCalls)
}

func TestCallback_WrongState(t *testing.T) {
	e := newEnv(t)
	e.startLogin(t)

	resp := e.get(t, "/auth/github/callback?code=c0de&state=forged")
	require.Equal(t, "/connect?error=invalid_state", resp.Header.Get("Location"))
	require.Zero(t, e.provider.exchangeCalls, "no exchange on a forged state")

	// The forged attempt burned the real state too.
	loggedIn, _ := e.sessionStatus(t)
	require.False(t, loggedIn)
}

func TestCallback_ProviderError(t *testing.T) {
	e := newEnv(t)
	e.startLogin(t)

	resp := e.get(t, "/auth/github/callback?error=access_denied&error_description=x")
	require.Equal(t, "/connect?error=provider_error", resp.Header.Get("Location"))
}

func TestCallback_MissingCode(t *testing.T) {
	e := newEnv(t)
	state := e.startLogin(t)

	resp := e.get(t, "/auth/github/callback?state="+url.QueryEscape(state))
	require.Equal(t, "/connect?error=no_code", resp.Header.Get("Location"))
}

func TestCallback_ExchangeFailure(t *testing.T) {
	e := newEnv(t)
	e.provider.failExchange = true
	state := e.startLogin(t)

	resp := e.get(t, "/auth/github/callback?code=bad&state="+url.QueryEscape(state))
	require.Equal(t, "/connect?error=token_error", resp.Header.Get("Location"))

	loggedIn, _ := e.sessionStatus(t)
	require.False(t, loggedIn)
}

func TestCallback_StoreFailure(t *testing.T) {
	e := newEnv(t)
	e.profiles.failCreate = true
	state := e.startLogin(t)

	resp := e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))
	require.Equal(t, "/connect?error=database_error", resp.Header.Get("Location"))

	loggedIn, _ := e.sessionStatus(t)
	require.False(t, loggedIn, "no session without a persisted profile")
}

func TestProtectedPage_CapturesNextURL(t *testing.T) {
	e := newEnv(t)

	// Anonymous hit on a protected page bounces to connect...
	resp := e.get(t, "/forge")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/connect", resp.Header.Get("Location"))

	// ...and the login that follows lands back there, not on the dashboard.
	state := e.startLogin(t)
	resp = e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))
	require.Equal(t, "/forge", resp.Header.Get("Location"))
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	state := e.startLogin(t)
	e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))

	loggedIn, _ := e.sessionStatus(t)
	require.True(t, loggedIn)

	resp := e.get(t, "/auth/logout")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	loggedIn, user := e.sessionStatus(t)
	require.False(t, loggedIn)
	require.Nil(t, user, "anonymous status carries a null user")

	resp = e.get(t, "/dashboard")
	require.Equal(t, http.StatusFound, resp.StatusCode, "protected pages close again")
}

func TestRepeatLogin_SingleStoreRow(t *testing.T) {
	e := newEnv(t)

	state := e.startLogin(t)
	e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))
	e.get(t, "/auth/logout")

	state = e.startLogin(t)
	e.get(t, "/auth/github/callback?code=c0de&state="+url.QueryEscape(state))

	require.Len(t, e.profiles.rows, 1, "same identity never duplicates the profile row")
	loggedIn, _ := e.sessionStatus(t)
	require.True(t, loggedIn)
}

func TestPublicPages(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/", "/connect", "/about", "/pricing", "/terme", "/privacy", "/notice"} {
		resp := e.get(t, path)
		require.Equal(t, http.StatusOK, resp.StatusCode, "path %s", path)
		require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"), "path %s", path)
	}
}

func TestUnknownRouteRendersNotFound(t *testing.T) {
	e := newEnv(t)
	resp := e.get(t, "/no-such-page")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	resp := e.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
