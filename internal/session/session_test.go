package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindusforge/mindus-web/internal/cache"
	"github.com/mindusforge/mindus-web/internal/session"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	return session.NewManager(cache.NewMemory("test:"), session.Options{
		CookieName: "mindus_session",
		SameSite:   "lax",
		TTL:        time.Hour,
	})
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	res := rec.Result()
	defer res.Body.Close()
	for _, ck := range res.Cookies() {
		if ck.Name == "mindus_session" {
			return ck
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLoad_NoCookieGivesFreshSession(t *testing.T) {
	m := newManager(t)

	r := httptest.NewRequest("GET", "/", nil)
	s := m.Load(r)
	require.NotEmpty(t, s.ID)
	require.Equal(t, session.Data{}, s.Data, "fresh session is anonymous")

	// Freshness per request: two loads give independent sessions.
	s2 := m.Load(httptest.NewRequest("GET", "/", nil))
	require.NotEqual(t, s.ID, s2.ID)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	m := newManager(t)

	rec := httptest.NewRecorder()
	s := m.Load(httptest.NewRequest("GET", "/", nil))
	s.Data.UserID = "42"
	s.Data.Email = "jdoe@example.com"
	s.Data.LoggedIn = true
	require.NoError(t, m.Save(context.Background(), rec, s))

	ck := sessionCookie(t, rec)
	require.Equal(t, s.ID, ck.Value, "cookie holds the opaque id, not the data")
	require.True(t, ck.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, ck.SameSite)

	r2 := httptest.NewRequest("GET", "/dashboard", nil)
	r2.AddCookie(ck)
	got := m.Load(r2)
	require.Equal(t, s.ID, got.ID)
	require.Equal(t, "42", got.Data.UserID)
	require.Equal(t, "jdoe@example.com", got.Data.Email)
	require.True(t, got.Data.LoggedIn)
}

func TestSave_CookieLifetime(t *testing.T) {
	m := newManager(t)

	// Non-permanent: browser-session cookie, no Max-Age/Expires.
	rec := httptest.NewRecorder()
	s := m.Load(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, m.Save(context.Background(), rec, s))
	require.Equal(t, 0, sessionCookie(t, rec).MaxAge)

	// Permanent: cookie carries the TTL.
	rec = httptest.NewRecorder()
	s.Data.Permanent = true
	require.NoError(t, m.Save(context.Background(), rec, s))
	require.Equal(t, int(time.Hour.Seconds()), sessionCookie(t, rec).MaxAge)
}

func TestLoad_UnknownCookieValue(t *testing.T) {
	m := newManager(t)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "mindus_session", Value: "gone-from-cache"})

	s := m.Load(r)
	require.NotEqual(t, "gone-from-cache", s.ID, "expired entry starts a fresh session")
	require.Equal(t, session.Data{}, s.Data)
}

func TestClear(t *testing.T) {
	m := newManager(t)

	rec := httptest.NewRecorder()
	s := m.Load(httptest.NewRequest("GET", "/", nil))
	s.Data.UserID = "42"
	s.Data.LoggedIn = true
	require.NoError(t, m.Save(context.Background(), rec, s))
	ck := sessionCookie(t, rec)

	rec2 := httptest.NewRecorder()
	require.NoError(t, m.Clear(context.Background(), rec2, s))
	require.Equal(t, session.Data{}, s.Data, "in-memory payload is wiped too")

	del := sessionCookie(t, rec2)
	require.Less(t, del.MaxAge, 0, "deletion cookie must expire immediately")

	// The old id no longer resolves.
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(ck)
	got := m.Load(r)
	require.NotEqual(t, s.ID, got.ID)
}
