package web_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindusforge/mindus-web/internal/web"
)

func render(t *testing.T, page string, user *web.User) *httptest.ResponseRecorder {
	t.Helper()
	rd, err := web.NewRenderer()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rd.Render(rec, httptest.NewRequest("GET", "/", nil), http.StatusOK, page, user)
	return rec
}

func TestRender_AllPages(t *testing.T) {
	pages := []string{
		"index", "connect", "about", "pricing", "terme", "privacy", "notice",
		"dashboard", "all_project", "api_keys", "documentation", "api_docs", "forge",
	}
	for _, page := range pages {
		rec := render(t, page, nil)
		require.Equal(t, http.StatusOK, rec.Code, "page %s", page)
		body := rec.Body.String()
		require.Contains(t, body, "<!doctype html>", "page %s", page)
		require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	}
}

func TestRender_UserContext(t *testing.T) {
	rec := render(t, "dashboard", &web.User{Name: "Jane", Email: "jane@x.com", Platform: "github"})
	require.Contains(t, rec.Body.String(), "Jane")
}

func TestRender_EscapesUserData(t *testing.T) {
	rec := render(t, "dashboard", &web.User{Name: "<script>alert(1)</script>"})
	body := rec.Body.String()
	require.NotContains(t, body, "<script>alert(1)</script>")
}

func TestStatic(t *testing.T) {
	rec := httptest.NewRecorder()
	web.Static().ServeHTTP(rec, httptest.NewRequest("GET", "/static/css/main.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Header().Get("Content-Type"), "css") || rec.Body.Len() > 0)
}
