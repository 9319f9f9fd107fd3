package bitbucket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindusforge/mindus-web/internal/oauth"
	"github.com/mindusforge/mindus-web/internal/oauth/bitbucket"
)

func TestExchangeCode_SendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "token endpoint requires Basic auth")
		require.Equal(t, "cid", user)
		require.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "bb-tok",
			"refresh_token": "bb-refresh",
		})
	}))
	defer srv.Close()

	b := bitbucket.New("cid", "secret")
	b.TokenURL = srv.URL

	tok, err := b.ExchangeCode(context.Background(), "code", "https://app/cb")
	require.NoError(t, err)
	require.Equal(t, "bb-tok", tok.AccessToken)
	require.Equal(t, "bb-refresh", tok.RefreshToken)
}

func TestFetchUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2.0/user", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer bb-tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"uuid":         "{7f0e8c2a-1111-2222-3333-444455556666}",
			"username":     "jdoe",
			"display_name": "Jane Doe",
			"links": map[string]any{
				"avatar": map[string]string{"href": "https://bb.example/avatar"},
				"html":   map[string]string{"href": "https://bitbucket.org/jdoe/"},
			},
		})
	})
	mux.HandleFunc("/2.0/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": []map[string]any{
				{"email": "old@x.com", "is_primary": false, "is_confirmed": true},
				{"email": "jdoe@x.com", "is_primary": true, "is_confirmed": true},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := bitbucket.New("cid", "secret")
	b.UserURL = srv.URL + "/2.0/user"
	b.EmailsURL = srv.URL + "/2.0/user/emails"

	u, err := b.FetchUser(context.Background(), &oauth.Token{AccessToken: "bb-tok"})
	require.NoError(t, err)
	require.Equal(t, oauth.Bitbucket, u.Platform)
	require.Equal(t, "{7f0e8c2a-1111-2222-3333-444455556666}", u.PlatformID)
	require.Equal(t, "Jane Doe", u.Name)
	require.Equal(t, "jdoe@x.com", u.Email, "primary confirmed email wins")
	require.Equal(t, "https://bitbucket.org/jdoe/", u.ProfileURL)
}

func TestFetchUser_NoConfirmedEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2.0/user", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"uuid": "{u1}", "username": "ghost"})
	})
	mux.HandleFunc("/2.0/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": []map[string]any{
				{"email": "pending@x.com", "is_primary": true, "is_confirmed": false},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := bitbucket.New("cid", "secret")
	b.UserURL = srv.URL + "/2.0/user"
	b.EmailsURL = srv.URL + "/2.0/user/emails"

	u, err := b.FetchUser(context.Background(), &oauth.Token{AccessToken: "bb-tok"})
	require.NoError(t, err)
	require.Empty(t, u.Email, "unconfirmed emails never leak into the profile")
}
