// Package gitlab implements OAuth 2.0 authentication with GitLab.
// GitLab exposes the email directly on the profile, so no secondary
// lookup is needed.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mindusforge/mindus-web/internal/oauth"
)

const (
	authEndpoint  = "https://gitlab.com/oauth/authorize"
	tokenEndpoint = "https://gitlab.com/oauth/token"
	userEndpoint  = "https://gitlab.com/api/v4/user"

	defaultScope = "read_user"
)

// OAuth is the GitLab OAuth 2.0 client.
type OAuth struct {
	ClientID     string
	ClientSecret string
	Scope        string

	// Endpoint overrides, used by tests.
	AuthorizeURL string
	TokenURL     string
	UserURL      string

	http *http.Client
}

// New creates a new GitLab OAuth client.
func New(clientID, clientSecret string) *OAuth {
	return &OAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        defaultScope,
		AuthorizeURL: authEndpoint,
		TokenURL:     tokenEndpoint,
		UserURL:      userEndpoint,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Platform implements oauth.Provider.
func (g *OAuth) Platform() oauth.Platform { return oauth.GitLab }

// AuthURL builds the authorization URL for GitLab OAuth.
func (g *OAuth) AuthURL(state, redirectURI string) string {
	u, _ := url.Parse(g.AuthorizeURL)
	q := u.Query()
	q.Set("client_id", g.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", g.Scope)
	q.Set("state", state)
	q.Set("response_type", "code")
	u.RawQuery = q.Encode()
	return u.String()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error,omitempty"`
	ErrorDesc    string `json:"error_description,omitempty"`
}

// ExchangeCode exchanges an authorization code for tokens.
func (g *OAuth) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.Token, error) {
	form := url.Values{}
	form.Set("client_id", g.ClientID)
	form.Set("client_secret", g.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, "POST", g.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gitlab token endpoint: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("gitlab oauth error: %s - %s", tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return nil, oauth.ErrNoAccessToken
	}

	return &oauth.Token{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}, nil
}

type userInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	WebURL    string `json:"web_url"`
}

// FetchUser fetches the profile and normalizes it.
func (g *OAuth) FetchUser(ctx context.Context, token *oauth.Token) (*oauth.UserData, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", g.UserURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gitlab api error: status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &oauth.UserData{
		Platform:     oauth.GitLab,
		PlatformID:   strconv.FormatInt(info.ID, 10),
		Username:     info.Username,
		Name:         info.Name,
		Email:        info.Email,
		AvatarURL:    info.AvatarURL,
		ProfileURL:   info.WebURL,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}
