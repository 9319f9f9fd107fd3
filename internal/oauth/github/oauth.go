// Package github implements OAuth 2.0 authentication with GitHub.
// GitHub has no OIDC id_token, so the profile requires a separate API call,
// and private emails need a second call to the emails endpoint.
package github

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
	authEndpoint   = "https://github.com/login/oauth/authorize"
	tokenEndpoint  = "https://github.com/login/oauth/access_token"
	userEndpoint   = "https://api.github.com/user"
	emailsEndpoint = "https://api.github.com/user/emails"

	defaultScope = "read:user user:email"
)

// OAuth is the GitHub OAuth 2.0 client.
type OAuth struct {
	ClientID     string
	ClientSecret string
	Scope        string

	// Endpoint overrides, used by tests. Defaults point at github.com.
	AuthorizeURL string
	TokenURL     string
	UserURL      string
	EmailsURL    string

	http *http.Client
}

// New creates a new GitHub OAuth client.
func New(clientID, clientSecret string) *OAuth {
	return &OAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        defaultScope,
		AuthorizeURL: authEndpoint,
		TokenURL:     tokenEndpoint,
		UserURL:      userEndpoint,
		EmailsURL:    emailsEndpoint,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Platform implements oauth.Provider.
func (g *OAuth) Platform() oauth.Platform { return oauth.GitHub }

// AuthURL builds the authorization URL for GitHub OAuth.
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
	Scope        string `json:"scope"`
	Error        string `json:"error,omitempty"`
	ErrorDesc    string `json:"error_description,omitempty"`
}

// ExchangeCode exchanges an authorization code for an access token.
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
		return nil, fmt.Errorf("github token endpoint: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("github oauth error: %s - %s", tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return nil, oauth.ErrNoAccessToken
	}

	return &oauth.Token{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}, nil
}

type userInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type emailInfo struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchUser fetches the profile and normalizes it. GitHub may omit the
// email from /user; in that case the emails endpoint decides.
func (g *OAuth) FetchUser(ctx context.Context, token *oauth.Token) (*oauth.UserData, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", g.UserURL, nil)
	if err != nil {
		return nil, err
	}
	// GitHub's API uses the "token" scheme, not "Bearer".
	req.Header.Set("Authorization", "token "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api error: status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	email := info.Email
	if email == "" {
		email, err = g.lookupEmail(ctx, token.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	return &oauth.UserData{
		Platform:     oauth.GitHub,
		PlatformID:   strconv.FormatInt(info.ID, 10),
		Username:     info.Login,
		Name:         info.Name,
		Email:        email,
		AvatarURL:    info.AvatarURL,
		ProfileURL:   info.HTMLURL,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// lookupEmail selects the primary verified email, falling back to any
// verified one. No verified email at all resolves to empty, not an error.
func (g *OAuth) lookupEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", g.EmailsURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "token "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github api error: status %d", resp.StatusCode)
	}

	var emails []emailInfo
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", fmt.Errorf("failed to decode emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}
