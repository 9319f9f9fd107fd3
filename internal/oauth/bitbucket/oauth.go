// Package bitbucket implements OAuth 2.0 authentication with Bitbucket.
// Two quirks relative to the other providers: the token endpoint requires
// HTTP Basic auth with the client credentials, and the email always needs
// a secondary call to the emails endpoint.
package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mindusforge/mindus-web/internal/oauth"
)

const (
	authEndpoint   = "https://bitbucket.org/site/oauth2/authorize"
	tokenEndpoint  = "https://bitbucket.org/site/oauth2/access_token"
	userEndpoint   = "https://api.bitbucket.org/2.0/user"
	emailsEndpoint = "https://api.bitbucket.org/2.0/user/emails"

	defaultScope = "account email"
)

// OAuth is the Bitbucket OAuth 2.0 client.
type OAuth struct {
	ClientID     string
	ClientSecret string
	Scope        string

	// Endpoint overrides, used by tests.
	AuthorizeURL string
	TokenURL     string
	UserURL      string
	EmailsURL    string

	http *http.Client
}

// New creates a new Bitbucket OAuth client.
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
func (b *OAuth) Platform() oauth.Platform { return oauth.Bitbucket }

// AuthURL builds the authorization URL for Bitbucket OAuth.
func (b *OAuth) AuthURL(state, redirectURI string) string {
	u, _ := url.Parse(b.AuthorizeURL)
	q := u.Query()
	q.Set("client_id", b.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", b.Scope)
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
// Bitbucket rejects the exchange unless the client credentials also come
// as HTTP Basic auth.
func (b *OAuth) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.Token, error) {
	form := url.Values{}
	form.Set("client_id", b.ClientID)
	form.Set("client_secret", b.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, "POST", b.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(b.ClientID, b.ClientSecret)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bitbucket token endpoint: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("bitbucket oauth error: %s - %s", tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return nil, oauth.ErrNoAccessToken
	}

	return &oauth.Token{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}, nil
}

type userInfo struct {
	UUID        string `json:"uuid"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Links       struct {
		Avatar struct {
			Href string `json:"href"`
		} `json:"avatar"`
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

type emailList struct {
	Values []struct {
		Email       string `json:"email"`
		IsPrimary   bool   `json:"is_primary"`
		IsConfirmed bool   `json:"is_confirmed"`
	} `json:"values"`
}

// FetchUser fetches the profile and normalizes it. The uuid is the
// immutable identifier; usernames on Bitbucket can be changed.
func (b *OAuth) FetchUser(ctx context.Context, token *oauth.Token) (*oauth.UserData, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", b.UserURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bitbucket api error: status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	email, err := b.lookupEmail(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &oauth.UserData{
		Platform:     oauth.Bitbucket,
		PlatformID:   info.UUID,
		Username:     info.Username,
		Name:         info.DisplayName,
		Email:        email,
		AvatarURL:    info.Links.Avatar.Href,
		ProfileURL:   info.Links.HTML.Href,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// lookupEmail selects the primary confirmed email. None confirmed resolves
// to empty, not an error.
func (b *OAuth) lookupEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", b.EmailsURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bitbucket api error: status %d", resp.StatusCode)
	}

	var list emailList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("failed to decode emails: %w", err)
	}

	for _, e := range list.Values {
		if e.IsPrimary && e.IsConfirmed {
			return e.Email, nil
		}
	}
	return "", nil
}
