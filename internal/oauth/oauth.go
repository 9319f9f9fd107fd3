// Package oauth defines the provider abstraction for third-party logins.
//
// Each supported platform (GitHub, GitLab, Bitbucket) implements Provider in
// its own subpackage; the Registry is built once at startup and is read-only
// afterwards.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Platform identifies a supported identity provider. The set is closed:
// anything outside the three constants fails ParsePlatform.
type Platform string

const (
	GitHub    Platform = "github"
	GitLab    Platform = "gitlab"
	Bitbucket Platform = "bitbucket"
)

// ParsePlatform maps a path segment to a Platform.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case GitHub:
		return GitHub, true
	case GitLab:
		return GitLab, true
	case Bitbucket:
		return Bitbucket, true
	}
	return "", false
}

func (p Platform) String() string { return string(p) }

// Token is the result of a successful authorization-code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
}

// UserData is the canonical user shape every adapter normalizes into.
// PlatformID is the provider's immutable user identifier, never the
// username (usernames can change).
type UserData struct {
	Platform     Platform
	PlatformID   string
	Username     string
	Name         string
	Email        string // may be empty: some providers never expose one
	AvatarURL    string
	ProfileURL   string
	AccessToken  string
	RefreshToken string
}

// Provider is implemented once per platform.
type Provider interface {
	// Platform returns the provider identity.
	Platform() Platform

	// AuthURL builds the authorization redirect URL.
	AuthURL(state, redirectURI string) string

	// ExchangeCode trades an authorization code for tokens.
	// Returns ErrNoAccessToken when the provider answered 200 without a token.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Token, error)

	// FetchUser retrieves and normalizes the user profile, including any
	// secondary email lookup the platform requires.
	FetchUser(ctx context.Context, token *Token) (*UserData, error)
}

// Errors shared across adapters.
var (
	ErrUnknownPlatform = errors.New("oauth: unknown platform")
	ErrNoAccessToken   = errors.New("oauth: no access token in response")
)

// Registry holds the configured providers. Immutable after New.
type Registry struct {
	providers map[Platform]Provider
}

// NewRegistry registers the given providers. A provider with empty
// credentials is still registered; its exchange fails later with context.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[Platform]Provider, len(list))
	for _, p := range list {
		m[p.Platform()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider for a platform.
func (r *Registry) Get(p Platform) (Provider, error) {
	prov, ok := r.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
	}
	return prov, nil
}
