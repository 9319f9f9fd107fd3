// Package store is the HTTP client for the external profile store, a
// record-oriented table API (Baserow). It owns the single write path for
// user identity: find-or-create keyed by (platform, platform_id).
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mindusforge/mindus-web/internal/metrics"
	"github.com/mindusforge/mindus-web/internal/oauth"
	"github.com/mindusforge/mindus-web/internal/observability/logger"
)

// Record is the profile-store-side user row.
type Record struct {
	ID           int64  `json:"id,omitempty"`
	Platform     string `json:"platform"`
	PlatformID   string `json:"platform_id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	AvatarURL    string `json:"avatar_url"`
	ProfileURL   string `json:"profile_url"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	LastLoginAt  string `json:"last_login_at,omitempty"`
}

// Client talks to the profile store over HTTP. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	tableID string

	http *http.Client
	now  func() time.Time
}

// New creates a profile store client.
func New(baseURL, token, tableID string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		tableID: tableID,
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

// rowsURL is the table rows collection endpoint.
func (c *Client) rowsURL() string {
	return fmt.Sprintf("%s/api/database/rows/table/%s/", c.baseURL, c.tableID)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

type listResponse struct {
	Results []Record `json:"results"`
}

// FindByPlatformID looks up the record for (platform, platform_id).
// Transport or decode failures degrade to "not found": they are logged but
// never block a login. See the upsert path for the consequence.
func (c *Client) FindByPlatformID(ctx context.Context, platform oauth.Platform, platformID string) (*Record, bool) {
	log := logger.From(ctx).With(logger.Component("store"))

	q := url.Values{}
	q.Set("user_field_names", "true")
	q.Set("filter__platform__equal", string(platform))
	q.Set("filter__platform_id__equal", platformID)

	status, body, err := c.do(ctx, "GET", c.rowsURL()+"?"+q.Encode(), nil)
	if err != nil {
		metrics.StoreRequests.WithLabelValues("find", "error").Inc()
		log.Warn("profile store lookup failed, treating as not found",
			logger.Platform(string(platform)), logger.Err(err))
		return nil, false
	}
	if status != http.StatusOK {
		metrics.StoreRequests.WithLabelValues("find", "error").Inc()
		log.Warn("profile store lookup non-200, treating as not found",
			logger.Platform(string(platform)), logger.Status(status),
			logger.String("body", truncate(body)))
		return nil, false
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		metrics.StoreRequests.WithLabelValues("find", "error").Inc()
		log.Warn("profile store lookup decode failed, treating as not found",
			logger.Platform(string(platform)), logger.Err(err))
		return nil, false
	}
	if len(list.Results) == 0 {
		metrics.StoreRequests.WithLabelValues("find", "miss").Inc()
		return nil, false
	}

	metrics.StoreRequests.WithLabelValues("find", "hit").Inc()
	return &list.Results[0], true
}

// Upsert persists the identity: update when a record for the pair exists,
// create otherwise. Calling it repeatedly with the same (platform,
// platform_id) never produces duplicates. An update failure returns the
// stale existing record rather than failing the login; only a failed
// create returns an error.
func (c *Client) Upsert(ctx context.Context, u *oauth.UserData) (*Record, error) {
	log := logger.From(ctx).With(logger.Component("store"), logger.Platform(string(u.Platform)))
	nowStr := c.now().UTC().Format(time.RFC3339)

	existing, found := c.FindByPlatformID(ctx, u.Platform, u.PlatformID)
	if found {
		patch := map[string]any{
			"username":      u.Username,
			"name":          u.Name,
			"email":         u.Email,
			"avatar_url":    u.AvatarURL,
			"profile_url":   u.ProfileURL,
			"access_token":  u.AccessToken,
			"refresh_token": u.RefreshToken,
			"last_login_at": nowStr,
		}
		rowURL := fmt.Sprintf("%s%d/?user_field_names=true", c.rowsURL(), existing.ID)

		status, body, err := c.do(ctx, "PATCH", rowURL, patch)
		if err != nil || status != http.StatusOK {
			metrics.StoreRequests.WithLabelValues("update", "error").Inc()
			log.Warn("profile store update failed, returning stale record",
				logger.Status(status), logger.Err(err))
			return existing, nil
		}

		var updated Record
		if err := json.Unmarshal(body, &updated); err != nil {
			metrics.StoreRequests.WithLabelValues("update", "error").Inc()
			log.Warn("profile store update decode failed, returning stale record", logger.Err(err))
			return existing, nil
		}
		metrics.StoreRequests.WithLabelValues("update", "ok").Inc()
		return &updated, nil
	}

	rec := Record{
		Platform:     string(u.Platform),
		PlatformID:   u.PlatformID,
		Username:     u.Username,
		Name:         u.Name,
		Email:        u.Email,
		AvatarURL:    u.AvatarURL,
		ProfileURL:   u.ProfileURL,
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		CreatedAt:    nowStr,
		LastLoginAt:  nowStr,
	}

	status, body, err := c.do(ctx, "POST", c.rowsURL()+"?user_field_names=true", rec)
	if err != nil {
		metrics.StoreRequests.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("store: create failed: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		metrics.StoreRequests.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("store: create failed: status %d body %s", status, truncate(body))
	}

	var created Record
	if err := json.Unmarshal(body, &created); err != nil {
		metrics.StoreRequests.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("store: create decode failed: %w", err)
	}
	metrics.StoreRequests.WithLabelValues("create", "ok").Inc()
	return &created, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
