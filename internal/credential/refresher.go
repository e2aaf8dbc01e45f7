package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mizroch-Management/ocma-sub004/internal/config"
)

// ErrNoRefreshToken means the stored token is expired and the platform gave
// us nothing to refresh with. Only the user re-authorizing the connection
// can recover from this.
var ErrNoRefreshToken = errors.New("no_refresh_token")

// RefreshError is a failed token-endpoint exchange.
type RefreshError struct {
	Platform string
	Reason   string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s token refresh failed: %s", e.Platform, e.Reason)
}

// expiryGrace is how close to expiry a token may get before we refresh it
// anyway, so it cannot expire mid-publish.
const expiryGrace = 60 * time.Second

// Refresher exchanges refresh tokens at each platform's token endpoint.
type Refresher struct {
	platforms map[string]config.PlatformConfig
	client    *http.Client
	now       func() time.Time
}

func NewRefresher(platforms map[string]config.PlatformConfig) *Refresher {
	return &Refresher{
		platforms: platforms,
		client:    &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

// EnsureValid returns the credential unchanged while it is comfortably
// inside its validity window, and a freshly exchanged one otherwise. The
// caller owns persisting a refreshed credential before using it.
func (r *Refresher) EnsureValid(ctx context.Context, c *Credential) (*Credential, error) {
	if !c.ExpiringWithin(r.now(), expiryGrace) {
		return c, nil
	}
	return r.Refresh(ctx, c)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
}

// Refresh exchanges the refresh token unconditionally. Used directly by the
// executor when a publish bounces with 401 on a token that looked valid.
func (r *Refresher) Refresh(ctx context.Context, c *Credential) (*Credential, error) {
	if c.RefreshToken == nil || *c.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	pc, ok := r.platforms[c.Platform]
	if !ok || pc.TokenURL == "" {
		return nil, &RefreshError{Platform: c.Platform, Reason: "no token endpoint configured"}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", *c.RefreshToken)
	form.Set("client_id", pc.ClientID)
	if pc.ClientSecret != "" {
		form.Set("client_secret", pc.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &RefreshError{Platform: c.Platform, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		reason := strings.TrimSpace(string(body))
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &RefreshError{Platform: c.Platform, Reason: reason}
	}

	var decoded tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &RefreshError{Platform: c.Platform, Reason: err.Error()}
	}
	if decoded.Error != "" {
		return nil, &RefreshError{Platform: c.Platform, Reason: decoded.Error}
	}
	if decoded.AccessToken == "" {
		return nil, &RefreshError{Platform: c.Platform, Reason: "empty access_token in response"}
	}

	next := &Credential{
		ID:           c.ID,
		TenantID:     c.TenantID,
		Platform:     c.Platform,
		AccessToken:  decoded.AccessToken,
		RefreshToken: c.RefreshToken,
	}
	// Some platforms rotate the refresh token on every exchange.
	if decoded.RefreshToken != "" {
		rt := decoded.RefreshToken
		next.RefreshToken = &rt
	}
	if decoded.ExpiresIn > 0 {
		exp := r.now().Add(time.Duration(decoded.ExpiresIn) * time.Second)
		next.ExpiresAt = &exp
	}
	return next, nil
}
