// Package lwa manages short-lived access tokens obtained from the identity
// provider with a long-lived refresh credential.
package lwa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/fba-recon/internal/errs"
)

const defaultExpiresIn = 3600 * time.Second

// ClientConfig identifies the application at the identity provider.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

// Grant is a successful token endpoint answer. The caller stamps the expiry
// with its own clock.
type Grant struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Client performs refresh-token grants against the token endpoint.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient constructs a token endpoint client. A nil httpClient uses a
// dedicated client bounded by cfg.Timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Refresh exchanges refreshToken for an access token. It does not retry:
// repeated failures usually mean a revoked grant and are the caller's call.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Grant{}, &errs.TokenExchangeError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Grant{}, &errs.TokenExchangeError{Cause: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Error != "" || parsed.ErrorDescription != "") {
			return Grant{}, &errs.TokenExchangeError{
				StatusCode:       resp.StatusCode,
				ErrorCode:        parsed.Error,
				ErrorDescription: parsed.ErrorDescription,
			}
		}
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return Grant{}, &errs.TokenExchangeError{StatusCode: resp.StatusCode, BodySnippet: msg}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Grant{}, &errs.TokenExchangeError{StatusCode: resp.StatusCode, Cause: err}
	}
	if out.AccessToken == "" {
		return Grant{}, &errs.TokenExchangeError{
			StatusCode: resp.StatusCode,
			Cause:      errors.New("response without access_token"),
		}
	}
	ttl := defaultExpiresIn
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}
	return Grant{AccessToken: out.AccessToken, ExpiresIn: ttl}, nil
}
