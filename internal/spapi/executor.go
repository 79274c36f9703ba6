// Package spapi executes authenticated, optionally signed calls against the
// marketplace platform REST API and classifies its failures.
package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/model"
)

const maxResponseBytes = 32 << 20

// DefaultGetRetries is how many times a transient GET failure is repeated.
const DefaultGetRetries = 2

// TokenSource yields a bearer token for an account.
type TokenSource interface {
	GetAccessToken(ctx context.Context, accountID int64, encryptedCredential string) (model.AccessToken, error)
}

// Options tune the executor. Zero values get sane defaults.
type Options struct {
	BaseURL        string
	Signer         Signer // nil disables request signing
	RequestTimeout time.Duration
	UserAgent      string
	GetRetries     uint64
	RetryBase      time.Duration
	HTTPClient     *http.Client
}

// Executor builds, authenticates, signs and sends platform requests.
type Executor struct {
	tokens TokenSource
	opts   Options
	client *http.Client
	log    *zap.Logger
}

// Call is one platform request on behalf of an account.
type Call struct {
	AccountID  int64
	Credential string
	Method     string
	Path       string
	Query      url.Values
	Body       any // marshalled as JSON; []byte and json.RawMessage are sent as is
}

// Response is a successful (status < 400) platform answer.
type Response struct {
	Status int
	Body   []byte
}

// JSON picks a value from the response body by gjson path.
func (r *Response) JSON(path string) gjson.Result { return gjson.GetBytes(r.Body, path) }

// NewExecutor constructs an Executor.
func NewExecutor(tokens TokenSource, opts Options, log *zap.Logger) *Executor {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "fba-recon/1.0 (Language=Go)"
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.GetRetries == 0 {
		opts.GetRetries = DefaultGetRetries
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: opts.RequestTimeout,
		}}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{tokens: tokens, opts: opts, client: client, log: log}
}

// Do sends the call once. Any status >= 400 becomes a *errs.RemoteAPIError
// or, for signature problems, a *errs.SigningRequiredError.
func (e *Executor) Do(ctx context.Context, c Call) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := e.tokens.GetAccessToken(ctx, c.AccountID, c.Credential)
	if err != nil {
		return nil, err
	}

	body, err := encodeBody(c.Body)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(e.opts.BaseURL, "/") + c.Path
	if len(c.Query) > 0 {
		endpoint += "?" + c.Query.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, c.Method, endpoint, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("X-Amz-Access-Token", tok.Value)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.opts.UserAgent)

	if e.opts.Signer != nil {
		if err := e.opts.Signer.Sign(ctx, req, body); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	e.log.Debug("platform call",
		zap.Int64("account", c.AccountID),
		zap.String("method", c.Method),
		zap.String("path", c.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return nil, classify(resp.StatusCode, c.Method, endpoint, raw)
	}
	return &Response{Status: resp.StatusCode, Body: raw}, nil
}

// Get sends an idempotent GET, repeating it on 429/5xx with exponential backoff.
func (e *Executor) Get(ctx context.Context, c Call) (*Response, error) {
	c.Method = http.MethodGet
	var out *Response
	b := retry.WithMaxRetries(e.opts.GetRetries, retry.NewExponential(e.opts.RetryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := e.Do(ctx, c)
		if err != nil {
			var ae *errs.RemoteAPIError
			if errors.As(err, &ae) && ae.Retryable() {
				e.log.Info("retrying platform GET", zap.String("path", c.Path), zap.Int("status", ae.StatusCode))
				return retry.RetryableError(err)
			}
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// Post sends a non-idempotent POST exactly once.
func (e *Executor) Post(ctx context.Context, c Call) (*Response, error) {
	c.Method = http.MethodPost
	return e.Do(ctx, c)
}

func classify(status int, method, endpoint string, raw []byte) error {
	detail := strings.TrimSpace(string(raw))
	if gjson.ValidBytes(raw) {
		var buf bytes.Buffer
		if json.Compact(&buf, raw) == nil {
			detail = buf.String()
		}
	}
	ae := &errs.RemoteAPIError{StatusCode: status, Method: method, Endpoint: endpoint, Detail: detail}
	if (status == http.StatusUnauthorized || status == http.StatusForbidden) &&
		(ae.Mentions("signature") || ae.Mentions("MissingAuthenticationToken")) {
		return &errs.SigningRequiredError{RemoteAPIError: ae}
	}
	return ae
}

func encodeBody(v any) ([]byte, error) {
	var body []byte
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		body = b
	case json.RawMessage:
		body = b
	default:
		var err error
		if body, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}
	return NormalizeReportTypeField(body)
}

// NormalizeReportTypeField strips legacy underscore wrapping from a
// top-level "reportType" string in a JSON body.
func NormalizeReportTypeField(body []byte) ([]byte, error) {
	rt := gjson.GetBytes(body, "reportType")
	if rt.Type != gjson.String {
		return body, nil
	}
	trimmed := TrimLegacyUnderscores(rt.String())
	if trimmed == rt.String() {
		return body, nil
	}
	return sjson.SetBytes(body, "reportType", trimmed)
}

// TrimLegacyUnderscores removes exactly one leading and one trailing
// underscore when both are present: "_GET_FOO_" -> "GET_FOO".
func TrimLegacyUnderscores(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, "_") && strings.HasSuffix(s, "_") {
		return s[1 : len(s)-1]
	}
	return s
}
