package lwa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/fba-recon/internal/errs"
)

type fakeVault struct {
	calls atomic.Int32
	err   error
}

func (f *fakeVault) Decrypt(token string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "plain-" + token, nil
}

type fakeExchanger struct {
	calls atomic.Int32
	ttl   time.Duration
	err   error
	delay time.Duration
	gotRT string
	mu    sync.Mutex
}

func (f *fakeExchanger) Refresh(_ context.Context, rt string) (Grant, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.gotRT = rt
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Grant{}, f.err
	}
	return Grant{AccessToken: "at-" + rt, ExpiresIn: f.ttl}, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestManager_SecondCallHitsCache(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)}
	v := &fakeVault{}
	ex := &fakeExchanger{ttl: time.Hour}
	m := NewManager(v, ex, NewCache(clk.Now), zaptest.NewLogger(t))

	ctx := context.Background()
	a, err := m.GetAccessToken(ctx, 7, "enc")
	require.NoError(t, err)
	clk.Advance(30 * time.Minute)
	b, err := m.GetAccessToken(ctx, 7, "enc")
	require.NoError(t, err)

	require.Equal(t, int32(1), ex.calls.Load())
	require.Equal(t, int32(1), v.calls.Load())
	require.Equal(t, a, b)
	require.Equal(t, "plain-enc", ex.gotRT)
}

func TestManager_ExpiryFollowsCacheClock(t *testing.T) {
	start := time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC)
	clk := &fakeClock{t: start}
	ex := &fakeExchanger{ttl: 2 * time.Hour}
	m := NewManager(&fakeVault{}, ex, NewCache(clk.Now), nil)

	tok, err := m.GetAccessToken(context.Background(), 3, "enc")
	require.NoError(t, err)
	require.Equal(t, start.Add(2*time.Hour), tok.ExpiresAt)

	clk.Advance(2*time.Hour - 2*time.Minute)
	_, err = m.GetAccessToken(context.Background(), 3, "enc")
	require.NoError(t, err)
	require.Equal(t, int32(1), ex.calls.Load())
}

func TestManager_RefreshesInsideSafetyMargin(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)}
	ex := &fakeExchanger{ttl: time.Hour}
	m := NewManager(&fakeVault{}, ex, NewCache(clk.Now), nil)

	ctx := context.Background()
	_, err := m.GetAccessToken(ctx, 1, "enc")
	require.NoError(t, err)

	clk.Advance(time.Hour - 59*time.Second)
	_, err = m.GetAccessToken(ctx, 1, "enc")
	require.NoError(t, err)
	require.Equal(t, int32(2), ex.calls.Load())
}

func TestManager_AccountsAreIndependent(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	ex := &fakeExchanger{ttl: time.Hour}
	m := NewManager(&fakeVault{}, ex, NewCache(clk.Now), nil)

	ctx := context.Background()
	_, _ = m.GetAccessToken(ctx, 1, "a")
	_, _ = m.GetAccessToken(ctx, 2, "b")
	_, _ = m.GetAccessToken(ctx, 1, "a")
	require.Equal(t, int32(2), ex.calls.Load())
}

func TestManager_ConcurrentMissesCoalesce(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	ex := &fakeExchanger{ttl: time.Hour, delay: 20 * time.Millisecond}
	m := NewManager(&fakeVault{}, ex, NewCache(clk.Now), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GetAccessToken(context.Background(), 42, "enc")
			if err != nil {
				t.Errorf("GetAccessToken: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), ex.calls.Load())
}

func TestManager_Errors(t *testing.T) {
	t.Run("vault", func(t *testing.T) {
		ex := &fakeExchanger{ttl: time.Hour}
		m := NewManager(&fakeVault{err: &errs.CredentialError{}}, ex, nil, nil)
		_, err := m.GetAccessToken(context.Background(), 1, "x")
		var ce *errs.CredentialError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, int32(0), ex.calls.Load())
	})
	t.Run("exchange not cached", func(t *testing.T) {
		ex := &fakeExchanger{ttl: time.Hour, err: &errs.TokenExchangeError{StatusCode: 400, ErrorCode: "invalid_grant"}}
		m := NewManager(&fakeVault{}, ex, nil, nil)
		_, err := m.GetAccessToken(context.Background(), 1, "x")
		var te *errs.TokenExchangeError
		require.ErrorAs(t, err, &te)
		_, _ = m.GetAccessToken(context.Background(), 1, "x")
		require.Equal(t, int32(2), ex.calls.Load())
	})
}

func TestClient_Refresh_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded;charset=UTF-8" {
			t.Errorf("content-type=%q", ct)
		}
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt" ||
			r.Form.Get("client_id") != "cid" || r.Form.Get("client_secret") != "csec" {
			t.Errorf("form=%v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"Atza|abc","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{ClientID: "cid", ClientSecret: "csec", TokenURL: srv.URL, Timeout: time.Second}, nil)

	g, err := c.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	require.Equal(t, "Atza|abc", g.AccessToken)
	require.Equal(t, time.Hour, g.ExpiresIn)
}

func TestClient_Refresh_DefaultExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"x"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{TokenURL: srv.URL}, srv.Client())
	g, err := c.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	require.Equal(t, defaultExpiresIn, g.ExpiresIn)
}

func TestClient_Refresh_Errors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		code    string
		snippet string
	}{
		{"oauth error", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"revoked"}`, "invalid_grant", ""},
		{"plain text", http.StatusBadGateway, "upstream down", "", "upstream down"},
		{"missing token", http.StatusOK, `{"expires_in":10}`, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{TokenURL: srv.URL}, srv.Client())
			_, err := c.Refresh(context.Background(), "rt")
			var te *errs.TokenExchangeError
			require.True(t, errors.As(err, &te), "want TokenExchangeError, got %v", err)
			require.Equal(t, tc.status, te.StatusCode)
			require.Equal(t, tc.code, te.ErrorCode)
			require.Equal(t, tc.snippet, te.BodySnippet)
		})
	}
}

func TestClient_Refresh_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{TokenURL: url, Timeout: time.Second}, nil)
	_, err := c.Refresh(context.Background(), "rt")
	var te *errs.TokenExchangeError
	require.ErrorAs(t, err, &te)
	require.NotNil(t, te.Cause)
}
