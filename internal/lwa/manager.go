package lwa

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/model"
)

// ExpiryMargin is how long before expiry a cached token stops being served.
const ExpiryMargin = 60 * time.Second

// Decrypter opens a stored refresh credential.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// Exchanger trades a refresh credential for an access token.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
}

// Manager serves per-account access tokens from a cache, exchanging the
// refresh credential only on a miss.
type Manager struct {
	vault    Decrypter
	exchange Exchanger
	cache    *Cache
	log      *zap.Logger

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewManager wires the token manager. A nil cache gets a fresh one.
func NewManager(vault Decrypter, exchange Exchanger, cache *Cache, log *zap.Logger) *Manager {
	if cache == nil {
		cache = NewCache(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{vault: vault, exchange: exchange, cache: cache, log: log, locks: make(map[int64]*sync.Mutex)}
}

// GetAccessToken returns a valid access token for accountID.
// The credential is decrypted only when an exchange is needed.
func (m *Manager) GetAccessToken(ctx context.Context, accountID int64, encryptedCredential string) (model.AccessToken, error) {
	if tok, ok := m.cache.Get(accountID, ExpiryMargin); ok {
		return tok, nil
	}

	l := m.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	// another caller may have refreshed while we waited
	if tok, ok := m.cache.Get(accountID, ExpiryMargin); ok {
		return tok, nil
	}
	if err := ctx.Err(); err != nil {
		return model.AccessToken{}, err
	}

	refresh, err := m.vault.Decrypt(encryptedCredential)
	if err != nil {
		return model.AccessToken{}, err
	}
	g, err := m.exchange.Refresh(ctx, refresh)
	if err != nil {
		m.log.Warn("token exchange failed", zap.Int64("account", accountID), zap.Error(err))
		return model.AccessToken{}, err
	}
	tok := model.AccessToken{Value: g.AccessToken, ExpiresAt: m.cache.Now().Add(g.ExpiresIn)}
	m.cache.Put(accountID, tok)
	m.log.Debug("access token refreshed", zap.Int64("account", accountID), zap.Time("expires_at", tok.ExpiresAt))
	return tok, nil
}

func (m *Manager) accountLock(accountID int64) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[accountID] = l
	}
	return l
}
