package lwa

import (
	"sync"
	"time"

	"github.com/and161185/fba-recon/internal/model"
)

// Cache holds one access token per account for the lifetime of the process.
// Entries are only replaced, never evicted.
type Cache struct {
	mu     sync.RWMutex
	tokens map[int64]model.AccessToken
	now    func() time.Time
}

// NewCache returns an empty cache. A nil clock uses time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{tokens: make(map[int64]model.AccessToken), now: now}
}

// Get returns the cached token if it is still valid margin before expiry.
func (c *Cache) Get(accountID int64, margin time.Duration) (model.AccessToken, bool) {
	c.mu.RLock()
	tok, ok := c.tokens[accountID]
	c.mu.RUnlock()
	if !ok || !tok.ValidAt(c.now(), margin) {
		return model.AccessToken{}, false
	}
	return tok, true
}

// Now reads the cache clock.
func (c *Cache) Now() time.Time { return c.now() }

// Put stores tok for accountID, overwriting any previous entry.
func (c *Cache) Put(accountID int64, tok model.AccessToken) {
	c.mu.Lock()
	c.tokens[accountID] = tok
	c.mu.Unlock()
}
