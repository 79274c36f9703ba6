// Package limiter keeps accounts with failing credentials out of scheduled
// sync for a while instead of hitting the identity provider on every run.
package limiter

import (
	"context"
	"time"
)

// Limiter tracks consecutive sync failures per account.
type Limiter interface {
	// Allow reports whether the account may sync now and, if not, for how long it stays blocked.
	Allow(ctx context.Context, accountID int64) (bool, time.Duration, error)
	// Success resets the account's counters.
	Success(ctx context.Context, accountID int64) error
	// Failure records a credential failure; may place a temporary block.
	Failure(ctx context.Context, accountID int64) (bool, time.Duration, error)
}
