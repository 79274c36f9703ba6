package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter with a sliding failure window and lockout.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. Failures further apart than
// window start a new count; maxFails failures block the account for blockFor.
func NewPG(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// Allow reports whether the account may sync now and a retry-after duration.
func (l *PG) Allow(ctx context.Context, accountID int64) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM sync_backoff WHERE account_id=$1`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, accountID).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for the account.
func (l *PG) Success(ctx context.Context, accountID int64) error {
	const q = `
INSERT INTO sync_backoff (account_id, fail_count, blocked_until, updated_at)
VALUES ($1,0,'epoch',now())
ON CONFLICT (account_id)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	_, err := l.pool.Exec(ctx, q, accountID)
	return err
}

// Failure records a failed sync; at the threshold it blocks the account.
func (l *PG) Failure(ctx context.Context, accountID int64) (bool, time.Duration, error) {
	const q = `
INSERT INTO sync_backoff (account_id, fail_count, blocked_until, updated_at)
VALUES ($1,1,'epoch',now())
ON CONFLICT (account_id) DO UPDATE
SET
  fail_count = CASE WHEN EXCLUDED.updated_at - sync_backoff.updated_at > $2::interval THEN 1 ELSE sync_backoff.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, accountID, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE sync_backoff SET blocked_until=$2 WHERE account_id=$1`
	if _, err := l.pool.Exec(ctx, upd, accountID, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
