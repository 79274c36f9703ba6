package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr         error
	qrBlockedTill *time.Time
	qrFailsRet    int

	lastExecSQL  string
	lastExecArgs []any
	execErr      error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL = sql
	f.lastExecArgs = args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "SELECT blocked_until"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			if f.qrBlockedTill != nil {
				*(dest[0].(*time.Time)) = *f.qrBlockedTill
			} else {
				*(dest[0].(*time.Time)) = time.Time{}
			}
			return nil
		}}
	case strings.Contains(sql, "RETURNING fail_count"):
		return fakeRow{scan: func(dest ...any) error {
			if f.qrErr != nil {
				return f.qrErr
			}
			*(dest[0].(*int)) = f.qrFailsRet
			return nil
		}}
	default:
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
}

func newLimiter(fp *fakePool, now time.Time) *PG {
	l := NewPG(fp, 6*time.Hour, 3, 24*time.Hour)
	l.now = func() time.Time { return now }
	return l
}

func TestAllow_NoRow_Allows(t *testing.T) {
	l := newLimiter(&fakePool{qrErr: pgx.ErrNoRows}, time.Now())

	ok, dur, err := l.Allow(context.Background(), 1)
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow no-row: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestAllow_BlockedUntilFuture(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)
	l := newLimiter(&fakePool{qrBlockedTill: &until}, now)

	ok, dur, err := l.Allow(context.Background(), 1)
	if err != nil || ok || dur != 10*time.Minute {
		t.Fatalf("Allow blocked: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestAllow_PastOrEpoch_Allows(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	for _, fp := range []*fakePool{{qrBlockedTill: &past}, {}} {
		ok, dur, err := newLimiter(fp, now).Allow(context.Background(), 1)
		if err != nil || !ok || dur != 0 {
			t.Fatalf("Allow past: ok=%v dur=%v err=%v", ok, dur, err)
		}
	}
}

func TestAllow_DBError_Propagates(t *testing.T) {
	ok, _, err := newLimiter(&fakePool{qrErr: errors.New("db boom")}, time.Now()).Allow(context.Background(), 1)
	if err == nil || ok {
		t.Fatalf("want error propagate, got ok=%v err=%v", ok, err)
	}
}

func TestSuccess(t *testing.T) {
	fp := &fakePool{}
	if err := newLimiter(fp, time.Now()).Success(context.Background(), 7); err != nil {
		t.Fatalf("success err: %v", err)
	}
	if !strings.Contains(fp.lastExecSQL, "INSERT INTO sync_backoff") || fp.lastExecArgs[0] != int64(7) {
		t.Fatalf("unexpected exec: %s %v", fp.lastExecSQL, fp.lastExecArgs)
	}

	fp = &fakePool{execErr: errors.New("exec fail")}
	if err := newLimiter(fp, time.Now()).Success(context.Background(), 7); err == nil {
		t.Fatalf("want exec error")
	}
}

func TestFailure_BelowThreshold(t *testing.T) {
	blocked, dur, err := newLimiter(&fakePool{qrFailsRet: 2}, time.Now()).Failure(context.Background(), 1)
	if err != nil || blocked || dur != 0 {
		t.Fatalf("Failure no block: blocked=%v dur=%v err=%v", blocked, dur, err)
	}
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fp := &fakePool{qrFailsRet: 3}

	blocked, dur, err := newLimiter(fp, now).Failure(context.Background(), 5)
	if err != nil || !blocked || dur != 24*time.Hour {
		t.Fatalf("Failure block: blocked=%v dur=%v err=%v", blocked, dur, err)
	}
	if !strings.Contains(fp.lastExecSQL, "UPDATE sync_backoff SET blocked_until") {
		t.Fatalf("must update blocked_until, exec=%s", fp.lastExecSQL)
	}
	if got := fp.lastExecArgs[1].(time.Time); !got.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("blocked_until=%v", got)
	}
}

func TestFailure_DBErrorOnReturning(t *testing.T) {
	if _, _, err := newLimiter(&fakePool{qrErr: errors.New("query error")}, time.Now()).Failure(context.Background(), 1); err == nil {
		t.Fatalf("want error from returning fail_count")
	}
}
