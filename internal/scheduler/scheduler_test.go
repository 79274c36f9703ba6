package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/model"
	"github.com/and161185/fba-recon/internal/service"
)

type fakeAccounts struct {
	list []model.Account
	err  error
}

func (f fakeAccounts) ListActive(context.Context) ([]model.Account, error) { return f.list, f.err }

type fakePipeline struct {
	pulls   map[int64]service.PullSummary
	pullErr map[int64]error
	recon   []int64
	start   time.Time
	end     time.Time
}

func (f *fakePipeline) PullReports(_ context.Context, id int64, start, end time.Time) (service.PullSummary, error) {
	f.start, f.end = start, end
	return f.pulls[id], f.pullErr[id]
}

func (f *fakePipeline) Reconcile(_ context.Context, id int64, _, _ time.Time) ([]model.ReconciliationResult, error) {
	f.recon = append(f.recon, id)
	return nil, nil
}

type fakeLimiter struct {
	blocked   map[int64]bool
	successes []int64
	failures  []int64
}

func (f *fakeLimiter) Allow(_ context.Context, id int64) (bool, time.Duration, error) {
	if f.blocked[id] {
		return false, time.Hour, nil
	}
	return true, 0, nil
}

func (f *fakeLimiter) Success(_ context.Context, id int64) error {
	f.successes = append(f.successes, id)
	return nil
}

func (f *fakeLimiter) Failure(_ context.Context, id int64) (bool, time.Duration, error) {
	f.failures = append(f.failures, id)
	return false, 0, nil
}

type fakeHealth struct{ states []bool }

func (f *fakeHealth) SetServing(ok bool) { f.states = append(f.states, ok) }

func TestSyncJob_Run(t *testing.T) {
	credErr := &errs.TokenExchangeError{StatusCode: 400, ErrorCode: "invalid_grant"}
	revoked := service.PullSummary{Kinds: []service.KindSummary{
		{Kind: service.KindReturns, Err: credErr}, {Kind: service.KindRemovals, Err: credErr},
	}}
	pipe := &fakePipeline{
		pulls:   map[int64]service.PullSummary{2: revoked},
		pullErr: map[int64]error{2: credErr},
	}
	lim := &fakeLimiter{blocked: map[int64]bool{3: true}}
	health := &fakeHealth{}
	accounts := fakeAccounts{list: []model.Account{{ID: 1}, {ID: 2}, {ID: 3}}}

	job := NewSyncJob(accounts, pipe, lim, health, 7, zaptest.NewLogger(t))
	job.now = func() time.Time { return time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, []int64{1}, pipe.recon)
	require.Equal(t, []int64{1}, lim.successes)
	require.Equal(t, []int64{2}, lim.failures)
	require.Equal(t, []bool{true}, health.states)
	require.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), pipe.start)
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), pipe.end)
}

func TestSyncJob_ListFailure(t *testing.T) {
	health := &fakeHealth{}
	job := NewSyncJob(fakeAccounts{err: errors.New("db down")}, &fakePipeline{}, &fakeLimiter{}, health, 0, zaptest.NewLogger(t))

	err := job.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, []bool{false}, health.states)
}

func TestSyncJob_PartialPullStillReconciles(t *testing.T) {
	apiErr := &errs.RemoteAPIError{StatusCode: 503}
	pipe := &fakePipeline{
		pulls:   map[int64]service.PullSummary{1: {Kinds: []service.KindSummary{{Kind: service.KindReturns, Err: apiErr}, {Kind: service.KindRemovals}}}},
		pullErr: map[int64]error{1: apiErr},
	}
	lim := &fakeLimiter{}
	job := NewSyncJob(fakeAccounts{list: []model.Account{{ID: 1}}}, pipe, lim, nil, 1, zaptest.NewLogger(t))

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, []int64{1}, pipe.recon)
	require.Empty(t, lim.failures)
}

func TestScheduler_Start(t *testing.T) {
	job := NewSyncJob(fakeAccounts{}, &fakePipeline{}, &fakeLimiter{}, nil, 1, zaptest.NewLogger(t))

	s := New(job, time.Minute, zaptest.NewLogger(t))
	require.Error(t, s.Start("every now and then"))

	s = New(job, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, s.Start("0 3 * * *"))
	<-s.Stop().Done()
}
