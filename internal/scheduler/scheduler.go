// Package scheduler runs the periodic report sync for all active accounts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/limiter"
	"github.com/and161185/fba-recon/internal/model"
	"github.com/and161185/fba-recon/internal/service"
)

// Pipeline is the part of the ingestion service the sync job drives.
type Pipeline interface {
	PullReports(ctx context.Context, accountID int64, start, end time.Time) (service.PullSummary, error)
	Reconcile(ctx context.Context, accountID int64, start, end time.Time) ([]model.ReconciliationResult, error)
}

// Accounts lists accounts to sync.
type Accounts interface {
	ListActive(ctx context.Context) ([]model.Account, error)
}

// Health receives the outcome of every run.
type Health interface {
	SetServing(ok bool)
}

// SyncJob pulls reports and reconciles one window for every active account.
type SyncJob struct {
	accounts   Accounts
	pipeline   Pipeline
	limiter    limiter.Limiter
	health     Health
	windowDays int
	now        func() time.Time
	log        *zap.Logger
}

// NewSyncJob constructs a SyncJob. health may be nil.
func NewSyncJob(accounts Accounts, pipeline Pipeline, lim limiter.Limiter, health Health, windowDays int, log *zap.Logger) *SyncJob {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &SyncJob{
		accounts: accounts, pipeline: pipeline, limiter: lim, health: health,
		windowDays: windowDays, now: time.Now, log: log,
	}
}

// Window returns the sync window ending at the start of today (UTC).
func (j *SyncJob) Window() (time.Time, time.Time) {
	end := j.now().UTC().Truncate(24 * time.Hour)
	return end.AddDate(0, 0, -j.windowDays), end
}

// Run syncs all active accounts one after another. Per-account failures are
// logged and do not stop the run; only a failure to list accounts is returned.
func (j *SyncJob) Run(ctx context.Context) error {
	accounts, err := j.accounts.ListActive(ctx)
	if err != nil {
		j.setServing(false)
		return fmt.Errorf("list accounts: %w", err)
	}
	start, end := j.Window()
	j.log.Info("sync run started", zap.Int("accounts", len(accounts)), zap.Time("from", start), zap.Time("to", end))

	var synced, blocked, failed int
	for _, acc := range accounts {
		if ctx.Err() != nil {
			break
		}
		err := j.syncAccount(ctx, acc, start, end)
		switch {
		case err == nil:
			synced++
		case errors.Is(err, errs.ErrBlocked):
			blocked++
		default:
			failed++
			j.log.Error("account sync failed", zap.Int64("account", acc.ID), zap.Error(err))
		}
	}
	j.setServing(true)
	j.log.Info("sync run finished", zap.Int("synced", synced), zap.Int("blocked", blocked), zap.Int("failed", failed))
	return ctx.Err()
}

func (j *SyncJob) syncAccount(ctx context.Context, acc model.Account, start, end time.Time) error {
	log := j.log.With(zap.Int64("account", acc.ID), zap.String("name", acc.Name))
	ok, retryAfter, err := j.limiter.Allow(ctx, acc.ID)
	if err != nil {
		return fmt.Errorf("check backoff: %w", err)
	}
	if !ok {
		log.Info("account in backoff, skipping", zap.Duration("retry_after", retryAfter))
		return errs.ErrBlocked
	}

	sum, pullErr := j.pipeline.PullReports(ctx, acc.ID, start, end)
	if sum.CredentialFailed() {
		blockedNow, d, err := j.limiter.Failure(ctx, acc.ID)
		if err != nil {
			log.Warn("record sync failure", zap.Error(err))
		}
		if blockedNow {
			log.Warn("credential keeps failing, account blocked", zap.Duration("for", d))
		}
		return pullErr
	}
	if err := j.limiter.Success(ctx, acc.ID); err != nil {
		log.Warn("reset backoff", zap.Error(err))
	}
	for _, k := range sum.Kinds {
		log.Info("report kind", zap.String("kind", k.Kind), zap.Int("rows", k.Rows), zap.String("note", k.Note))
	}

	results, err := j.pipeline.Reconcile(ctx, acc.ID, start, end)
	if err != nil {
		return errors.Join(pullErr, fmt.Errorf("reconcile: %w", err))
	}
	log.Info("account synced", zap.Int("recon_rows", len(results)))
	return pullErr
}

func (j *SyncJob) setServing(ok bool) {
	if j.health != nil {
		j.health.SetServing(ok)
	}
}

// Scheduler runs a SyncJob on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	job     *SyncJob
	timeout time.Duration
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. Overlapping runs are skipped and panics recovered.
func New(job *SyncJob, timeout time.Duration, log *zap.Logger) *Scheduler {
	cl := cronLogger{log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, job: job, timeout: timeout, log: log, ctx: ctx, cancel: cancel}
}

// Start registers the sync job under spec and starts the cron loop.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.log.Info("scheduled sync job", zap.String("schedule", spec))
	s.cron.Start()
	return nil
}

func (s *Scheduler) runOnce() {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.job.Run(ctx); err != nil {
		s.log.Error("sync run", zap.Error(err))
	}
}

// Stop cancels a running sync and waits for it to return.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}
