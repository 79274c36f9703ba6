package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/model"
)

// Store loads window events and persists results.
type Store interface {
	LedgerEvents(ctx context.Context, accountID int64, start, end time.Time) ([]model.LedgerEvent, error)
	ReimbursementEvents(ctx context.Context, accountID int64, start, end time.Time) ([]model.ReimbursementEvent, error)
	ReplaceResults(ctx context.Context, accountID int64, start, end time.Time, results []model.ReconciliationResult) error
}

// Service runs reconciliations against the store.
type Service struct {
	store Store
	opts  Options
	log   *zap.Logger
}

// NewService constructs a Service.
func NewService(store Store, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, opts: opts, log: log}
}

// Reconcile aggregates the account's events in [start, end), replaces the
// stored results for that window and returns them.
func (s *Service) Reconcile(ctx context.Context, accountID int64, start, end time.Time) ([]model.ReconciliationResult, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: empty reconciliation window", errs.ErrInvalidInput)
	}
	ledger, err := s.store.LedgerEvents(ctx, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	reimb, err := s.store.ReimbursementEvents(ctx, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load reimbursements: %w", err)
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	results := Aggregate(runID, accountID, start, end, ledger, reimb, s.opts)
	if err := s.store.ReplaceResults(ctx, accountID, start, end, results); err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	s.log.Info("reconciliation done",
		zap.Int64("account", accountID),
		zap.String("run", runID.String()),
		zap.Int("ledger_events", len(ledger)),
		zap.Int("reimbursements", len(reimb)),
		zap.Int("results", len(results)))
	return results, nil
}
