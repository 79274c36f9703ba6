// Package service exposes the ingestion pipeline to callers: fetching
// orders and reports, persisting pulls and running reconciliations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/mapper"
	"github.com/and161185/fba-recon/internal/model"
	"github.com/and161185/fba-recon/internal/reports"
	"github.com/and161185/fba-recon/internal/repository"
	"github.com/and161185/fba-recon/internal/spapi"
)

// ReportFetcher runs one report job to completion.
type ReportFetcher interface {
	Fetch(ctx context.Context, req reports.Request) ([]model.RawRow, error)
}

// OrderFetcher lists orders with items.
type OrderFetcher interface {
	FetchOrders(ctx context.Context, cfg model.AccountConfig, accountID int64, credential string, start, end time.Time) ([]model.OrderRecord, error)
}

// Reconciler computes and stores open balances.
type Reconciler interface {
	Reconcile(ctx context.Context, accountID int64, start, end time.Time) ([]model.ReconciliationResult, error)
}

// Deps are the collaborators of Service.
type Deps struct {
	Accounts repository.AccountRepository
	Reports  repository.ReportRepository
	Orders   repository.OrderRepository
	Jobs     ReportFetcher
	OrderAPI OrderFetcher
	Recon    Reconciler
	Log      *zap.Logger
	Now      func() time.Time
}

// Service implements the inbound ingestion operations.
type Service struct {
	d Deps
}

// New constructs a Service.
func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{d: d}
}

func checkWindow(start, end time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("%w: window start %s is not before end %s", errs.ErrInvalidInput,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// FetchOrders lists orders for the account without persisting them.
func (s *Service) FetchOrders(ctx context.Context, cfg model.AccountConfig, accountID int64, credential string, start, end time.Time) ([]model.OrderRecord, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, err
	}
	return s.d.OrderAPI.FetchOrders(ctx, cfg, accountID, credential, start, end)
}

func fetchMapped[T any](ctx context.Context, s *Service, accountID int64, credential, reportType string, start, end time.Time, fn func(model.RawRow) T) ([]T, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, err
	}
	rows, err := s.d.Jobs.Fetch(ctx, reports.Request{
		AccountID: accountID, Credential: credential, ReportType: reportType, Start: start, End: end,
	})
	if err != nil {
		return nil, err
	}
	return mapper.MapAll(rows, fn), nil
}

// FetchReturns pulls and maps the customer returns report.
func (s *Service) FetchReturns(ctx context.Context, accountID int64, credential string, start, end time.Time) ([]model.ReturnRow, error) {
	return fetchMapped(ctx, s, accountID, credential, reports.ReturnsReport, start, end, mapper.MapReturn)
}

// FetchRemovals pulls and maps the removal order detail report.
func (s *Service) FetchRemovals(ctx context.Context, accountID int64, credential string, start, end time.Time) ([]model.RemovalRow, error) {
	return fetchMapped(ctx, s, accountID, credential, reports.RemovalsReport, start, end, mapper.MapRemoval)
}

// FetchAdjustments pulls and maps the inventory adjustments report.
func (s *Service) FetchAdjustments(ctx context.Context, accountID int64, credential string, start, end time.Time) ([]model.AdjustmentRow, error) {
	return fetchMapped(ctx, s, accountID, credential, reports.AdjustmentsReport, start, end, mapper.MapAdjustment)
}

// FetchReimbursements pulls and maps the reimbursements report.
func (s *Service) FetchReimbursements(ctx context.Context, accountID int64, credential string, start, end time.Time) ([]model.ReimbursementRow, error) {
	return fetchMapped(ctx, s, accountID, credential, reports.ReimbursementsReport, start, end, mapper.MapReimbursement)
}

// Reconcile delegates to the reconciliation service.
func (s *Service) Reconcile(ctx context.Context, accountID int64, start, end time.Time) ([]model.ReconciliationResult, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, err
	}
	return s.d.Recon.Reconcile(ctx, accountID, start, end)
}

// SyncOrders fetches the last days of orders for a stored account and saves them.
func (s *Service) SyncOrders(ctx context.Context, accountID int64, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", errs.ErrInvalidInput)
	}
	acc, err := s.d.Accounts.Get(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("load account %d: %w", accountID, err)
	}
	end := s.d.Now().UTC()
	orders, err := s.d.OrderAPI.FetchOrders(ctx, acc.Config(), acc.ID, acc.RefreshTokenEnc, end.AddDate(0, 0, -days), end)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.d.Orders.SaveOrders(ctx, acc.ID, orders); err != nil {
		return 0, fmt.Errorf("save orders: %w", err)
	}
	return len(orders), nil
}

// Report kinds in the order they appear in a PullSummary.
const (
	KindReturns        = "returns"
	KindRemovals       = "removals"
	KindAdjustments    = "adjustments"
	KindReimbursements = "reimbursements"
)

var kinds = []struct {
	name       string
	reportType string
}{
	{KindReturns, reports.ReturnsReport},
	{KindRemovals, reports.RemovalsReport},
	{KindAdjustments, reports.AdjustmentsReport},
	{KindReimbursements, reports.ReimbursementsReport},
}

// KindSummary is the outcome of one report kind in a pull.
type KindSummary struct {
	Kind string `json:"kind"`
	Rows int    `json:"rows"`
	Note string `json:"note,omitempty"`
	Err  error  `json:"-"`
}

// PullSummary reports what a pull stored.
type PullSummary struct {
	AccountID    int64         `json:"account_id"`
	WindowStart  time.Time     `json:"window_start"`
	WindowEnd    time.Time     `json:"window_end"`
	Kinds        []KindSummary `json:"kinds"`
	LedgerEvents int           `json:"ledger_events"`
}

// CredentialFailed reports whether every kind failed on the credential.
func (p PullSummary) CredentialFailed() bool {
	if len(p.Kinds) == 0 {
		return false
	}
	for _, k := range p.Kinds {
		if !errs.CredentialProblem(k.Err) {
			return false
		}
	}
	return true
}

// PullReports fetches all four report kinds for a stored account
// concurrently, then persists every kind that materialized together with the
// derived ledger events in one write. Kinds that time out or fail on the
// platform side only produce a note. Credential and transport errors are
// returned joined, after the successful kinds were saved.
func (s *Service) PullReports(ctx context.Context, accountID int64, start, end time.Time) (PullSummary, error) {
	sum := PullSummary{AccountID: accountID, WindowStart: start, WindowEnd: end}
	if err := checkWindow(start, end); err != nil {
		return sum, err
	}
	acc, err := s.d.Accounts.Get(ctx, accountID)
	if err != nil {
		return sum, fmt.Errorf("load account %d: %w", accountID, err)
	}
	ids := spapi.MarketplaceIDs(acc.Region, acc.Marketplaces)
	log := s.d.Log.With(zap.Int64("account", accountID), zap.Time("from", start), zap.Time("to", end))

	results := make([][]model.RawRow, len(kinds))
	failures := make([]error, len(kinds))
	var g errgroup.Group
	for i, k := range kinds {
		i, k := i, k
		g.Go(func() error {
			rows, err := s.d.Jobs.Fetch(ctx, reports.Request{
				AccountID:      acc.ID,
				Credential:     acc.RefreshTokenEnc,
				ReportType:     k.reportType,
				MarketplaceIDs: ids,
				Start:          start,
				End:            end,
			})
			results[i], failures[i] = rows, err
			return nil
		})
	}
	_ = g.Wait()

	var (
		batch model.ReportBatch
		fatal []error
	)
	sum.Kinds = make([]KindSummary, len(kinds))
	for i, k := range kinds {
		ks := KindSummary{Kind: k.name, Err: failures[i]}
		switch err := failures[i]; {
		case err == nil:
			ks.Rows = len(results[i])
			if ks.Rows == 0 {
				ks.Note = "no rows: empty window or report type not available"
			}
		case errs.Skippable(err):
			ks.Note = "skipped: " + err.Error()
			log.Warn("report skipped", zap.String("kind", k.name), zap.Error(err))
		case errs.CredentialProblem(err):
			ks.Note = "no rows: credential missing or revoked"
			fatal = append(fatal, fmt.Errorf("%s: %w", k.name, err))
		default:
			ks.Note = "failed"
			fatal = append(fatal, fmt.Errorf("%s: %w", k.name, err))
		}
		sum.Kinds[i] = ks
		if failures[i] != nil {
			continue
		}
		switch k.name {
		case KindReturns:
			batch.Returns = mapper.MapAll(results[i], mapper.MapReturn)
		case KindRemovals:
			batch.Removals = mapper.MapAll(results[i], mapper.MapRemoval)
		case KindAdjustments:
			batch.Adjustments = mapper.MapAll(results[i], mapper.MapAdjustment)
			batch.Ledger = mapper.LedgerEvents(acc.ID, batch.Adjustments)
		case KindReimbursements:
			batch.Reimbursements = mapper.MapAll(results[i], mapper.MapReimbursement)
		}
	}
	sum.LedgerEvents = len(batch.Ledger)

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if err := s.d.Reports.SaveReports(ctx, acc.ID, batch); err != nil {
		return sum, errors.Join(append(fatal, fmt.Errorf("save reports: %w", err))...)
	}
	log.Info("reports pulled",
		zap.Int("returns", len(batch.Returns)),
		zap.Int("removals", len(batch.Removals)),
		zap.Int("adjustments", len(batch.Adjustments)),
		zap.Int("reimbursements", len(batch.Reimbursements)),
		zap.Int("ledger_events", len(batch.Ledger)),
		zap.Int("failed_kinds", len(fatal)))
	return sum, errors.Join(fatal...)
}
