// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/fba-recon/internal/model"
)

// AccountRepository provides access to seller accounts.
type AccountRepository interface {
	// Create inserts a new account and returns its id.
	Create(ctx context.Context, a *model.Account) (int64, error)
	// Get loads an account by id.
	Get(ctx context.Context, id int64) (*model.Account, error)
	// ListActive returns all accounts enabled for sync.
	ListActive(ctx context.Context) ([]model.Account, error)
}

// ReportRepository persists materialized report pulls.
type ReportRepository interface {
	// SaveReports writes every row of the batch in one transaction.
	// Rows already stored for the account are skipped.
	SaveReports(ctx context.Context, accountID int64, b model.ReportBatch) error
}

// OrderRepository persists orders.
type OrderRepository interface {
	// SaveOrders upserts orders and replaces their items.
	SaveOrders(ctx context.Context, accountID int64, orders []model.OrderRecord) error
}

// ReconRepository reads reconciliation inputs and stores results.
type ReconRepository interface {
	LedgerEvents(ctx context.Context, accountID int64, start, end time.Time) ([]model.LedgerEvent, error)
	ReimbursementEvents(ctx context.Context, accountID int64, start, end time.Time) ([]model.ReimbursementEvent, error)
	// ReplaceResults drops results previously stored for the same window and writes rs.
	ReplaceResults(ctx context.Context, accountID int64, start, end time.Time, rs []model.ReconciliationResult) error
}
