package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/fba-recon/internal/model"
)

// ReportRepo implements ReportRepository using PostgreSQL.
type ReportRepo struct{ db *DB }

// NewReportRepo constructs a report repository.
func NewReportRepo(db *DB) *ReportRepo { return &ReportRepo{db: db} }

const (
	insReturn = `
INSERT INTO fba_returns (account_id, row_hash, raw, return_date, order_id, asin, sku, disposition, reason, quantity, fulfillment_center)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (account_id, row_hash) DO NOTHING`
	insRemoval = `
INSERT INTO fba_removals (account_id, row_hash, raw, request_date, removal_order_id, order_type, order_status, description, disposition, asin, sku, shipped_quantity)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (account_id, row_hash) DO NOTHING`
	insAdjustment = `
INSERT INTO fba_inventory_adjustments (account_id, row_hash, raw, adjustment_date, reason, disposition, asin, sku, fulfillment_center, quantity_difference)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (account_id, row_hash) DO NOTHING`
	insReimbursement = `
INSERT INTO fba_reimbursements (account_id, row_hash, raw, posted_date, reimbursement_id, case_id, order_id, reason, asin, sku, units, amount, currency)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (account_id, row_hash) DO NOTHING`
	insLedger = `
INSERT INTO inventory_ledger (account_id, row_hash, event_date, event_type, asin, sku, fulfillment_center, quantity, reference)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (account_id, row_hash) DO NOTHING`
)

// SaveReports writes the batch in a single transaction. Re-pulling an
// overlapping window is idempotent: rows are keyed by a hash of their raw
// content.
func (r *ReportRepo) SaveReports(ctx context.Context, accountID int64, b model.ReportBatch) error {
	if b.Empty() {
		return nil
	}
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for i, x := range b.Returns {
			if err := insertRaw(ctx, tx, insReturn, accountID, x.Raw,
				x.ReturnDate, x.OrderID, x.ASIN, x.SKU, x.Disposition, x.Reason, x.Quantity, x.FulfillmentCenter); err != nil {
				return fmt.Errorf("returns[%d]: %w", i, err)
			}
		}
		for i, x := range b.Removals {
			if err := insertRaw(ctx, tx, insRemoval, accountID, x.Raw,
				x.RequestDate, x.RemovalOrderID, x.OrderType, x.OrderStatus, x.Description, x.Disposition,
				x.ASIN, x.SKU, x.ShippedQuantity); err != nil {
				return fmt.Errorf("removals[%d]: %w", i, err)
			}
		}
		for i, x := range b.Adjustments {
			if err := insertRaw(ctx, tx, insAdjustment, accountID, x.Raw,
				x.AdjustmentDate, x.Reason, x.Disposition, x.ASIN, x.SKU, x.FulfillmentCenter, x.QuantityDifference); err != nil {
				return fmt.Errorf("adjustments[%d]: %w", i, err)
			}
		}
		for i, x := range b.Reimbursements {
			if err := insertRaw(ctx, tx, insReimbursement, accountID, x.Raw,
				x.PostedDate, x.ReimbursementID, x.CaseID, x.OrderID, x.Reason, x.ASIN, x.SKU,
				x.Units, nullDecimal(x.Amount), x.Currency); err != nil {
				return fmt.Errorf("reimbursements[%d]: %w", i, err)
			}
		}
		for i, ev := range b.Ledger {
			hash, err := ledgerHash(ev)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insLedger, accountID, hash, ev.EventDate, ev.EventType,
				ev.ASIN, ev.SKU, ev.FulfillmentCenter, ev.Quantity, ev.Reference); err != nil {
				return fmt.Errorf("ledger[%d]: %w", i, err)
			}
		}
		return nil
	})
}

func insertRaw(ctx context.Context, tx pgx.Tx, q string, accountID int64, raw model.RawRow, fields ...any) error {
	hash, rawJSON, err := rowHash(raw)
	if err != nil {
		return err
	}
	args := append([]any{accountID, hash, rawJSON}, fields...)
	_, err = tx.Exec(ctx, q, args...)
	return err
}

// ledgerHash keys an event by its source row so distinct adjustments never
// collapse into one ledger entry.
func ledgerHash(ev model.LedgerEvent) (string, error) {
	var (
		hash string
		err  error
	)
	if ev.Source != nil {
		hash, _, err = rowHash(ev.Source)
	} else {
		hash, _, err = rowHash(ev)
	}
	return hash, err
}
