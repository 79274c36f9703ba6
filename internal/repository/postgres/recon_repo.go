package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/and161185/fba-recon/internal/model"
)

// ReconRepo implements ReconRepository using PostgreSQL.
type ReconRepo struct{ db *DB }

// NewReconRepo constructs a reconciliation repository.
func NewReconRepo(db *DB) *ReconRepo { return &ReconRepo{db: db} }

// LedgerEvents returns ledger events with event_date in [start, end).
func (r *ReconRepo) LedgerEvents(ctx context.Context, accountID int64, start, end time.Time) ([]model.LedgerEvent, error) {
	const q = `
SELECT event_date, event_type, asin, sku, fulfillment_center, quantity, reference
FROM inventory_ledger
WHERE account_id=$1 AND event_date >= $2 AND event_date < $3
ORDER BY event_date`
	rows, err := r.db.Pool.Query(ctx, q, accountID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LedgerEvent
	for rows.Next() {
		ev := model.LedgerEvent{AccountID: accountID}
		if err := rows.Scan(&ev.EventDate, &ev.EventType, &ev.ASIN, &ev.SKU, &ev.FulfillmentCenter, &ev.Quantity, &ev.Reference); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReimbursementEvents returns reimbursements posted in [start, end).
// Missing units and amounts read as zero.
func (r *ReconRepo) ReimbursementEvents(ctx context.Context, accountID int64, start, end time.Time) ([]model.ReimbursementEvent, error) {
	const q = `
SELECT posted_date, COALESCE(asin,''), COALESCE(sku,''), COALESCE(units,0), COALESCE(amount,0)::text
FROM fba_reimbursements
WHERE account_id=$1 AND posted_date >= $2 AND posted_date < $3
ORDER BY posted_date`
	rows, err := r.db.Pool.Query(ctx, q, accountID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReimbursementEvent
	for rows.Next() {
		var (
			ev     = model.ReimbursementEvent{AccountID: accountID}
			amount string
		)
		if err := rows.Scan(&ev.PostedDate, &ev.ASIN, &ev.SKU, &ev.Units, &amount); err != nil {
			return nil, err
		}
		if ev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReplaceResults swaps the stored results for the window in one transaction.
func (r *ReconRepo) ReplaceResults(ctx context.Context, accountID int64, start, end time.Time, rs []model.ReconciliationResult) error {
	const del = `DELETE FROM recon_results WHERE account_id=$1 AND window_start=$2 AND window_end=$3`
	const ins = `
INSERT INTO recon_results (run_id, account_id, asin, sku, window_start, window_end,
  lost_units, damaged_units, found_units, reimbursed_units, reimbursed_amount, open_units, open_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, del, accountID, start, end); err != nil {
			return err
		}
		for _, x := range rs {
			if _, err := tx.Exec(ctx, ins, x.RunID, accountID, x.ASIN, x.SKU, start, end,
				x.LostUnits, x.DamagedUnits, x.FoundUnits, x.ReimbursedUnits, x.ReimbursedAmount.String(),
				x.OpenUnits, x.OpenAmount.String()); err != nil {
				return err
			}
		}
		return nil
	})
}
