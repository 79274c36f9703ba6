package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/fba-recon/internal/model"
)

// OrderRepo implements OrderRepository using PostgreSQL.
type OrderRepo struct{ db *DB }

// NewOrderRepo constructs an order repository.
func NewOrderRepo(db *DB) *OrderRepo { return &OrderRepo{db: db} }

// SaveOrders upserts orders by (account, order id) and rewrites their items.
func (r *OrderRepo) SaveOrders(ctx context.Context, accountID int64, orders []model.OrderRecord) error {
	if len(orders) == 0 {
		return nil
	}
	const upsert = `
INSERT INTO orders (account_id, order_id, purchase_date, status, marketplace_id, raw)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (account_id, order_id) DO UPDATE
SET purchase_date=EXCLUDED.purchase_date, status=EXCLUDED.status,
    marketplace_id=EXCLUDED.marketplace_id, raw=EXCLUDED.raw, updated_at=now()`
	const delItems = `DELETE FROM order_items WHERE account_id=$1 AND order_id=$2`
	const insItem = `
INSERT INTO order_items (account_id, order_id, line_no, asin, sku, quantity, price, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, o := range orders {
			raw := o.Raw
			if len(raw) == 0 {
				raw = []byte("{}")
			}
			if _, err := tx.Exec(ctx, upsert, accountID, o.OrderID, o.PurchaseDate, o.Status, o.MarketplaceID, raw); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, delItems, accountID, o.OrderID); err != nil {
				return err
			}
			for i, it := range o.Items {
				if _, err := tx.Exec(ctx, insItem, accountID, o.OrderID, i+1,
					it.ASIN, it.SKU, it.Quantity, nullDecimal(it.Price), it.Currency); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
