// Package orders pulls recent orders with their line items.
package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/errs"
	"github.com/and161185/fba-recon/internal/mapper"
	"github.com/and161185/fba-recon/internal/model"
	"github.com/and161185/fba-recon/internal/spapi"
)

const (
	ordersPath = "/orders/v0/orders"
	// The orders API rejects CreatedBefore values closer than about two minutes to now.
	createdBeforeLag = 3 * time.Minute
	DefaultMaxOrders = 100
)

// Caller is the idempotent part of the request executor.
type Caller interface {
	Get(ctx context.Context, c spapi.Call) (*spapi.Response, error)
}

// Fetcher lists orders and their items.
type Fetcher struct {
	api       Caller
	maxOrders int
	now       func() time.Time
	log       *zap.Logger
}

// NewFetcher constructs a Fetcher. maxOrders <= 0 uses DefaultMaxOrders.
func NewFetcher(api Caller, maxOrders int, log *zap.Logger) *Fetcher {
	if maxOrders <= 0 {
		maxOrders = DefaultMaxOrders
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{api: api, maxOrders: maxOrders, now: time.Now, log: log}
}

// SafeWindow clamps [start, end) to what the orders API accepts: end lags
// now by a few minutes and start lies at least a day before end. A window
// that collapses becomes the last hour before end.
func SafeWindow(start, end, now time.Time) (time.Time, time.Time) {
	start, end = start.UTC(), end.UTC()
	if limit := now.UTC().Add(-createdBeforeLag); end.After(limit) {
		end = limit
	}
	if floor := end.Add(-24 * time.Hour); start.After(floor) {
		start = floor
	}
	if !start.Before(end) {
		start = end.Add(-time.Hour)
	}
	return start, end
}

// FetchOrders lists orders created in the window for the account's
// marketplaces and attaches their items. A failing item call leaves that
// order with no items.
func (f *Fetcher) FetchOrders(ctx context.Context, cfg model.AccountConfig, accountID int64, credential string, start, end time.Time) ([]model.OrderRecord, error) {
	ids := spapi.MarketplaceIDs(cfg.Region, cfg.Marketplaces)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no supported marketplaces for region %q", errs.ErrInvalidInput, cfg.Region)
	}
	from, to := SafeWindow(start, end, f.now())

	var (
		out  []model.OrderRecord
		next string
	)
	for len(out) < f.maxOrders {
		q := url.Values{"MarketplaceIds": {strings.Join(ids, ",")}}
		if next != "" {
			q.Set("NextToken", next)
		} else {
			q.Set("CreatedAfter", spapi.FormatTime(from))
			q.Set("CreatedBefore", spapi.FormatTime(to))
		}
		resp, err := f.api.Get(ctx, spapi.Call{AccountID: accountID, Credential: credential, Path: ordersPath, Query: q})
		if err != nil {
			return nil, err
		}
		for _, o := range resp.JSON("payload.Orders").Array() {
			if len(out) == f.maxOrders {
				break
			}
			out = append(out, orderRecord(o))
		}
		next = resp.JSON("payload.NextToken").String()
		if next == "" {
			break
		}
	}

	for i := range out {
		items, err := f.items(ctx, accountID, credential, out[i].OrderID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			f.log.Warn("order items unavailable",
				zap.Int64("account", accountID), zap.String("order", out[i].OrderID), zap.Error(err))
			continue
		}
		out[i].Items = items
	}
	f.log.Info("orders fetched", zap.Int64("account", accountID), zap.Int("orders", len(out)),
		zap.Time("from", from), zap.Time("to", to))
	return out, nil
}

func (f *Fetcher) items(ctx context.Context, accountID int64, credential, orderID string) ([]model.OrderItem, error) {
	resp, err := f.api.Get(ctx, spapi.Call{
		AccountID:  accountID,
		Credential: credential,
		Path:       fmt.Sprintf("%s/%s/orderItems", ordersPath, orderID),
	})
	if err != nil {
		return nil, err
	}
	arr := resp.JSON("payload.OrderItems").Array()
	items := make([]model.OrderItem, 0, len(arr))
	for _, it := range arr {
		item := model.OrderItem{
			ASIN:     it.Get("ASIN").String(),
			SKU:      it.Get("SellerSKU").String(),
			Quantity: int(it.Get("QuantityOrdered").Int()),
			Currency: it.Get("ItemPrice.CurrencyCode").String(),
		}
		if amt := it.Get("ItemPrice.Amount"); amt.Exists() {
			item.Price = mapper.ParseDecimal(amt.String())
		}
		items = append(items, item)
	}
	return items, nil
}

func orderRecord(o gjson.Result) model.OrderRecord {
	rec := model.OrderRecord{
		OrderID:       o.Get("AmazonOrderId").String(),
		Status:        o.Get("OrderStatus").String(),
		MarketplaceID: o.Get("MarketplaceId").String(),
		Raw:           []byte(o.Raw),
	}
	if pd := o.Get("PurchaseDate"); pd.Exists() {
		rec.PurchaseDate = mapper.ParseTime(pd.String())
	}
	return rec
}

// Total sums item prices by currency.
func Total(o model.OrderRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, it := range o.Items {
		if !it.Price.Valid {
			continue
		}
		out[it.Currency] = out[it.Currency].Add(it.Price.Decimal)
	}
	return out
}
