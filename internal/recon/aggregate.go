// Package recon computes open balances between inventory losses recorded in
// the ledger and the reimbursements that offset them.
package recon

import (
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/and161185/fba-recon/internal/model"
)

// Options tune aggregation.
type Options struct {
	// IncludeUnmatchedReimbursements emits rows for (asin, sku) keys that
	// have reimbursements but no ledger events. Such rows carry a negative
	// open balance.
	IncludeUnmatchedReimbursements bool
}

type key struct{ asin, sku string }

type bucket struct {
	lost, damaged, found int
	inLedger             bool
	units                int
	amount               decimal.Decimal
}

// Aggregate groups events by (asin, sku) inside [start, end) and emits one
// result per ledger key, sorted by asin then sku. Ledger event types other
// than Lost, Damaged and Found are ignored.
func Aggregate(runID uuid.UUID, accountID int64, start, end time.Time,
	ledger []model.LedgerEvent, reimbursements []model.ReimbursementEvent, opts Options,
) []model.ReconciliationResult {
	in := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }
	groups := make(map[key]*bucket)
	get := func(k key) *bucket {
		b, ok := groups[k]
		if !ok {
			b = &bucket{amount: decimal.Zero}
			groups[k] = b
		}
		return b
	}

	for _, ev := range ledger {
		if !in(ev.EventDate) {
			continue
		}
		b := get(key{ev.ASIN, ev.SKU})
		b.inLedger = true
		switch ev.EventType {
		case model.EventLost:
			b.lost += ev.Quantity
		case model.EventDamaged:
			b.damaged += ev.Quantity
		case model.EventFound:
			b.found += ev.Quantity
		}
	}
	for _, r := range reimbursements {
		if !in(r.PostedDate) {
			continue
		}
		k := key{r.ASIN, r.SKU}
		if _, ok := groups[k]; !ok && !opts.IncludeUnmatchedReimbursements {
			continue
		}
		b := get(k)
		b.units += r.Units
		b.amount = b.amount.Add(r.Amount)
	}

	out := make([]model.ReconciliationResult, 0, len(groups))
	for k, b := range groups {
		out = append(out, model.ReconciliationResult{
			RunID:            runID,
			AccountID:        accountID,
			ASIN:             k.asin,
			SKU:              k.sku,
			WindowStart:      start,
			WindowEnd:        end,
			LostUnits:        b.lost,
			DamagedUnits:     b.damaged,
			FoundUnits:       b.found,
			ReimbursedUnits:  b.units,
			ReimbursedAmount: b.amount,
			OpenUnits:        (b.lost + b.damaged - b.found) - b.units,
			OpenAmount:       decimal.Zero,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ASIN != out[j].ASIN {
			return out[i].ASIN < out[j].ASIN
		}
		return out[i].SKU < out[j].SKU
	})
	return out
}
