package mapper

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/and161185/fba-recon/internal/model"
)

// reasonEvents classifies adjustment reason codes and free-text reasons.
// Codes follow the inventory adjustments report.
var reasonEvents = map[string]string{
	"M":         model.EventLost,
	"5":         model.EventLost,
	"LOST":      model.EventLost,
	"MISPLACED": model.EventLost,
	"E":         model.EventDamaged,
	"H":         model.EventDamaged,
	"K":         model.EventDamaged,
	"Q":         model.EventDamaged,
	"6":         model.EventDamaged,
	"7":         model.EventDamaged,
	"DAMAGED":   model.EventDamaged,
	"F":         model.EventFound,
	"FOUND":     model.EventFound,
}

// ClassifyReason maps an adjustment reason to a ledger event type.
// Unknown reasons are plain adjustments.
func ClassifyReason(reason string) string {
	r := strings.ToUpper(strings.TrimSpace(reason))
	if ev, ok := reasonEvents[r]; ok {
		return ev
	}
	for _, word := range []string{"LOST", "MISPLACED", "DAMAGED", "FOUND"} {
		if strings.Contains(r, word) {
			return reasonEvents[word]
		}
	}
	return model.EventAdjustment
}

// LedgerEventFromAdjustment derives a ledger event. Rows without a date or
// without any product identifier yield false.
func LedgerEventFromAdjustment(accountID int64, a model.AdjustmentRow) (model.LedgerEvent, bool) {
	if a.AdjustmentDate == nil || (a.ASIN == nil && a.SKU == nil) {
		return model.LedgerEvent{}, false
	}
	qty := 0
	ref, _ := adjustmentColumns.Reference.Lookup(a.Raw)
	if a.QuantityDifference != nil {
		qty = *a.QuantityDifference
		if qty < 0 {
			qty = -qty
		}
	}
	return model.LedgerEvent{
		AccountID:         accountID,
		EventDate:         *a.AdjustmentDate,
		EventType:         ClassifyReason(deref(a.Reason)),
		ASIN:              deref(a.ASIN),
		SKU:               deref(a.SKU),
		FulfillmentCenter: upper(a.FulfillmentCenter),
		Quantity:          qty,
		Reference:         ref,
		Source:            a.Raw,
	}, true
}

// LedgerEvents derives ledger events from a batch of adjustments.
func LedgerEvents(accountID int64, rows []model.AdjustmentRow) []model.LedgerEvent {
	var out []model.LedgerEvent
	for _, a := range rows {
		if ev, ok := LedgerEventFromAdjustment(accountID, a); ok {
			out = append(out, ev)
		}
	}
	return out
}

// ReimbursementEventFrom extracts the unit and money credit of a
// reimbursement row. Missing units or amount count as zero.
func ReimbursementEventFrom(accountID int64, r model.ReimbursementRow) (model.ReimbursementEvent, bool) {
	if r.PostedDate == nil || (r.ASIN == nil && r.SKU == nil) {
		return model.ReimbursementEvent{}, false
	}
	ev := model.ReimbursementEvent{
		AccountID:  accountID,
		PostedDate: *r.PostedDate,
		ASIN:       deref(r.ASIN),
		SKU:        deref(r.SKU),
		Amount:     decimal.Zero,
	}
	if r.Units != nil {
		ev.Units = *r.Units
	}
	if r.Amount.Valid {
		ev.Amount = r.Amount.Decimal
	}
	return ev, true
}
