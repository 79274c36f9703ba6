package mapper

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/and161185/fba-recon/internal/model"
)

func TestAliases_Lookup(t *testing.T) {
	a := Aliases{"reason", "Return reason"}

	v, ok := a.Lookup(model.RawRow{"Return reason": "DEFECTIVE"})
	require.True(t, ok)
	require.Equal(t, "DEFECTIVE", v)

	// first non-empty wins
	v, ok = a.Lookup(model.RawRow{"reason": "", "Return reason": "UNWANTED_ITEM"})
	require.True(t, ok)
	require.Equal(t, "UNWANTED_ITEM", v)

	// header variants fold
	v, ok = a.Lookup(model.RawRow{"RETURN_REASON": "x"})
	require.True(t, ok)
	require.Equal(t, "x", v)

	_, ok = a.Lookup(model.RawRow{"other": "x"})
	require.False(t, ok)
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"3", ptr(3)},
		{"-2", ptr(-2)},
		{" 1,200 ", ptr(1200)},
		{"4.0", ptr(4)},
		{"4.5", nil},
		{"NA", nil},
		{"n/a", nil},
		{"", nil},
		{"abc", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, ParseInt(tt.in))
		})
	}
}

func TestParseDecimal(t *testing.T) {
	require.True(t, ParseDecimal("12.50").Decimal.Equal(decimal.RequireFromString("12.5")))
	require.True(t, ParseDecimal("12,50").Decimal.Equal(decimal.RequireFromString("12.5")))
	require.True(t, ParseDecimal("1,234.56").Decimal.Equal(decimal.RequireFromString("1234.56")))
	require.True(t, ParseDecimal("1.234,56").Decimal.Equal(decimal.RequireFromString("1234.56")))
	require.True(t, ParseDecimal("1.234.567,8").Decimal.Equal(decimal.RequireFromString("1234567.8")))
	require.True(t, ParseDecimal("1,234,567").Decimal.Equal(decimal.RequireFromString("1234567")))
	require.True(t, ParseDecimal("-0,99").Decimal.Equal(decimal.RequireFromString("-0.99")))
	require.False(t, ParseDecimal("N/A").Valid)
	require.False(t, ParseDecimal("€3").Valid)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-01-15T10:00:00+02:00", "2024-01-15T08:00:00Z", "2024-01-15 08:00:00"} {
		got := ParseTime(in)
		require.NotNil(t, got, in)
		require.True(t, got.Equal(want), in)
	}
	d := ParseTime("2024-01-15")
	require.NotNil(t, d)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *d)
	require.Nil(t, ParseTime("yesterday"))
	require.Nil(t, ParseTime("NA"))
}

func TestMapReturn_AliasVariants(t *testing.T) {
	row := model.RawRow{
		"Return date":   "2024-02-01",
		"Order ID":      "302-1",
		"ASIN":          "B000TEST",
		"Merchant SKU":  "SKU-1",
		"Return reason": "CUSTOMER_DAMAGED",
		"Units":         "NA",
		"FC":            "LEJ1",
	}
	r := MapReturn(row)
	require.NotNil(t, r.Reason)
	require.Equal(t, "CUSTOMER_DAMAGED", *r.Reason)
	require.Equal(t, "302-1", *r.OrderID)
	require.Equal(t, "SKU-1", *r.SKU)
	require.Equal(t, "LEJ1", *r.FulfillmentCenter)
	require.Nil(t, r.Quantity)
	require.Nil(t, r.Disposition)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *r.ReturnDate)
	require.Equal(t, row, r.Raw)
}

func TestMapRemoval(t *testing.T) {
	r := MapRemoval(model.RawRow{
		"request-date":     "2024-03-02T11:00:00+00:00",
		"order-id":         "RMV-1",
		"order-type":       "Disposal",
		"order-status":     "Completed",
		"disposition":      "Unsellable",
		"sku":              "SKU-2",
		"shipped-quantity": "",
		"Qty":              "2",
	})
	require.Equal(t, "RMV-1", *r.RemovalOrderID)
	require.Equal(t, "Disposal", *r.OrderType)
	require.Equal(t, "Completed", *r.OrderStatus)
	require.Equal(t, 2, *r.ShippedQuantity)
	require.Nil(t, r.ASIN)
}

func TestMapReimbursement(t *testing.T) {
	r := MapReimbursement(model.RawRow{
		"approval-date":             "2024-03-05T00:00:00+00:00",
		"reimbursement-id":          "R1",
		"case-id":                   "C9",
		"amazon-order-id":           "",
		"reason":                    "Lost_Warehouse",
		"sku":                       "SKU-3",
		"asin":                      "B0003",
		"currency-unit":             "EUR",
		"amount-total":              "19.99",
		"quantity-reimbursed-total": "1",
	})
	require.Equal(t, "R1", *r.ReimbursementID)
	require.Equal(t, "C9", *r.CaseID)
	require.Nil(t, r.OrderID)
	require.Equal(t, 1, *r.Units)
	require.True(t, r.Amount.Valid)
	require.Equal(t, "19.99", r.Amount.Decimal.StringFixed(2))
	require.Equal(t, "EUR", *r.Currency)

	ev, ok := ReimbursementEventFrom(4, r)
	require.True(t, ok)
	require.Equal(t, int64(4), ev.AccountID)
	require.Equal(t, 1, ev.Units)
	require.Equal(t, "B0003", ev.ASIN)
}

func TestReimbursementEventFrom_Defaults(t *testing.T) {
	r := MapReimbursement(model.RawRow{"date": "2024-03-05", "sku": "S"})
	ev, ok := ReimbursementEventFrom(1, r)
	require.True(t, ok)
	require.Zero(t, ev.Units)
	require.True(t, ev.Amount.IsZero())

	_, ok = ReimbursementEventFrom(1, MapReimbursement(model.RawRow{"sku": "S"}))
	require.False(t, ok)
}

func TestClassifyReason(t *testing.T) {
	tests := map[string]string{
		"M":                 model.EventLost,
		"5":                 model.EventLost,
		"Misplaced":         model.EventLost,
		"E":                 model.EventDamaged,
		"7":                 model.EventDamaged,
		"Warehouse damaged": model.EventDamaged,
		"F":                 model.EventFound,
		"found":             model.EventFound,
		"D":                 model.EventAdjustment,
		"":                  model.EventAdjustment,
	}
	for in, want := range tests {
		if got := ClassifyReason(in); got != want {
			t.Fatalf("ClassifyReason(%q)=%s, want %s", in, got, want)
		}
	}
}

func TestLedgerEvents(t *testing.T) {
	rows := MapAll([]model.RawRow{
		{"adjusted-date": "2024-01-10", "reason": "M", "sku": "A", "asin": "X", "quantity": "-3", "fulfillment-center-id": "lej1", "transaction-item-id": "T1"},
		{"adjusted-date": "2024-01-11", "reason": "F", "sku": "A", "asin": "X", "quantity": "1"},
		{"reason": "E", "sku": "A", "quantity": "1"},
		{"adjusted-date": "2024-01-12", "reason": "E", "quantity": "1"},
	}, MapAdjustment)

	events := LedgerEvents(9, rows)
	require.Len(t, events, 2)
	require.Equal(t, model.LedgerEvent{
		AccountID:         9,
		EventDate:         time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		EventType:         model.EventLost,
		ASIN:              "X",
		SKU:               "A",
		FulfillmentCenter: "LEJ1",
		Quantity:          3,
		Reference:         "T1",
		Source:            rows[0].Raw,
	}, events[0])
	require.Equal(t, model.EventFound, events[1].EventType)
	require.Equal(t, 1, events[1].Quantity)
}

func TestLedgerEvents_ReferenceAlias(t *testing.T) {
	rows := MapAll([]model.RawRow{
		{"Adjustment date": "2024-01-10", "Adjustment reason": "E", "ASIN": "X", "Quantity": "-1", "Reference ID": "R-9"},
	}, MapAdjustment)

	events := LedgerEvents(1, rows)
	require.Len(t, events, 1)
	require.Equal(t, "R-9", events[0].Reference)
	require.Equal(t, model.EventDamaged, events[0].EventType)
}

func ptr(n int) *int { return &n }
