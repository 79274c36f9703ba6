// Package mapper turns raw report rows into canonical records.
//
// Column names differ between regions and report format versions, so every
// canonical field is resolved through an ordered alias table. New variants
// are additions to these tables.
package mapper

import (
	"strings"

	"github.com/and161185/fba-recon/internal/model"
)

var returnColumns = struct {
	Date, OrderID, ASIN, SKU, Disposition, Reason, Quantity, FC Aliases
}{
	Date:        Aliases{"return-date", "Return date", "return_date", "Date"},
	OrderID:     Aliases{"order-id", "Order ID", "order_id", "order-id(s)", "amazon-order-id"},
	ASIN:        Aliases{"asin", "ASIN"},
	SKU:         Aliases{"sku", "SKU", "Merchant SKU", "seller-sku"},
	Disposition: Aliases{"detailed-disposition", "disposition", "Disposition"},
	Reason:      Aliases{"reason", "Return reason", "Return Reason"},
	Quantity:    Aliases{"quantity", "Quantity", "Units"},
	FC:          Aliases{"fulfillment-center-id", "FC", "fulfillment_center_id"},
}

var removalColumns = struct {
	Date, OrderID, OrderType, OrderStatus, Description, Disposition, ASIN, SKU, Shipped Aliases
}{
	Date:        Aliases{"request-date", "request date", "Request Date", "request_date"},
	OrderID:     Aliases{"order-id", "Removal order ID", "order_id"},
	OrderType:   Aliases{"order-type", "Order type", "order_type"},
	OrderStatus: Aliases{"order-status", "Order status", "order_status"},
	Description: Aliases{"description", "Disposition detail", "detail"},
	Disposition: Aliases{"disposition", "Disposition"},
	ASIN:        Aliases{"asin", "ASIN"},
	SKU:         Aliases{"sku", "SKU", "Merchant SKU"},
	Shipped:     Aliases{"shipped-quantity", "Shipped qty", "quantity", "Qty"},
}

var adjustmentColumns = struct {
	Date, Reason, Disposition, ASIN, SKU, FC, Quantity, Reference Aliases
}{
	Date:        Aliases{"date", "adjusted-date", "adjustment-date", "Adjustment date", "adjustment_date"},
	Reason:      Aliases{"reason", "Adjustment reason"},
	Disposition: Aliases{"disposition", "Disposition"},
	ASIN:        Aliases{"asin", "ASIN"},
	SKU:         Aliases{"sku", "SKU", "Merchant SKU"},
	FC:          Aliases{"fulfillment-center-id", "FC", "fulfillment_center_id"},
	Quantity:    Aliases{"quantity", "Quantity", "qty", "quantity-difference"},
	Reference:   Aliases{"transaction-item-id", "Transaction item ID", "reference-id", "Reference ID"},
}

var reimbursementColumns = struct {
	Date, ID, CaseID, OrderID, Reason, ASIN, SKU, Units, Amount, Currency Aliases
}{
	Date:     Aliases{"reimbursement-date", "approval-date", "Posted date", "date"},
	ID:       Aliases{"reimbursement-id", "Reimbursement ID", "id"},
	CaseID:   Aliases{"case-id", "Case ID"},
	OrderID:  Aliases{"amazon-order-id", "order-id", "Order ID", "order_id"},
	Reason:   Aliases{"reason", "Reimbursement reason"},
	ASIN:     Aliases{"asin", "ASIN"},
	SKU:      Aliases{"sku", "SKU", "Merchant SKU"},
	Units:    Aliases{"quantity-reimbursed-total", "quantity-reimbursed-cash", "quantity", "Units"},
	Amount:   Aliases{"amount-total", "amount", "Amount"},
	Currency: Aliases{"currency-unit", "currency", "Currency"},
}

// MapReturn maps a customer-returns row.
func MapReturn(row model.RawRow) model.ReturnRow {
	c := returnColumns
	return model.ReturnRow{
		ReturnDate:        Time(row, c.Date),
		OrderID:           String(row, c.OrderID),
		ASIN:              String(row, c.ASIN),
		SKU:               String(row, c.SKU),
		Disposition:       String(row, c.Disposition),
		Reason:            String(row, c.Reason),
		Quantity:          Int(row, c.Quantity),
		FulfillmentCenter: String(row, c.FC),
		Raw:               row,
	}
}

// MapRemoval maps a removal-order detail row.
func MapRemoval(row model.RawRow) model.RemovalRow {
	c := removalColumns
	return model.RemovalRow{
		RequestDate:     Time(row, c.Date),
		RemovalOrderID:  String(row, c.OrderID),
		OrderType:       String(row, c.OrderType),
		OrderStatus:     String(row, c.OrderStatus),
		Description:     String(row, c.Description),
		Disposition:     String(row, c.Disposition),
		ASIN:            String(row, c.ASIN),
		SKU:             String(row, c.SKU),
		ShippedQuantity: Int(row, c.Shipped),
		Raw:             row,
	}
}

// MapAdjustment maps an inventory-adjustment row.
func MapAdjustment(row model.RawRow) model.AdjustmentRow {
	c := adjustmentColumns
	return model.AdjustmentRow{
		AdjustmentDate:     Time(row, c.Date),
		Reason:             String(row, c.Reason),
		Disposition:        String(row, c.Disposition),
		ASIN:               String(row, c.ASIN),
		SKU:                String(row, c.SKU),
		FulfillmentCenter:  String(row, c.FC),
		QuantityDifference: Int(row, c.Quantity),
		Raw:                row,
	}
}

// MapReimbursement maps a reimbursement row.
func MapReimbursement(row model.RawRow) model.ReimbursementRow {
	c := reimbursementColumns
	return model.ReimbursementRow{
		PostedDate:      Time(row, c.Date),
		ReimbursementID: String(row, c.ID),
		CaseID:          String(row, c.CaseID),
		OrderID:         String(row, c.OrderID),
		Reason:          String(row, c.Reason),
		ASIN:            String(row, c.ASIN),
		SKU:             String(row, c.SKU),
		Units:           Int(row, c.Units),
		Amount:          Decimal(row, c.Amount),
		Currency:        String(row, c.Currency),
		Raw:             row,
	}
}

// MapAll applies fn to every row.
func MapAll[T any](rows []model.RawRow, fn func(model.RawRow) T) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, fn(r))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func upper(s *string) string { return strings.ToUpper(strings.TrimSpace(deref(s))) }
