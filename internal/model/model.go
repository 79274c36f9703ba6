// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

// Account is a seller account as stored by the administration layer.
type Account struct {
	ID              int64
	Name            string
	Region          string   // eu|na|fe
	Marketplaces    []string // country codes, e.g. DE, FR
	RefreshTokenEnc string   // vault token, never decrypted outside the token manager
	Active          bool
	CreatedAt       time.Time
}

// Config returns the request-shaping part of the account.
func (a Account) Config() AccountConfig {
	return AccountConfig{Region: a.Region, Marketplaces: a.Marketplaces}
}

// AccountConfig carries the per-account settings consumed by fetch calls.
type AccountConfig struct {
	Region       string
	Marketplaces []string
}

// AccessToken is a short-lived bearer token for one account.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the token is still usable at now with the given safety margin.
func (t AccessToken) ValidAt(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// Report processing statuses as returned by the platform.
const (
	StatusSubmitted  = "SUBMITTED"
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFatal      = "FATAL"
	StatusCancelled  = "CANCELLED"
)

// TerminalStatus reports whether a job with this status will not change any more.
func TerminalStatus(s string) bool {
	return s == StatusDone || s == StatusFatal || s == StatusCancelled
}

// ReportJob tracks one remote report request for the duration of a fetch.
type ReportJob struct {
	CorrelationID    uuid.UUID
	ReportType       string
	MarketplaceIDs   []string
	WindowStart      time.Time
	WindowEnd        time.Time
	ReportID         string
	ProcessingStatus string
	ReportDocumentID string
}

// DocumentRef describes how to materialize a report document.
type DocumentRef struct {
	DocumentID           string
	URL                  string
	EncryptionKey        string // base64, optional
	EncryptionIV         string // base64, optional
	CompressionAlgorithm string // e.g. GZIP, optional
}

// Encrypted reports whether the document payload needs decryption.
func (d DocumentRef) Encrypted() bool { return d.EncryptionKey != "" && d.EncryptionIV != "" }

// RawRow is one parsed delimited record: trimmed column name -> trimmed value.
type RawRow map[string]string

// ReturnRow is a canonical customer-return record.
type ReturnRow struct {
	ReturnDate        *time.Time
	OrderID           *string
	ASIN              *string
	SKU               *string
	Disposition       *string
	Reason            *string
	Quantity          *int
	FulfillmentCenter *string
	Raw               RawRow
}

// RemovalRow is a canonical removal-order detail record.
type RemovalRow struct {
	RequestDate     *time.Time
	RemovalOrderID  *string
	OrderType       *string
	OrderStatus     *string
	Description     *string
	Disposition     *string
	ASIN            *string
	SKU             *string
	ShippedQuantity *int
	Raw             RawRow
}

// AdjustmentRow is a canonical inventory-adjustment record.
type AdjustmentRow struct {
	AdjustmentDate     *time.Time
	Reason             *string
	Disposition        *string
	ASIN               *string
	SKU                *string
	FulfillmentCenter  *string
	QuantityDifference *int
	Raw                RawRow
}

// ReimbursementRow is a canonical reimbursement record.
type ReimbursementRow struct {
	PostedDate      *time.Time
	ReimbursementID *string
	CaseID          *string
	OrderID         *string
	Reason          *string
	ASIN            *string
	SKU             *string
	Units           *int
	Amount          decimal.NullDecimal
	Currency        *string
	Raw             RawRow
}

// Ledger event types.
const (
	EventLost       = "Lost"
	EventDamaged    = "Damaged"
	EventFound      = "Found"
	EventAdjustment = "Adjustment"
)

// LedgerEvent is an inventory ledger entry at a fulfillment center.
type LedgerEvent struct {
	AccountID         int64
	EventDate         time.Time
	EventType         string
	ASIN              string
	SKU               string
	FulfillmentCenter string
	Quantity          int
	Reference         string
	Source            RawRow // originating adjustment row, keys the event on persistence
}

// ReimbursementEvent is a unit/monetary credit used by reconciliation.
type ReimbursementEvent struct {
	AccountID  int64
	PostedDate time.Time
	ASIN       string
	SKU        string
	Units      int
	Amount     decimal.Decimal
}

// ReconciliationResult is one (asin, sku) open-balance row for a window.
// OpenUnits = (LostUnits + DamagedUnits - FoundUnits) - ReimbursedUnits.
type ReconciliationResult struct {
	RunID            uuid.UUID
	AccountID        int64
	ASIN             string
	SKU              string
	WindowStart      time.Time
	WindowEnd        time.Time
	LostUnits        int
	DamagedUnits     int
	FoundUnits       int
	ReimbursedUnits  int
	ReimbursedAmount decimal.Decimal
	OpenUnits        int
	OpenAmount       decimal.Decimal // not derived from data yet, always zero
}

// OrderItem is one line of an order.
type OrderItem struct {
	ASIN     string
	SKU      string
	Quantity int
	Price    decimal.NullDecimal
	Currency string
}

// OrderRecord is an order with its items as returned by the orders API.
type OrderRecord struct {
	OrderID       string
	PurchaseDate  *time.Time
	Status        string
	MarketplaceID string
	Items         []OrderItem
	Raw           []byte // original order JSON
}

// ReportBatch is the fully materialized output of one report pull, persisted atomically.
type ReportBatch struct {
	Returns        []ReturnRow
	Removals       []RemovalRow
	Adjustments    []AdjustmentRow
	Reimbursements []ReimbursementRow
	Ledger         []LedgerEvent
}

// Empty reports whether nothing would be written.
func (b ReportBatch) Empty() bool {
	return len(b.Returns) == 0 && len(b.Removals) == 0 && len(b.Adjustments) == 0 &&
		len(b.Reimbursements) == 0 && len(b.Ledger) == 0
}
