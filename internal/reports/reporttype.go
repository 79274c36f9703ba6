package reports

import (
	"strings"

	"github.com/and161185/fba-recon/internal/spapi"
)

// Report types pulled by the ingestion pipeline.
const (
	ReturnsReport        = "GET_FBA_FULFILLMENT_CUSTOMER_RETURNS_DATA"
	RemovalsReport       = "GET_FBA_FULFILLMENT_REMOVAL_ORDER_DETAIL_DATA"
	AdjustmentsReport    = "GET_FBA_FULFILLMENT_INVENTORY_ADJUSTMENTS_DATA"
	ReimbursementsReport = "GET_FBA_REIMBURSEMENTS_DATA"
)

// legacyCodes maps numeric report codes from older tooling to report types.
var legacyCodes = map[string]string{
	"2605": AdjustmentsReport,
}

// NormalizeReportType trims whitespace, strips legacy underscore wrapping
// and resolves numeric legacy codes.
func NormalizeReportType(rt string) string {
	rt = spapi.TrimLegacyUnderscores(strings.TrimSpace(rt))
	if mapped, ok := legacyCodes[rt]; ok {
		return mapped
	}
	return rt
}
