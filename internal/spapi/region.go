package spapi

import (
	"strings"
	"time"
)

// Region describes a platform region: API host and signing region.
type Region struct {
	Code          string
	Endpoint      string
	SigningRegion string
	Marketplaces  map[string]string // country code -> marketplace id
}

var regions = map[string]Region{
	"eu": {
		Code:          "eu",
		Endpoint:      "https://sellingpartnerapi-eu.amazon.com",
		SigningRegion: "eu-west-1",
		Marketplaces: map[string]string{
			"DE": "A1PA6795UKMFR9",
			"FR": "A13V1IB3VIYZZH",
			"IT": "APJ6JRA9NG5V4",
			"ES": "A1RKKUPIHCS9HS",
			"NL": "A1805IZSGTT6HS",
			"SE": "A2NODRKZP88ZB9",
			"PL": "A1C3SOZRARQ6R3",
			"BE": "AMEN7PMS3EDDL",
			"UK": "A1F83G8C2ARO7P",
			"TR": "A33AVAJ2PDY3EV",
			"AE": "A2VIGQ35RCS4UG",
			"SA": "A17E79C6D8DWNP",
			"EG": "ARBP9OOSHTCHU",
			"IN": "A21TJRUUN4KGV",
		},
	},
	"na": {
		Code:          "na",
		Endpoint:      "https://sellingpartnerapi-na.amazon.com",
		SigningRegion: "us-east-1",
		Marketplaces: map[string]string{
			"US": "ATVPDKIKX0DER",
			"CA": "A2EUQ1WTGCTBG2",
			"MX": "A1AM78C64UM0Y8",
			"BR": "A2Q3Y263D00KWC",
		},
	},
	"fe": {
		Code:          "fe",
		Endpoint:      "https://sellingpartnerapi-fe.amazon.com",
		SigningRegion: "us-west-2",
		Marketplaces: map[string]string{
			"JP": "A1VC38T7YXB528",
			"AU": "A39IBJ37TRP1C6",
			"SG": "A19VAU5U5O7RUS",
		},
	},
}

// DefaultMarketplaces are used when an account lists none.
var DefaultMarketplaces = map[string][]string{
	"eu": {"DE", "FR", "IT", "ES"},
	"na": {"US"},
	"fe": {"JP"},
}

// LookupRegion returns the region for code (eu, na, fe).
func LookupRegion(code string) (Region, bool) {
	r, ok := regions[strings.ToLower(strings.TrimSpace(code))]
	return r, ok
}

// MarketplaceIDs maps country codes to marketplace ids for the region,
// silently dropping codes the region does not know. Order is preserved and
// duplicates removed.
func MarketplaceIDs(region string, codes []string) []string {
	r, ok := LookupRegion(region)
	if !ok {
		return nil
	}
	if len(codes) == 0 {
		codes = DefaultMarketplaces[r.Code]
	}
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		id, ok := r.Marketplaces[strings.ToUpper(strings.TrimSpace(c))]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ParseMarketplaces splits a stored "DE,FR, it" list into upper-case codes.
func ParseMarketplaces(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatTime renders t the way the platform requires: UTC, whole seconds, Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
