package mapper

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/and161185/fba-recon/internal/model"
)

// Aliases is an ordered list of column names that may carry one canonical field.
type Aliases []string

// Lookup returns the first non-empty value among the aliases. Exact header
// matches win; a second pass compares headers case-insensitively with
// spaces, underscores and dashes treated as equal.
func (a Aliases) Lookup(row model.RawRow) (string, bool) {
	for _, name := range a {
		if v := strings.TrimSpace(row[name]); v != "" {
			return v, true
		}
	}
	for _, name := range a {
		want := fold(name)
		for k, v := range row {
			if fold(k) == want {
				if v = strings.TrimSpace(v); v != "" {
					return v, true
				}
			}
		}
	}
	return "", false
}

func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(s)
}

func blank(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "NA", "N/A", "NULL", "-":
		return true
	}
	return false
}

// String resolves a text field; sentinel values map to nil.
func String(row model.RawRow, a Aliases) *string {
	v, ok := a.Lookup(row)
	if !ok || blank(v) {
		return nil
	}
	return &v
}

// Int resolves an integer field. Values like "3.0" or "1,200" are accepted;
// anything else maps to nil.
func Int(row model.RawRow, a Aliases) *int {
	v, ok := a.Lookup(row)
	if !ok {
		return nil
	}
	return ParseInt(v)
}

// ParseInt parses v tolerantly.
func ParseInt(v string) *int {
	if blank(v) {
		return nil
	}
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if n, err := strconv.Atoi(v); err == nil {
		return &n
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return nil
	}
	n := int(d.IntPart())
	return &n
}

// Decimal resolves a money field.
func Decimal(row model.RawRow, a Aliases) decimal.NullDecimal {
	v, ok := a.Lookup(row)
	if !ok {
		return decimal.NullDecimal{}
	}
	return ParseDecimal(v)
}

// ParseDecimal parses v tolerantly. When both separators occur the last one
// is the decimal mark. A lone comma is a decimal comma, repeated commas or
// dots alone are thousands separators.
func ParseDecimal(v string) decimal.NullDecimal {
	if blank(v) {
		return decimal.NullDecimal{}
	}
	v = strings.TrimSpace(v)
	comma, dot := strings.LastIndexByte(v, ','), strings.LastIndexByte(v, '.')
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		v = strings.Replace(strings.ReplaceAll(v, ".", ""), ",", ".", 1)
	case comma >= 0 && dot >= 0:
		v = strings.ReplaceAll(v, ",", "")
	case comma >= 0 && strings.Count(v, ",") == 1:
		v = strings.Replace(v, ",", ".", 1)
	case comma >= 0:
		v = strings.ReplaceAll(v, ",", "")
	case strings.Count(v, ".") > 1:
		v = strings.ReplaceAll(v, ".", "")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
}

// Time resolves a date or timestamp field, normalized to UTC.
func Time(row model.RawRow, a Aliases) *time.Time {
	v, ok := a.Lookup(row)
	if !ok {
		return nil
	}
	return ParseTime(v)
}

// ParseTime tries the layouts seen in marketplace reports.
func ParseTime(v string) *time.Time {
	if blank(v) {
		return nil
	}
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
