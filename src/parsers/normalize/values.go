package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Plain decimal notation only; exponent forms are rejected.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Ambiguous numeric dates are read month first; day-first layouts only
// match when the month-first reading is impossible.
var tradeDateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"1/2/2006",
	"1-2-2006",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"2 January 2006",
	"20060102",
}

var tradeTimestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2-1-2006 15:04:05",
	"02-Jan-2006 15:04:05",
}

// ParseTradeDate reads a calendar date in any supported layout and returns it
// as YYYY-MM-DD. Time of day, when present, is dropped.
func ParseTradeDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, layout := range tradeDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	for _, layout := range tradeTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return "", false
}

// ParseAmount reads a plain decimal number. Thousands separators and common
// currency symbols are ignored.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	for _, junk := range []string{",", "₹", "$", "€", "£", " "} {
		s = strings.ReplaceAll(s, junk, "")
	}
	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}
	negative := s[0] == '-'
	s = strings.TrimLeft(s, "+-")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	if negative {
		s = "-" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParsePositive reads a number that must be strictly greater than zero.
func ParsePositive(raw string) (decimal.Decimal, bool) {
	d, ok := ParseAmount(raw)
	if !ok || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// NormalizeSymbol removes all whitespace and upper-cases s.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
