package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var amountCleaner = strings.NewReplacer("$", "", ",", "", "USD", "")

// ParseAmount parses a dollar amount from alert text into a fixed-point
// decimal. Thousands separators and the currency symbol are stripped first.
// Binary floats are never used for money.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountCleaner.Replace(raw))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", raw, err)
	}
	return d, nil
}

// Date formats institutions use in alert bodies
var alertDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
}

// parseAlertDate parses a date string from an alert body, falling back to
// the email's own date when the body carries none or an unknown format.
func parseAlertDate(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	for _, layout := range alertDateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d
		}
	}
	return fallback
}
