package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxScale is the largest number of decimal places accepted for an amount.
// Matches the precision of the amounts column in postgres.
const MaxScale = 8

// ParseAmount parses a signed decimal amount string. Positive amounts are
// credits, negative amounts are debits. Zero amounts are rejected because a
// zero-value ledger entry carries no economic meaning.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsZero() {
		return decimal.Zero, fmt.Errorf("amount must be non-zero")
	}
	if d.Exponent() < -MaxScale {
		return decimal.Zero, fmt.Errorf("amount %q exceeds %d decimal places", s, MaxScale)
	}
	return d, nil
}

// ValidCurrency reports whether code looks like an ISO 4217 currency code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Format renders an amount with two decimal places and its currency code,
// for logs and API responses.
func Format(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}
