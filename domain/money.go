package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money normalises an amount to two decimal places.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal is price × quantity for one sale item.
func LineTotal(price decimal.Decimal, quantity int64) decimal.Decimal {
	return Money(price.Mul(decimal.NewFromInt(quantity)))
}

// ParseDate validates an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, InvalidInputf("date %q must be in YYYY-MM-DD format", s)
	}
	return t, nil
}

// FormatDate renders the calendar date of t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
