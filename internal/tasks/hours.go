package tasks

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// maxHours is the largest value the service's hour fields hold.
var maxHours = decimal.RequireFromString("999.99")

// ParseHours normalizes an hour count to the two-place decimal string the
// service stores, so "1.5" becomes "1.50". Blank input means unset.
func ParseHours(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hours %q: %w", s, err)
	}
	if d.IsNegative() || d.GreaterThan(maxHours) {
		return nil, fmt.Errorf("hours must be between 0 and %s, got %s", maxHours.StringFixed(2), s)
	}
	out := d.StringFixed(2)
	return &out, nil
}

// Hours returns the value of a nullable hours field.
func Hours(s *string) (decimal.Decimal, bool) {
	if s == nil || *s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// RemainingHours is the estimate minus the time logged so far, floored at
// zero. It is unknown when the task has no estimate.
func (t Task) RemainingHours() (decimal.Decimal, bool) {
	estimated, ok := Hours(t.EstimatedHours)
	if !ok {
		return decimal.Zero, false
	}
	actual, _ := Hours(t.ActualHours)
	remaining := estimated.Sub(actual)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining, true
}
