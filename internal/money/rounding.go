package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingMode selects how a fractional minor unit is resolved when parsing major units.
type RoundingMode int

const (
	// HalfUp rounds midpoints away from zero, matching the client's Math.round behaviour for
	// non-negative totals.
	HalfUp RoundingMode = iota
	// HalfEven rounds midpoints to the nearest even minor unit.
	HalfEven
)

func (m RoundingMode) String() string {
	switch m {
	case HalfUp:
		return "half_up"
	case HalfEven:
		return "half_even"
	default:
		return "unknown"
	}
}

// ParseRoundingMode maps configuration values onto a RoundingMode. Empty means HalfUp.
func ParseRoundingMode(value string) (RoundingMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "half_up", "halfup":
		return HalfUp, nil
	case "half_even", "halfeven", "bankers":
		return HalfEven, nil
	default:
		return HalfUp, fmt.Errorf("unknown rounding mode %q", value)
	}
}

func (m RoundingMode) round(d decimal.Decimal) decimal.Decimal {
	if m == HalfEven {
		return d.RoundBank(0)
	}
	return d.Round(0)
}
