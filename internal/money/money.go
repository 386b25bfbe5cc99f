package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Exponent is the number of minor-unit digits for every supported currency.
const Exponent = 2

var (
	// ErrInvalidAmount is returned when a decimal amount cannot be represented in minor units.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrCurrencyMismatch is returned when combining amounts of different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrOverflow is returned when arithmetic leaves the int64 minor-unit range.
	ErrOverflow = errors.New("amount overflow")
	// ErrInvalidCurrency is returned for malformed ISO 4217 codes.
	ErrInvalidCurrency = errors.New("invalid currency code")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

const (
	// maxAmountLen bounds decimal input; int64 minor units never need more than 19 integer digits.
	maxAmountLen = 40
	// maxExponent bounds the exponent of any decimal before it is rescaled.
	maxExponent = 400
)

// Money is an amount of minor currency units (paisa, cents) tagged with its currency.
type Money struct {
	Minor    int64  `json:"minorUnits"`
	Currency string `json:"currency"`
}

// New constructs a Money value from minor units.
func New(minor int64, currency string) Money {
	return Money{Minor: minor, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Zero returns a zero amount in the provided currency.
func Zero(currency string) Money {
	return New(0, currency)
}

// ParseMajor converts a decimal major-unit string such as "123.45" into minor units.
// Negative, non-numeric and out-of-range values fail with ErrInvalidAmount.
func ParseMajor(value, currency string, mode RoundingMode) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Money{}, fmt.Errorf("empty amount: %w", ErrInvalidAmount)
	}
	if len(trimmed) > maxAmountLen {
		return Money{}, fmt.Errorf("amount has %d characters: %w", len(trimmed), ErrOverflow)
	}
	if strings.ContainsAny(trimmed, "eE") {
		return Money{}, fmt.Errorf("exponent notation %q: %w", trimmed, ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, fmt.Errorf("parse %q: %w", trimmed, ErrInvalidAmount)
	}
	return fromDecimal(d, currency, mode)
}

// FromMajorFloat converts a number-typed major-unit value. It exists only for UI inputs that
// arrive as numbers; the value goes through its shortest decimal representation, never through
// float multiplication.
func FromMajorFloat(value float64, currency string, mode RoundingMode) (Money, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Money{}, fmt.Errorf("non-finite amount: %w", ErrInvalidAmount)
	}
	return fromDecimal(decimal.NewFromFloat(value), currency, mode)
}

func fromDecimal(d decimal.Decimal, currency string, mode RoundingMode) (Money, error) {
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return Money{}, fmt.Errorf("amount exponent %d: %w", exp, ErrInvalidAmount)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("negative amount %s: %w", d.String(), ErrInvalidAmount)
	}
	minor := mode.round(d.Shift(Exponent))
	if minor.GreaterThan(maxMinor) {
		return Money{}, fmt.Errorf("amount %s: %w", d.String(), ErrOverflow)
	}
	return New(minor.IntPart(), currency), nil
}

// Major returns the decimal major-unit representation for display boundaries.
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.Minor, -Exponent)
}

// Format renders the amount as a major-unit decimal string, e.g. "3333.34".
func (m Money) Format() string {
	return m.Major().StringFixed(Exponent)
}

// String renders the amount with its currency code.
func (m Money) String() string {
	if m.Currency == "" {
		return m.Format()
	}
	return m.Format() + " " + m.Currency
}

// IsZero reports whether the amount has no minor units.
func (m Money) IsZero() bool { return m.Minor == 0 }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Minor > 0 }

// Add sums two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%s + %s: %w", m.Currency, other.Currency, ErrCurrencyMismatch)
	}
	if (other.Minor > 0 && m.Minor > math.MaxInt64-other.Minor) ||
		(other.Minor < 0 && m.Minor < math.MinInt64-other.Minor) {
		return Money{}, ErrOverflow
	}
	return Money{Minor: m.Minor + other.Minor, Currency: m.Currency}, nil
}

// Mul multiplies the amount by a non-negative integer quantity.
func (m Money) Mul(qty int64) (Money, error) {
	if qty < 0 {
		return Money{}, fmt.Errorf("negative multiplier %d: %w", qty, ErrInvalidAmount)
	}
	if qty != 0 && m.Minor != 0 {
		product := m.Minor * qty
		if product/qty != m.Minor {
			return Money{}, ErrOverflow
		}
		return Money{Minor: product, Currency: m.Currency}, nil
	}
	return Money{Minor: 0, Currency: m.Currency}, nil
}

// Sum adds amounts that all share the provided currency.
func Sum(currency string, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		next, err := total.Add(a)
		if err != nil {
			return Money{}, err
		}
		total = next
	}
	return total, nil
}

// ValidateCurrency checks that code looks like an ISO 4217 alphabetic code.
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("%q: %w", code, ErrInvalidCurrency)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%q: %w", code, ErrInvalidCurrency)
		}
	}
	return nil
}
