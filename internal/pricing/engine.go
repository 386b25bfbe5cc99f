package pricing

import (
	"fmt"

	"github.com/noah-isme/superapp-core/internal/money"
)

// Line describes a priced line item used for subtotal calculation.
type Line struct {
	Qty       int
	UnitPrice money.Money
}

// Total returns Qty × UnitPrice in minor units. Non-positive quantities contribute nothing.
func (l Line) Total() (money.Money, error) {
	if l.Qty <= 0 {
		return money.Zero(l.UnitPrice.Currency), nil
	}
	return l.UnitPrice.Mul(int64(l.Qty))
}

// Subtotal sums the line totals in the provided currency.
func Subtotal(currency string, lines []Line) (money.Money, error) {
	total := money.Zero(currency)
	for i, l := range lines {
		lt, err := l.Total()
		if err != nil {
			return money.Money{}, fmt.Errorf("line %d: %w", i, err)
		}
		if total, err = total.Add(lt); err != nil {
			return money.Money{}, fmt.Errorf("line %d: %w", i, err)
		}
	}
	return total, nil
}
