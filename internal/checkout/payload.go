package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/superapp-core/internal/cart"
	"github.com/noah-isme/superapp-core/internal/catalog"
	"github.com/noah-isme/superapp-core/internal/money"
	"github.com/noah-isme/superapp-core/internal/payment"
)

var (
	// ErrEmptyCart is returned when there is nothing to check out.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrMissingDeliveryAddress matches every *MissingAddressError.
	ErrMissingDeliveryAddress = errors.New("checkout: missing delivery address")
)

// MissingAddressError lists the products that still need a delivery address.
type MissingAddressError struct {
	ProductIDs []string
}

func (e *MissingAddressError) Error() string {
	return fmt.Sprintf("checkout: missing delivery address for %s", strings.Join(e.ProductIDs, ", "))
}

// Unwrap allows errors.Is(err, ErrMissingDeliveryAddress).
func (e *MissingAddressError) Unwrap() error { return ErrMissingDeliveryAddress }

// Item is one purchased product and its delivery address.
type Item struct {
	ProductID       string `json:"productId"`
	DeliveryAddress string `json:"deliveryAddress"`
}

// Payload is the immutable request handed to the payment collaborator.
type Payload struct {
	items   []Item
	total   money.Money
	missing []string
}

// Items returns a copy of the items in cart order.
func (p Payload) Items() []Item { return append([]Item(nil), p.items...) }

// GrandTotal returns the amount to charge.
func (p Payload) GrandTotal() money.Money { return p.total }

// Missing returns product ids left out because the catalog no longer lists them.
func (p Payload) Missing() []string { return append([]string(nil), p.missing...) }

// PaymentItems converts the items for the payment request.
func (p Payload) PaymentItems() []payment.Item {
	out := make([]payment.Item, len(p.items))
	for i, it := range p.items {
		out[i] = payment.Item{ProductID: it.ProductID, DeliveryAddress: it.DeliveryAddress}
	}
	return out
}

// MarshalJSON renders the payload wire shape.
func (p Payload) MarshalJSON() ([]byte, error) {
	items := p.items
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(struct {
		Items      []Item `json:"items"`
		GrandTotal int64  `json:"grandTotalMinorUnits"`
		Currency   string `json:"currency"`
	}{Items: items, GrandTotal: p.total.Minor, Currency: p.total.Currency})
}

// MissingAddresses returns the product ids of entries without a delivery address.
func MissingAddresses(entries []cart.Entry) []string {
	var missing []string
	for _, e := range entries {
		if !e.HasAddress() {
			missing = append(missing, e.ProductID)
		}
	}
	return missing
}

// Validate runs the checks that need no catalog data: an empty cart, then missing addresses.
func Validate(entries []cart.Entry) error {
	if len(entries) == 0 {
		return ErrEmptyCart
	}
	if missing := MissingAddresses(entries); len(missing) > 0 {
		return &MissingAddressError{ProductIDs: missing}
	}
	return nil
}

// Build assembles the payload from the aggregator's entries and a resolved catalog.
func Build(a *cart.Aggregator, lookup catalog.Lookup) (Payload, error) {
	if a == nil {
		return Payload{}, ErrEmptyCart
	}
	return BuildEntries(a.Currency(), a.Entries(), lookup)
}

// BuildEntries is Build over a plain entry list. Entries the catalog does not list are excluded
// from the items and the total; if none remain the cart counts as empty.
func BuildEntries(currency string, entries []cart.Entry, lookup catalog.Lookup) (Payload, error) {
	if err := Validate(entries); err != nil {
		return Payload{}, err
	}
	summary, err := cart.Summarize(currency, entries, lookup)
	if err != nil {
		return Payload{}, err
	}
	missing := make(map[string]struct{}, len(summary.Missing))
	for _, id := range summary.Missing {
		missing[id] = struct{}{}
	}
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if _, gone := missing[e.ProductID]; gone {
			continue
		}
		items = append(items, Item{ProductID: e.ProductID, DeliveryAddress: strings.TrimSpace(e.DeliveryAddress)})
	}
	if len(items) == 0 {
		return Payload{}, fmt.Errorf("no listed products remain: %w", ErrEmptyCart)
	}
	return Payload{items: items, total: summary.GrandTotal, missing: summary.Missing}, nil
}
