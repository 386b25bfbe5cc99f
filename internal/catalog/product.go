package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/superapp-core/internal/money"
)

// ErrProductNotFound is returned when a product is not (or no longer) listed.
var ErrProductNotFound = errors.New("catalog: product not found")

// Product is the catalog view the cart needs: a price in minor units, the selling vendor and a
// display name.
type Product struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	VendorID string      `json:"vendorId"`
	Price    money.Money `json:"price"`
}

// Lookup answers product queries synchronously from already resolved data.
type Lookup interface {
	Product(id string) (Product, bool)
}

// Source fetches a single product, typically over the network.
type Source interface {
	FetchProduct(ctx context.Context, id string) (Product, error)
}

// Snapshot is an in-memory catalog keyed by product id.
type Snapshot map[string]Product

// NewSnapshot indexes products by id.
func NewSnapshot(products ...Product) Snapshot {
	s := make(Snapshot, len(products))
	for _, p := range products {
		s[p.ID] = p
	}
	return s
}

// Product implements Lookup.
func (s Snapshot) Product(id string) (Product, bool) {
	p, ok := s[id]
	return p, ok
}

// FetchProduct implements Source.
func (s Snapshot) FetchProduct(_ context.Context, id string) (Product, error) {
	p, ok := s[id]
	if !ok {
		return Product{}, fmt.Errorf("%s: %w", id, ErrProductNotFound)
	}
	return p, nil
}
