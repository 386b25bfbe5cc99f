package cart

import (
	"fmt"
	"sort"

	"github.com/noah-isme/superapp-core/internal/catalog"
	"github.com/noah-isme/superapp-core/internal/money"
	"github.com/noah-isme/superapp-core/internal/pricing"
)

// Line is a cart entry joined with its catalog product.
type Line struct {
	ProductID       string      `json:"productId"`
	Name            string      `json:"name"`
	Quantity        int         `json:"quantity"`
	UnitPrice       money.Money `json:"unitPrice"`
	LineTotal       money.Money `json:"lineTotal"`
	DeliveryAddress string      `json:"deliveryAddress,omitempty"`
}

// VendorGroup collects the lines sold by one vendor.
type VendorGroup struct {
	VendorID string      `json:"vendorId"`
	Lines    []Line      `json:"lines"`
	Subtotal money.Money `json:"subtotal"`
}

// Summary is the vendor-grouped projection of a cart. Missing lists product ids the catalog no
// longer knows; they are excluded from every total.
type Summary struct {
	Vendors    []VendorGroup `json:"vendors"`
	GrandTotal money.Money   `json:"grandTotal"`
	Missing    []string      `json:"missing"`
}

// Summarize joins the entries against lookup and groups them by vendor, sorted by vendor id.
// It never mutates the cart.
func (a *Aggregator) Summarize(lookup catalog.Lookup) (Summary, error) {
	return Summarize(a.currency, a.entries, lookup)
}

// Summarize is the stateless form of Aggregator.Summarize.
func Summarize(currency string, entries []Entry, lookup catalog.Lookup) (Summary, error) {
	summary := Summary{
		Vendors:    []VendorGroup{},
		GrandTotal: money.Zero(currency),
		Missing:    []string{},
	}
	if lookup == nil {
		lookup = catalog.Snapshot{}
	}
	groups := make(map[string]*VendorGroup)
	priced := make(map[string][]pricing.Line)
	for _, e := range entries {
		product, ok := lookup.Product(e.ProductID)
		if !ok {
			summary.Missing = append(summary.Missing, e.ProductID)
			continue
		}
		if product.Price.Currency != summary.GrandTotal.Currency {
			return Summary{}, fmt.Errorf("product %s priced in %s: %w", e.ProductID, product.Price.Currency, money.ErrCurrencyMismatch)
		}
		pl := pricing.Line{Qty: e.Quantity, UnitPrice: product.Price}
		lineTotal, err := pl.Total()
		if err != nil {
			return Summary{}, fmt.Errorf("product %s: %w", e.ProductID, err)
		}
		g, ok := groups[product.VendorID]
		if !ok {
			g = &VendorGroup{VendorID: product.VendorID}
			groups[product.VendorID] = g
		}
		g.Lines = append(g.Lines, Line{
			ProductID:       e.ProductID,
			Name:            product.Name,
			Quantity:        e.Quantity,
			UnitPrice:       product.Price,
			LineTotal:       lineTotal,
			DeliveryAddress: e.DeliveryAddress,
		})
		priced[product.VendorID] = append(priced[product.VendorID], pl)
	}

	vendorIDs := make([]string, 0, len(groups))
	for id := range groups {
		vendorIDs = append(vendorIDs, id)
	}
	sort.Strings(vendorIDs)
	for _, id := range vendorIDs {
		g := groups[id]
		subtotal, err := pricing.Subtotal(currency, priced[id])
		if err != nil {
			return Summary{}, fmt.Errorf("vendor %s: %w", id, err)
		}
		g.Subtotal = subtotal
		if summary.GrandTotal, err = summary.GrandTotal.Add(subtotal); err != nil {
			return Summary{}, err
		}
		summary.Vendors = append(summary.Vendors, *g)
	}
	return summary, nil
}
