package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/superapp-core/internal/catalog"
	"github.com/noah-isme/superapp-core/internal/money"
)

func testCatalog() catalog.Snapshot {
	return catalog.NewSnapshot(
		catalog.Product{ID: "tea", Name: "Tea", VendorID: "v2", Price: money.New(120_50, "BDT")},
		catalog.Product{ID: "rice", Name: "Rice", VendorID: "v1", Price: money.New(80_00, "BDT")},
		catalog.Product{ID: "salt", Name: "Salt", VendorID: "v2", Price: money.New(25, "BDT")},
	)
}

func TestSummarizeGroupsByVendor(t *testing.T) {
	ctx := context.Background()
	a := newCart(t, NewMemoryStore(), nil)
	_, err := a.AddItem(ctx, "tea", addr("Dhaka"))
	require.NoError(t, err)
	require.NoError(t, a.SetQuantity(ctx, "rice", 2))
	require.NoError(t, a.SetQuantity(ctx, "salt", 3))
	_, err = a.AddItem(ctx, "delisted", nil)
	require.NoError(t, err)
	before := a.Entries()

	s, err := a.Summarize(testCatalog())
	require.NoError(t, err)
	require.Equal(t, before, a.Entries())
	require.Equal(t, []string{"delisted"}, s.Missing)
	require.Len(t, s.Vendors, 2)
	require.Equal(t, "v1", s.Vendors[0].VendorID)
	require.Equal(t, int64(160_00), s.Vendors[0].Subtotal.Minor)
	require.Equal(t, "v2", s.Vendors[1].VendorID)
	require.Equal(t, int64(120_50+75), s.Vendors[1].Subtotal.Minor)
	require.Equal(t, "Dhaka", s.Vendors[1].Lines[0].DeliveryAddress)
	require.Equal(t, int64(75), s.Vendors[1].Lines[1].LineTotal.Minor)

	var sum int64
	for _, v := range s.Vendors {
		sum += v.Subtotal.Minor
	}
	require.Equal(t, sum, s.GrandTotal.Minor)
	require.Equal(t, "BDT", s.GrandTotal.Currency)
}

func TestSummarizeEmpty(t *testing.T) {
	s, err := Summarize("BDT", nil, nil)
	require.NoError(t, err)
	require.Empty(t, s.Vendors)
	require.True(t, s.GrandTotal.IsZero())
}

func TestSummarizeCurrencyMismatch(t *testing.T) {
	snap := catalog.NewSnapshot(catalog.Product{ID: "p", VendorID: "v", Price: money.New(1, "USD")})
	_, err := Summarize("BDT", []Entry{{ProductID: "p", Quantity: 1}}, snap)
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
}
