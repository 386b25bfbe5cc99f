package cart

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	changes []AddressChange
}

func (n *recordingNotifier) AddressChanged(_ context.Context, c AddressChange) error {
	n.changes = append(n.changes, c)
	return nil
}

type failingStore struct {
	MemoryStore
	loadErr, saveErr, deleteErr error
	deletes                     int
}

func (s *failingStore) Delete(ctx context.Context, id string) error {
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, id)
}

func (s *failingStore) Load(ctx context.Context, id string) ([]byte, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemoryStore.Load(ctx, id)
}

func (s *failingStore) Save(ctx context.Context, id string, v []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, id, v)
}

func newCart(t *testing.T, store Store, n Notifier) *Aggregator {
	t.Helper()
	a, err := New(context.Background(), "sess-1", store, n, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func addr(s string) *string { return &s }

func TestAddItemMerges(t *testing.T) {
	a := newCart(t, NewMemoryStore(), nil)
	ctx := context.Background()
	_, err := a.AddItem(ctx, "p1", nil)
	require.NoError(t, err)
	e, err := a.AddItem(ctx, "p1", nil)
	require.NoError(t, err)
	require.Equal(t, 2, e.Quantity)
	require.Equal(t, []Entry{{ProductID: "p1", Quantity: 2}}, a.Entries())
}

func TestAddItemAddressChangeNotifies(t *testing.T) {
	n := &recordingNotifier{}
	a := newCart(t, NewMemoryStore(), n)
	ctx := context.Background()

	_, err := a.AddItem(ctx, "p1", addr("Dhaka"))
	require.NoError(t, err)
	_, err = a.AddItem(ctx, "p1", addr("Dhaka"))
	require.NoError(t, err)
	_, err = a.AddItem(ctx, "p1", addr(""))
	require.NoError(t, err)
	require.Empty(t, n.changes)

	e, err := a.AddItem(ctx, "p1", addr("Chattogram"))
	require.NoError(t, err)
	require.Equal(t, 4, e.Quantity)
	require.Equal(t, "Chattogram", e.DeliveryAddress)
	require.Equal(t, []AddressChange{{SessionID: "sess-1", ProductID: "p1", Previous: "Dhaka", Current: "Chattogram"}}, n.changes)
}

func TestSetQuantityZeroEqualsRemove(t *testing.T) {
	ctx := context.Background()
	build := func() *Aggregator {
		a := newCart(t, NewMemoryStore(), nil)
		for _, p := range []string{"p1", "p2", "p3"} {
			_, err := a.AddItem(ctx, p, nil)
			require.NoError(t, err)
		}
		return a
	}
	viaSet := build()
	require.NoError(t, viaSet.SetQuantity(ctx, "p2", 0))
	viaRemove := build()
	require.NoError(t, viaRemove.RemoveItem(ctx, "p2"))
	require.Equal(t, viaRemove.Entries(), viaSet.Entries())
	require.Equal(t, 2, viaSet.Len())
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	a := newCart(t, NewMemoryStore(), nil)
	_, err := a.AddItem(ctx, "p1", addr("Sylhet"))
	require.NoError(t, err)

	require.NoError(t, a.SetQuantity(ctx, "p1", 5))
	require.NoError(t, a.SetQuantity(ctx, "p2", 3))
	require.Equal(t, []Entry{
		{ProductID: "p1", Quantity: 5, DeliveryAddress: "Sylhet"},
		{ProductID: "p2", Quantity: 3},
	}, a.Entries())

	require.ErrorIs(t, a.SetQuantity(ctx, "p1", -1), ErrInvalidQuantity)
	require.ErrorIs(t, a.SetQuantity(ctx, "p1", MaxQuantity+1), ErrInvalidQuantity)
	require.ErrorIs(t, a.SetQuantityFloat(ctx, "p1", 1.5), ErrInvalidQuantity)
	require.ErrorIs(t, a.SetQuantityFloat(ctx, "p1", math.NaN()), ErrInvalidQuantity)
	require.ErrorIs(t, a.SetQuantityFloat(ctx, "p1", math.Inf(1)), ErrInvalidQuantity)
	require.NoError(t, a.SetQuantityFloat(ctx, "p1", 2))
	require.Equal(t, 2, a.Entries()[0].Quantity)
	require.ErrorIs(t, a.SetQuantity(ctx, " ", 1), ErrInvalidProduct)
}

func TestReAddKeepsPosition(t *testing.T) {
	ctx := context.Background()
	a := newCart(t, NewMemoryStore(), nil)
	for _, p := range []string{"p1", "p2", "p1"} {
		_, err := a.AddItem(ctx, p, nil)
		require.NoError(t, err)
	}
	require.Equal(t, "p1", a.Entries()[0].ProductID)
}

func TestRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := newCart(t, store, nil)
	_, err := a.AddItem(ctx, "p2", addr("Khulna"))
	require.NoError(t, err)
	_, err = a.AddItem(ctx, "p1", nil)
	require.NoError(t, err)
	require.NoError(t, a.SetQuantity(ctx, "p1", 4))

	restored := newCart(t, store, nil)
	require.Equal(t, a.Entries(), restored.Entries())

	require.NoError(t, restored.Clear(ctx))
	require.Empty(t, newCart(t, store, nil).Entries())
}

func TestMalformedStoredValueMeansEmptyCart(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{"{not json", `{"productId":"p1"}`, `"oops"`} {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, "sess-1", []byte(raw)))
		a := newCart(t, store, nil)
		require.Empty(t, a.Entries(), raw)
	}
}

func TestStoredEntriesAreSanitised(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	raw := `[{"productId":"p1","quantity":2},{"productId":"","quantity":1},{"productId":"p2","quantity":0},{"productId":"p1","quantity":3}]`
	require.NoError(t, store.Save(ctx, "sess-1", []byte(raw)))
	a := newCart(t, store, nil)
	require.Equal(t, []Entry{{ProductID: "p1", Quantity: 5}}, a.Entries())
}

func TestStoreFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")
	_, err := New(ctx, "sess-1", &failingStore{loadErr: boom}, nil, zerolog.Nop())
	require.ErrorIs(t, err, boom)

	a := newCart(t, &failingStore{saveErr: boom}, nil)
	_, err = a.AddItem(ctx, "p1", nil)
	require.ErrorIs(t, err, ErrPersist)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, a.Len())

	_, err = New(ctx, " ", NewMemoryStore(), nil, zerolog.Nop())
	require.Error(t, err)
}

func TestReloadPicksUpStoreChanges(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	a := newCart(t, store, nil)
	other := newCart(t, store, nil)

	_, err := a.AddItem(ctx, "tea", nil)
	require.NoError(t, err)
	require.Equal(t, 0, other.Len())

	require.NoError(t, other.Reload(ctx))
	require.Equal(t, []Entry{{ProductID: "tea", Quantity: 1}}, other.Entries())

	store.loadErr = errors.New("redis down")
	require.Error(t, other.Reload(ctx))
	require.Equal(t, 1, other.Len())
}

func TestClearFallsBackToEmptyWrite(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	a := newCart(t, store, nil)
	_, err := a.AddItem(ctx, "tea", nil)
	require.NoError(t, err)

	store.deleteErr = errors.New("del refused")
	require.NoError(t, a.Clear(ctx))
	require.Equal(t, clearAttempts, store.deletes)
	require.False(t, a.ClearPending())

	raw, err := store.MemoryStore.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "[]", string(raw))
}

func TestClearPendingKeepsPaidCartFromReloading(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	a := newCart(t, store, nil)
	_, err := a.AddItem(ctx, "tea", nil)
	require.NoError(t, err)

	boom := errors.New("store down")
	store.deleteErr, store.saveErr = boom, boom
	require.ErrorIs(t, a.Clear(ctx), ErrPersist)
	require.True(t, a.ClearPending())
	require.Zero(t, a.Len())

	require.Error(t, a.Reload(ctx))
	require.Zero(t, a.Len())

	store.deleteErr, store.saveErr = nil, nil
	require.NoError(t, a.Reload(ctx))
	require.False(t, a.ClearPending())
	require.Zero(t, a.Len())
	raw, err := store.MemoryStore.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Nil(t, raw)
}
