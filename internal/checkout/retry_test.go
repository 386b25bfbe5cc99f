package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/superapp-core/internal/cart"
	"github.com/noah-isme/superapp-core/internal/payment"
	"github.com/noah-isme/superapp-core/internal/resilience"
	"github.com/noah-isme/superapp-core/internal/session"
)

func TestTimedOutPaymentRetriesUnderSameReference(t *testing.T) {
	var (
		mu   sync.Mutex
		keys = map[string]int{}
		hits int
	)
	wallet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		first := hits == 1
		keys[r.Header.Get("Idempotency-Key")]++
		mu.Unlock()
		if first {
			time.Sleep(150 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactionId":"txn-1","amountMinorUnits":12050,"currency":"BDT"}`))
	}))
	t.Cleanup(wallet.Close)

	sessions := session.NewManager(cart.NewMemoryStore(), nil, zerolog.Nop())
	svc := &Service{
		Sessions: sessions,
		Catalog:  snapshotResolver(testCatalog()),
		Payments: &payment.Remote{
			BaseURL: wallet.URL,
			HTTP: resilience.HTTPClient{
				Client:      wallet.Client(),
				Target:      "wallet-test",
				MaxAttempts: 1,
				Timeout:     50 * time.Millisecond,
			},
			Logger: zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}

	ctx := context.Background()
	addr := "Road 9, Banani"
	require.NoError(t, sessions.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
		_, err := a.AddItem(ctx, "tea", &addr)
		return err
	}))

	_, err := svc.CheckoutWithKey(ctx, "s1", "pin", "submit-1")
	require.ErrorIs(t, err, payment.ErrUnavailable)

	receipt, err := svc.CheckoutWithKey(ctx, "s1", "pin", "submit-1")
	require.NoError(t, err)
	require.Equal(t, KeyedReference("s1", "submit-1"), receipt.Reference)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, hits)
	require.Len(t, keys, 1)
	require.Contains(t, keys, KeyedReference("s1", "submit-1"))
}

func TestKeyedReferenceIsScopedToSession(t *testing.T) {
	require.Equal(t, KeyedReference("s1", "k"), KeyedReference("s1", "k"))
	require.NotEqual(t, KeyedReference("s1", "k"), KeyedReference("s2", "k"))
	require.NotEqual(t, KeyedReference("s1", "k"), KeyedReference("s1", "k2"))
	require.Len(t, KeyedReference("s1", "k"), len("chk-")+32)
}

type passThroughGuard struct{ calls int }

func (g *passThroughGuard) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(context.Context) error) error {
	g.calls++
	return fn(ctx)
}

type unreachableAfterPay struct {
	*cart.MemoryStore
	down bool
}

func (s *unreachableAfterPay) Save(ctx context.Context, id string, v []byte) error {
	if s.down {
		return errors.New("store down")
	}
	return s.MemoryStore.Save(ctx, id, v)
}

func (s *unreachableAfterPay) Delete(ctx context.Context, id string) error {
	if s.down {
		return errors.New("store down")
	}
	return s.MemoryStore.Delete(ctx, id)
}

type downAfterPay struct {
	payment.Collaborator
	store *unreachableAfterPay
}

func (p downAfterPay) Pay(ctx context.Context, req payment.Request) (payment.Confirmation, error) {
	conf, err := p.Collaborator.Pay(ctx, req)
	p.store.down = true
	return conf, err
}

func TestFailedClearNeverChargesAgain(t *testing.T) {
	store := &unreachableAfterPay{MemoryStore: cart.NewMemoryStore()}
	fake := &payment.Fake{}
	guard := &passThroughGuard{}
	sessions := session.NewManager(store, nil, zerolog.Nop())
	svc := &Service{
		Sessions: sessions,
		Catalog:  snapshotResolver(testCatalog()),
		Payments: downAfterPay{Collaborator: fake, store: store},
		Logger:   zerolog.Nop(),
		Lock:     guard,
	}

	ctx := context.Background()
	addr := "Road 2, Gulshan"
	require.NoError(t, sessions.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
		_, err := a.AddItem(ctx, "tea", &addr)
		return err
	}))

	_, err := svc.Checkout(ctx, "s1", "pin")
	require.NoError(t, err)
	require.Len(t, fake.Calls(), 1)

	_, err = svc.Checkout(ctx, "s1", "pin")
	require.Error(t, err)
	require.Len(t, fake.Calls(), 1)

	store.down = false
	_, err = svc.Checkout(ctx, "s1", "pin")
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Len(t, fake.Calls(), 1)
	require.Equal(t, 3, guard.calls)
}
