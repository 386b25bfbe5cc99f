package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/superapp-core/internal/cart"
	"github.com/noah-isme/superapp-core/internal/lock"
	"github.com/noah-isme/superapp-core/internal/payment"
	"github.com/noah-isme/superapp-core/internal/session"
)

func TestCheckoutAcrossProcessesChargesOnce(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cart.NewRedisStore(client, time.Hour)
	locker := lock.Locker{R: client, Prefix: "lock:", RetryBackoff: 5 * time.Millisecond}
	pay := &payment.Fake{}
	newService := func() (*Service, *session.Manager) {
		m := session.NewManager(store, nil, zerolog.Nop())
		return &Service{
			Sessions: m,
			Catalog:  snapshotResolver(testCatalog()),
			Payments: pay,
			Logger:   zerolog.Nop(),
			Lock:     locker,
		}, m
	}
	first, firstSessions := newService()
	second, secondSessions := newService()

	ctx := context.Background()
	addr := "Road 2, Gulshan"
	require.NoError(t, firstSessions.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
		_, err := a.AddItem(ctx, "tea", &addr)
		return err
	}))
	// The second process loads the same cart before the first checks out.
	require.NoError(t, secondSessions.Open(ctx, "s1"))

	_, err = first.Checkout(ctx, "s1", "pin")
	require.NoError(t, err)
	_, err = second.Checkout(ctx, "s1", "pin")
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Len(t, pay.Calls(), 1)
	require.False(t, mr.Exists("lock:checkout:s1"))
}
