package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	store := NewRedisStore(client, time.Hour)
	raw, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Nil(t, raw)

	a, err := New(ctx, "sess-1", store, nil, zerolog.Nop())
	require.NoError(t, err)
	_, err = a.AddItem(ctx, "p1", addr("Rajshahi"))
	require.NoError(t, err)
	require.True(t, mr.Exists("cart:session:sess-1"))
	require.Equal(t, time.Hour, mr.TTL("cart:session:sess-1"))

	restored, err := New(ctx, "sess-1", store, nil, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, a.Entries(), restored.Entries())

	require.NoError(t, restored.Clear(ctx))
	require.False(t, mr.Exists("cart:session:sess-1"))
}

func TestRedisStoreMalformedValue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set("cart:session:sess-2", "garbage"))
	a, err := New(context.Background(), "sess-2", NewRedisStore(client, 0), nil, zerolog.Nop())
	require.NoError(t, err)
	require.Zero(t, a.Len())
}

func TestMemoryStoreExpiresIdleCarts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithTTL(time.Hour)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "idle", []byte(`[{"productId":"p1","quantity":1}]`)))
	require.NoError(t, store.Save(ctx, "busy", []byte(`[{"productId":"p2","quantity":1}]`)))

	now = now.Add(45 * time.Minute)
	raw, err := store.Load(ctx, "busy")
	require.NoError(t, err)
	require.NotNil(t, raw)

	now = now.Add(30 * time.Minute)
	raw, err = store.Load(ctx, "idle")
	require.NoError(t, err)
	require.Nil(t, raw)
	raw, err = store.Load(ctx, "busy")
	require.NoError(t, err)
	require.NotNil(t, raw)

	now = now.Add(2 * time.Hour)
	require.NoError(t, store.Save(ctx, "fresh", []byte(`[]`)))
	require.Equal(t, 1, store.Len())
}
