package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/superapp-core/internal/cart"
)

func TestWithCartReusesAggregator(t *testing.T) {
	store := cart.NewMemoryStore()
	m := NewManager(store, nil, zerolog.Nop())
	ctx := context.Background()

	var first *cart.Aggregator
	require.NoError(t, m.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
		first = a
		_, err := a.AddItem(ctx, "p1", nil)
		return err
	}))
	require.NoError(t, m.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
		require.Same(t, first, a)
		return nil
	}))
	require.Equal(t, 1, m.Len())

	m.Close("s1")
	require.Equal(t, 0, m.Len())
	require.NoError(t, m.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
		require.NotSame(t, first, a)
		require.Equal(t, []cart.Entry{{ProductID: "p1", Quantity: 1}}, a.Entries())
		return nil
	}))
}

func TestWithCartSerialisesPerSession(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithCart(ctx, "shared", func(a *cart.Aggregator) error {
				_, err := a.AddItem(ctx, "p1", nil)
				return err
			})
		}()
	}
	wg.Wait()
	require.NoError(t, m.WithCart(ctx, "shared", func(a *cart.Aggregator) error {
		require.Equal(t, 50, a.Entries()[0].Quantity)
		return nil
	}))
}

func TestSweepClosesIdleSessions(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	require.NoError(t, m.Open(context.Background(), "old"))
	now = now.Add(time.Hour)
	require.NoError(t, m.Open(context.Background(), "fresh"))

	require.Equal(t, 1, m.Sweep(30*time.Minute))
	require.Equal(t, 1, m.Len())
}

func TestShutdownRejectsUse(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())
	m.Shutdown()
	require.ErrorIs(t, m.Open(context.Background(), "s"), ErrClosed)
	require.Error(t, m.Open(context.Background(), " "))
}

func TestSweepNeverSplitsASession(t *testing.T) {
	store := cart.NewMemoryStore()
	m := NewManager(store, nil, zerolog.Nop())
	ctx := context.Background()

	stop := make(chan struct{})
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		for {
			select {
			case <-stop:
				return
			default:
				m.Sweep(-time.Second)
			}
		}
	}()

	const calls = 500
	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithCart(ctx, "hot", func(a *cart.Aggregator) error {
				n := holders.Add(1)
				defer holders.Add(-1)
				for {
					seen := maxSeen.Load()
					if n <= seen || maxSeen.CompareAndSwap(seen, n) {
						break
					}
				}
				_, err := a.AddItem(ctx, "p1", nil)
				return err
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-swept

	require.Equal(t, int32(1), maxSeen.Load())
	require.NoError(t, m.WithCart(ctx, "hot", func(a *cart.Aggregator) error {
		require.Equal(t, calls, a.Entries()[0].Quantity)
		return nil
	}))
}

func TestCloseWaitsForCallInProgress(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
			close(entered)
			<-release
			_, err := a.AddItem(ctx, "p1", nil)
			return err
		})
	}()
	<-entered

	closed := make(chan struct{})
	go func() {
		m.Close("s1")
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while the session was in use")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
	<-closed
	require.Equal(t, 0, m.Len())

	require.NoError(t, m.WithCart(ctx, "s1", func(a *cart.Aggregator) error {
		require.Equal(t, []cart.Entry{{ProductID: "p1", Quantity: 1}}, a.Entries())
		return nil
	}))
}

type brokenClearStore struct {
	*cart.MemoryStore
	broken bool
}

func (s *brokenClearStore) Save(ctx context.Context, id string, v []byte) error {
	if s.broken {
		return errors.New("store down")
	}
	return s.MemoryStore.Save(ctx, id, v)
}

func (s *brokenClearStore) Delete(ctx context.Context, id string) error {
	if s.broken {
		return errors.New("store down")
	}
	return s.MemoryStore.Delete(ctx, id)
}

func TestSweepKeepsPendingClear(t *testing.T) {
	store := &brokenClearStore{MemoryStore: cart.NewMemoryStore()}
	m := NewManager(store, nil, zerolog.Nop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.WithCart(ctx, "paid", func(a *cart.Aggregator) error {
		if _, err := a.AddItem(ctx, "p1", nil); err != nil {
			return err
		}
		store.broken = true
		require.Error(t, a.Clear(ctx))
		return nil
	}))
	now = now.Add(time.Hour)
	require.Zero(t, m.Sweep(time.Minute))
	require.Equal(t, 1, m.Len())

	store.broken = false
	require.NoError(t, m.WithCart(ctx, "paid", func(a *cart.Aggregator) error {
		require.NoError(t, a.Reload(ctx))
		require.Zero(t, a.Len())
		return nil
	}))
	now = now.Add(time.Hour)
	require.Equal(t, 1, m.Sweep(time.Minute))
}
