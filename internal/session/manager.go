package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/superapp-core/internal/cart"
)

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("session: manager closed")

type slot struct {
	mu       sync.Mutex
	cart     *cart.Aggregator
	lastUsed time.Time
	// dead is set under mu once the slot has left the map. Waiters must fetch a new slot.
	dead bool
}

// Manager owns one cart aggregator per session id. Calls for the same session are serialised;
// different sessions proceed in parallel.
type Manager struct {
	store    cart.Store
	notifier cart.Notifier
	logger   zerolog.Logger
	options  []cart.Option
	now      func() time.Time

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// NewManager constructs a manager persisting carts to store.
func NewManager(store cart.Store, notifier cart.Notifier, logger zerolog.Logger, opts ...cart.Option) *Manager {
	if store == nil {
		store = cart.NewMemoryStore()
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger,
		options:  opts,
		now:      time.Now,
		slots:    make(map[string]*slot),
	}
}

func (m *Manager) slot(id string) (*slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s, ok := m.slots[id]
	if !ok {
		s = &slot{}
		m.slots[id] = s
	}
	return s, nil
}

// WithCart runs fn with exclusive access to the session's aggregator, restoring it from the
// store on first use.
func (m *Manager) WithCart(ctx context.Context, sessionID string, fn func(*cart.Aggregator) error) error {
	if m == nil {
		return errors.New("session: manager not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session: id is required")
	}
	s, err := m.lockSlot(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.cart == nil {
		a, err := cart.New(ctx, sessionID, m.store, m.notifier, m.logger, m.options...)
		if err != nil {
			return err
		}
		s.cart = a
		m.logger.Debug().Str("session_id", sessionID).Int("entries", a.Len()).Msg("session opened")
	}
	s.lastUsed = m.now()
	return fn(s.cart)
}

// lockSlot returns the live slot for id with its mutex held.
func (m *Manager) lockSlot(id string) (*slot, error) {
	for {
		s, err := m.slot(id)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if !s.dead {
			return s, nil
		}
		s.mu.Unlock()
	}
}

// Open restores the session's cart ahead of use.
func (m *Manager) Open(ctx context.Context, sessionID string) error {
	return m.WithCart(ctx, sessionID, func(*cart.Aggregator) error { return nil })
}

// Close drops the in-memory aggregator, waiting for any call in progress. Its state is already
// in the store.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.slots[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.retire(sessionID, s)
}

// retire removes s from the map. s.mu must be held; lock order is slot then manager.
func (m *Manager) retire(id string, s *slot) {
	if s.dead {
		return
	}
	s.dead = true
	s.cart = nil
	m.mu.Lock()
	if m.slots[id] == s {
		delete(m.slots, id)
	}
	m.mu.Unlock()
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Sweep closes sessions idle for longer than idle and returns how many were closed. Sessions in
// use are skipped, as are carts whose clear has not reached the store yet.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	type candidate struct {
		id string
		s  *slot
	}
	m.mu.Lock()
	var stale []candidate
	for id, s := range m.slots {
		if s.mu.TryLock() {
			if sweepable(s, cutoff) {
				stale = append(stale, candidate{id: id, s: s})
			}
			s.mu.Unlock()
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, c := range stale {
		if !c.s.mu.TryLock() {
			continue
		}
		if sweepable(c.s, cutoff) {
			m.retire(c.id, c.s)
			closed++
		}
		c.s.mu.Unlock()
	}
	return closed
}

func sweepable(s *slot, cutoff time.Time) bool {
	if s.dead || !s.lastUsed.Before(cutoff) {
		return false
	}
	return s.cart == nil || !s.cart.ClearPending()
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(idle); n > 0 {
				m.logger.Debug().Int("closed", n).Msg("idle sessions swept")
			}
		}
	}
}

// Shutdown closes every session and rejects further use. Calls in progress finish first.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	slots := m.slots
	m.slots = make(map[string]*slot)
	m.mu.Unlock()
	for _, s := range slots {
		s.mu.Lock()
		s.dead = true
		s.cart = nil
		s.mu.Unlock()
	}
}
