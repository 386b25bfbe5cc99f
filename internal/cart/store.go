package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an idle cart is kept in the store.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the persistence collaborator. Values are opaque serialized carts keyed by session;
// Load returns nil without error when nothing is stored.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, value []byte) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisStore keeps carts in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, prefix: "cart:session:"}
}

func (s *RedisStore) key(sessionID string) string { return s.prefix + sessionID }

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("cart: redis store not configured")
	}
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = s.client.Expire(ctx, s.key(sessionID), s.ttl).Err()
	return data, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, sessionID string, value []byte) error {
	if s == nil || s.client == nil {
		return errors.New("cart: redis store not configured")
	}
	return s.client.Set(ctx, s.key(sessionID), value, s.ttl).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.client == nil {
		return errors.New("cart: redis store not configured")
	}
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store used when Redis is not configured and in tests. Like
// RedisStore it applies a sliding TTL: reads and writes extend an entry, expired entries read as
// absent and are evicted on later writes. The zero value uses DefaultTTL.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	values    map[string]memoryValue
	nextSweep time.Time
}

// NewMemoryStore constructs an empty in-memory store with DefaultTTL.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(DefaultTTL)
}

// NewMemoryStoreWithTTL constructs an empty in-memory store. A non-positive ttl means DefaultTTL.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, values: make(map[string]memoryValue)}
}

func (s *MemoryStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *MemoryStore) expiry(now time.Time) time.Time {
	ttl := s.ttl
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Add(ttl)
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[sessionID]
	if !ok {
		return nil, nil
	}
	now := s.clock()
	if !now.Before(v.expiresAt) {
		delete(s.values, sessionID)
		return nil, nil
	}
	v.expiresAt = s.expiry(now)
	s.values[sessionID] = v
	return append([]byte(nil), v.data...), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, sessionID string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]memoryValue)
	}
	now := s.clock()
	if !now.Before(s.nextSweep) {
		for id, v := range s.values {
			if !now.Before(v.expiresAt) {
				delete(s.values, id)
			}
		}
		s.nextSweep = now.Add(time.Minute)
	}
	s.values[sessionID] = memoryValue{data: append([]byte(nil), value...), expiresAt: s.expiry(now)}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, sessionID)
	return nil
}

// Len returns the number of stored carts, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
