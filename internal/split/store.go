package split

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/superapp-core/internal/money"
)

// DefaultTTL is how long a split is kept after its last change.
const DefaultTTL = 30 * 24 * time.Hour

// Store persists split requests. Load fails with ErrRequestNotFound for unknown or expired ids.
type Store interface {
	Load(ctx context.Context, id string) (*Request, error)
	Save(ctx context.Context, req *Request) error
}

type storedParticipant struct {
	ID    string `json:"id"`
	Share int64  `json:"share"`
	Paid  bool   `json:"paid"`
}

type storedRequest struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Total        int64               `json:"total"`
	Currency     string              `json:"currency"`
	Participants []storedParticipant `json:"participants"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func encodeRequest(r *Request) ([]byte, error) {
	rec := storedRequest{
		ID:           r.id,
		Title:        r.title,
		Total:        r.total.Minor,
		Currency:     r.total.Currency,
		Participants: make([]storedParticipant, len(r.participants)),
		CreatedAt:    r.createdAt,
	}
	for i, p := range r.participants {
		rec.Participants[i] = storedParticipant{ID: p.ID, Share: p.Share.Minor, Paid: p.Paid}
	}
	return json.Marshal(rec)
}

func decodeRequest(data []byte) (*Request, error) {
	var rec storedRequest
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("split: decode stored request: %w", err)
	}
	r := &Request{
		id:           rec.ID,
		title:        rec.Title,
		total:        money.New(rec.Total, rec.Currency),
		participants: make([]Participant, len(rec.Participants)),
		createdAt:    rec.CreatedAt,
	}
	var sum int64
	for i, p := range rec.Participants {
		r.participants[i] = Participant{ID: p.ID, Share: money.New(p.Share, rec.Currency), Paid: p.Paid}
		sum += p.Share
	}
	if sum != rec.Total || len(r.participants) == 0 {
		return nil, fmt.Errorf("split: stored request %s does not add up", rec.ID)
	}
	return r, nil
}

// RedisStore keeps splits in Redis, each under its own key with a TTL refreshed on save.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a Redis-backed split store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, prefix: "split:request:"}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) (*Request, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("split: redis store not configured")
	}
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", id, ErrRequestNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeRequest(data)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, req *Request) error {
	if s == nil || s.client == nil {
		return errors.New("split: redis store not configured")
	}
	data, err := encodeRequest(req)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+req.id, data, s.ttl).Err()
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is the process-local Store used without Redis. Entries expire after the TTL and
// expired ones are swept on save.
type MemoryStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	values    map[string]memoryEntry
	nextSweep time.Time
}

// NewMemoryStore constructs an in-memory store. A non-positive ttl means DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, values: make(map[string]memoryEntry)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[id]
	if !ok || !s.now().Before(e.expiresAt) {
		delete(s.values, id)
		return nil, fmt.Errorf("%s: %w", id, ErrRequestNotFound)
	}
	return decodeRequest(e.data)
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, req *Request) error {
	data, err := encodeRequest(req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !now.Before(s.nextSweep) {
		for id, e := range s.values {
			if !now.Before(e.expiresAt) {
				delete(s.values, id)
			}
		}
		s.nextSweep = now.Add(time.Minute)
	}
	s.values[req.id] = memoryEntry{data: data, expiresAt: now.Add(s.ttl)}
	return nil
}

// Len returns the number of entries held, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
