package split

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/superapp-core/internal/events"
	"github.com/noah-isme/superapp-core/internal/obs"
)

// ErrRequestNotFound is returned for an unknown split id.
var ErrRequestNotFound = errors.New("split: request not found")

// Guard serialises work on a key across processes.
type Guard interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

const stripes = 64

// Service stores allocated splits so participants can settle them later. Settlements of one
// split are serialised in process by a striped mutex and across processes by Lock when set.
type Service struct {
	Allocator Allocator
	Settler   *Settler
	Events    events.Emitter
	Logger    zerolog.Logger
	Store     Store
	Lock      Guard
	LockTTL   time.Duration

	once  sync.Once
	mu    [stripes]sync.Mutex
	local Store
}

// NewService constructs a split service backed by an in-memory store.
func NewService(alloc Allocator, settler *Settler, bus events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		Allocator: alloc,
		Settler:   settler,
		Events:    bus,
		Logger:    logger,
	}
}

func (s *Service) store() Store {
	if s.Store != nil {
		return s.Store
	}
	s.once.Do(func() { s.local = NewMemoryStore(DefaultTTL) })
	return s.local
}

func (s *Service) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.mu[h.Sum32()%stripes]
}

// Create allocates a new split from a decimal total and stores it.
func (s *Service) Create(ctx context.Context, total, title string, participantIDs []string) (*Request, error) {
	if s == nil {
		return nil, errors.New("split service not configured")
	}
	req, err := s.Allocator.Allocate(total, title, participantIDs)
	obs.SplitRequestsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		return nil, err
	}
	if err := s.store().Save(ctx, req); err != nil {
		return nil, fmt.Errorf("save split: %w", err)
	}

	s.Logger.Info().
		Str("split_id", req.ID()).
		Int64("total_minor", req.Total().Minor).
		Int("participants", req.Len()).
		Msg("split created")
	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicSplitCreated, req.ID(), req); err != nil {
			s.Logger.Warn().Err(err).Str("split_id", req.ID()).Msg("emit split created")
		}
	}
	return req.Clone(), nil
}

// Get returns a snapshot of a stored split.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	if s == nil {
		return nil, errors.New("split service not configured")
	}
	return s.store().Load(ctx, id)
}

// Settle pays the share at index and returns the settlement with the updated split. The payment
// reference is derived from the split id and index, so a retry after a failed save is not
// charged twice by the wallet.
func (s *Service) Settle(ctx context.Context, id string, index int, credential string) (Settlement, *Request, error) {
	if s == nil {
		return Settlement{}, nil, errors.New("split service not configured")
	}
	mu := s.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	var (
		settlement Settlement
		req        *Request
	)
	run := func(ctx context.Context) error {
		loaded, err := s.store().Load(ctx, id)
		if err != nil {
			return err
		}
		if settlement, err = s.Settler.Settle(ctx, loaded, index, credential); err != nil {
			return err
		}
		if err := s.store().Save(ctx, loaded); err != nil {
			s.Logger.Error().Err(err).Str("split_id", id).Int("index", index).Msg("save settled split")
			return fmt.Errorf("save split: %w", err)
		}
		req = loaded
		return nil
	}
	var err error
	if s.Lock != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		err = s.Lock.WithLock(ctx, "split:"+id, ttl, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return Settlement{}, nil, err
	}
	return settlement, req.Clone(), nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrNoParticipants):
		return "no_participants"
	case errors.Is(err, ErrInvalidParticipant):
		return "invalid_participant"
	default:
		return "error"
	}
}
