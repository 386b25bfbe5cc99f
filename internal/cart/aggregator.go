package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/superapp-core/internal/obs"
)

// MaxQuantity caps a single entry's quantity.
const MaxQuantity = 9999

const (
	clearAttempts = 3
	clearBackoff  = 20 * time.Millisecond
)

var (
	// ErrInvalidQuantity is returned for negative, fractional or oversized quantities.
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
	// ErrInvalidProduct is returned for a blank product id.
	ErrInvalidProduct = errors.New("cart: invalid product id")
	// ErrPersist wraps store write failures. The in-memory mutation has already been applied.
	ErrPersist = errors.New("cart: persist failed")
)

// Entry is one product in the cart. The serialized cart is an ordered JSON array of entries.
type Entry struct {
	ProductID       string `json:"productId"`
	Quantity        int    `json:"quantity"`
	DeliveryAddress string `json:"deliveryAddress,omitempty"`
}

// HasAddress reports whether a delivery address was supplied.
func (e Entry) HasAddress() bool { return strings.TrimSpace(e.DeliveryAddress) != "" }

// Aggregator owns the cart entries of one session. It is not safe for concurrent use; callers
// serialise access per session.
type Aggregator struct {
	sessionID string
	currency  string
	entries   []Entry
	store     Store
	notifier  Notifier
	logger    zerolog.Logger
	// clearPending marks a cleared cart whose stored copy could not be removed yet.
	clearPending bool
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithCurrency sets the currency every catalog price must be in. Defaults to BDT.
func WithCurrency(code string) Option {
	return func(a *Aggregator) {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			a.currency = code
		}
	}
}

// New restores the session's cart from store. A missing or malformed stored value yields an empty
// cart; only store read failures are returned.
func New(ctx context.Context, sessionID string, store Store, notifier Notifier, logger zerolog.Logger, opts ...Option) (*Aggregator, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("cart: session id is required")
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	a := &Aggregator{
		sessionID: sessionID,
		currency:  "BDT",
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("session_id", sessionID).Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	raw, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("cart: load session %s: %w", sessionID, err)
	}
	a.entries = a.decode(raw)
	return a, nil
}

func (a *Aggregator) decode(raw []byte) []Entry {
	if len(raw) == 0 {
		return nil
	}
	var stored []Entry
	if err := json.Unmarshal(raw, &stored); err != nil {
		a.logger.Warn().Err(err).Msg("discarding malformed stored cart")
		return nil
	}
	out := make([]Entry, 0, len(stored))
	for _, e := range stored {
		e.ProductID = strings.TrimSpace(e.ProductID)
		if e.ProductID == "" || e.Quantity < 1 {
			a.logger.Warn().Str("product_id", e.ProductID).Int("quantity", e.Quantity).Msg("dropping invalid stored cart entry")
			continue
		}
		if e.Quantity > MaxQuantity {
			e.Quantity = MaxQuantity
		}
		if i := indexOf(out, e.ProductID); i >= 0 {
			out[i].Quantity = min(out[i].Quantity+e.Quantity, MaxQuantity)
			continue
		}
		out = append(out, e)
	}
	return out
}

// Reload replaces the in-memory entries with the stored cart. Another process sharing the store
// may have changed it. On a read failure the entries are left untouched. A cart whose clear is
// still pending is never reloaded: the stored copy is removed first, or Reload fails.
func (a *Aggregator) Reload(ctx context.Context) error {
	if a.clearPending {
		if err := a.removeStored(ctx); err != nil {
			return fmt.Errorf("cart: reload session %s: clear pending: %w", a.sessionID, err)
		}
		a.entries = nil
		return nil
	}
	raw, err := a.store.Load(ctx, a.sessionID)
	if err != nil {
		return fmt.Errorf("cart: reload session %s: %w", a.sessionID, err)
	}
	a.entries = a.decode(raw)
	return nil
}

// SessionID returns the owning session.
func (a *Aggregator) SessionID() string { return a.sessionID }

// Currency returns the cart currency.
func (a *Aggregator) Currency() string { return a.currency }

// Entries returns a copy of the entries in insertion order.
func (a *Aggregator) Entries() []Entry { return append([]Entry(nil), a.entries...) }

// Len returns the number of distinct products.
func (a *Aggregator) Len() int { return len(a.entries) }

// AddItem adds one unit of productID. An existing entry is incremented; a supplied address that
// differs from the stored one replaces it and notifies the address change.
func (a *Aggregator) AddItem(ctx context.Context, productID string, deliveryAddress *string) (Entry, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Entry{}, ErrInvalidProduct
	}
	address := ""
	if deliveryAddress != nil {
		address = strings.TrimSpace(*deliveryAddress)
	}

	i := indexOf(a.entries, productID)
	if i < 0 {
		a.entries = append(a.entries, Entry{ProductID: productID, Quantity: 1, DeliveryAddress: address})
		return a.commit(ctx, "add", a.entries[len(a.entries)-1])
	}
	if a.entries[i].Quantity >= MaxQuantity {
		return a.entries[i], fmt.Errorf("%s already at %d: %w", productID, MaxQuantity, ErrInvalidQuantity)
	}
	a.entries[i].Quantity++
	op := "merge"
	if address != "" && address != a.entries[i].DeliveryAddress {
		change := AddressChange{
			SessionID: a.sessionID,
			ProductID: productID,
			Previous:  a.entries[i].DeliveryAddress,
			Current:   address,
		}
		a.entries[i].DeliveryAddress = address
		if err := a.notifier.AddressChanged(ctx, change); err != nil {
			a.logger.Warn().Err(err).Str("product_id", productID).Msg("address change notification failed")
		}
	}
	return a.commit(ctx, op, a.entries[i])
}

// RemoveItem deletes the entry for productID regardless of quantity.
func (a *Aggregator) RemoveItem(ctx context.Context, productID string) error {
	i := indexOf(a.entries, strings.TrimSpace(productID))
	if i < 0 {
		return nil
	}
	removed := a.entries[i]
	a.entries = append(a.entries[:i], a.entries[i+1:]...)
	_, err := a.commit(ctx, "remove", removed)
	return err
}

// SetQuantity sets an absolute quantity. Zero removes the entry; a positive quantity on an absent
// product creates it.
func (a *Aggregator) SetQuantity(ctx context.Context, productID string, quantity int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrInvalidProduct
	}
	switch {
	case quantity < 0:
		return fmt.Errorf("quantity %d: %w", quantity, ErrInvalidQuantity)
	case quantity > MaxQuantity:
		return fmt.Errorf("quantity %d exceeds %d: %w", quantity, MaxQuantity, ErrInvalidQuantity)
	case quantity == 0:
		return a.RemoveItem(ctx, productID)
	}
	i := indexOf(a.entries, productID)
	if i < 0 {
		a.entries = append(a.entries, Entry{ProductID: productID, Quantity: quantity})
		_, err := a.commit(ctx, "set_quantity", a.entries[len(a.entries)-1])
		return err
	}
	a.entries[i].Quantity = quantity
	_, err := a.commit(ctx, "set_quantity", a.entries[i])
	return err
}

// SetQuantityFloat is SetQuantity for number-typed input; fractional, NaN and infinite values fail
// with ErrInvalidQuantity.
func (a *Aggregator) SetQuantityFloat(ctx context.Context, productID string, quantity float64) error {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity != math.Trunc(quantity) {
		return fmt.Errorf("quantity %v: %w", quantity, ErrInvalidQuantity)
	}
	if quantity > MaxQuantity || quantity < 0 {
		return fmt.Errorf("quantity %v: %w", quantity, ErrInvalidQuantity)
	}
	return a.SetQuantity(ctx, productID, int(quantity))
}

// Clear empties the cart, typically after a successful checkout. The stored copy is deleted with
// a few retries, then overwritten with an empty cart. If both fail the cart stays marked
// ClearPending, Reload refuses to restore it, and the next successful write settles it.
func (a *Aggregator) Clear(ctx context.Context) error {
	a.entries = nil
	obs.CartMutationsTotal.WithLabelValues("clear").Inc()
	if err := a.removeStored(ctx); err != nil {
		a.clearPending = true
		a.logger.Error().Err(err).Msg("cart clear could not reach the store")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// ClearPending reports whether a cleared cart may still be present in the store.
func (a *Aggregator) ClearPending() bool { return a.clearPending }

func (a *Aggregator) removeStored(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < clearAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(time.Duration(attempt) * clearBackoff):
			}
		}
		if err = a.store.Delete(ctx, a.sessionID); err == nil {
			a.clearPending = false
			return nil
		}
	}
	if saveErr := a.store.Save(ctx, a.sessionID, []byte("[]")); saveErr == nil {
		a.clearPending = false
		return nil
	}
	return err
}

func (a *Aggregator) commit(ctx context.Context, op string, e Entry) (Entry, error) {
	obs.CartMutationsTotal.WithLabelValues(op).Inc()
	a.logger.Debug().Str("op", op).Str("product_id", e.ProductID).Int("quantity", e.Quantity).Msg("cart mutated")
	if err := a.persist(ctx); err != nil {
		return e, err
	}
	return e, nil
}

func (a *Aggregator) persist(ctx context.Context) error {
	entries := a.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := a.store.Save(ctx, a.sessionID, data); err != nil {
		a.logger.Error().Err(err).Msg("cart store write failed")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	a.clearPending = false
	return nil
}

func indexOf(entries []Entry, productID string) int {
	for i, e := range entries {
		if e.ProductID == productID {
			return i
		}
	}
	return -1
}
