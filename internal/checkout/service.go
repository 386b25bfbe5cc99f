package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/superapp-core/internal/cart"
	"github.com/noah-isme/superapp-core/internal/catalog"
	"github.com/noah-isme/superapp-core/internal/events"
	"github.com/noah-isme/superapp-core/internal/money"
	"github.com/noah-isme/superapp-core/internal/obs"
	"github.com/noah-isme/superapp-core/internal/payment"
)

// Receipt confirms a completed checkout.
type Receipt struct {
	Reference     string      `json:"reference"`
	TransactionID string      `json:"transactionId"`
	Total         money.Money `json:"total"`
	Items         []Item      `json:"items"`
	Missing       []string    `json:"missing"`
	CompletedAt   time.Time   `json:"completedAt"`
}

// Service runs the checkout flow for a session: build, pay, clear, announce.
type Service struct {
	Sessions     cart.Sessions
	Catalog      cart.Resolver
	Payments     payment.Collaborator
	Events       events.Emitter
	Logger       zerolog.Logger
	NewReference func() string
	// Lock, when set, also serialises checkouts for a session across processes. The cart is
	// reloaded from the store once the lock is held.
	Lock    Guard
	LockTTL time.Duration
}

// Guard serialises work on a key, typically across processes.
type Guard interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

type completedEvent struct {
	SessionID     string  `json:"sessionId"`
	Reference     string  `json:"reference"`
	TransactionID string  `json:"transactionId"`
	Payload       Payload `json:"payload"`
}

type failedEvent struct {
	SessionID string `json:"sessionId"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// Checkout pays for the session's cart with credential. The session stays locked for the whole
// flow so a second submit waits and then finds an empty cart.
func (s *Service) Checkout(ctx context.Context, sessionID, credential string) (Receipt, error) {
	return s.CheckoutWithKey(ctx, sessionID, credential, "")
}

// CheckoutWithKey is Checkout with the client's idempotency key. A non-empty key fixes the
// payment reference, so a retry after an unknown outcome reaches the wallet as the same payment.
func (s *Service) CheckoutWithKey(ctx context.Context, sessionID, credential, idemKey string) (receipt Receipt, err error) {
	if s == nil || s.Sessions == nil || s.Payments == nil {
		return Receipt{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.Checkout")
	span.SetAttributes(attribute.String("session.id", sessionID))
	reference := s.reference(sessionID, idemKey)
	logger := obs.LoggerFrom(ctx, s.Logger).With().Str("reference", reference).Logger()
	defer func() {
		res := result(err)
		obs.CheckoutTotal.WithLabelValues(res).Inc()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			s.emit(ctx, logger, events.TopicCheckoutFailed, sessionID, failedEvent{SessionID: sessionID, Reference: reference, Reason: res})
		}
		span.End()
	}()

	err = s.Sessions.WithCart(ctx, sessionID, func(a *cart.Aggregator) error {
		if s.Lock == nil {
			return s.run(ctx, a, reference, credential, &receipt, logger)
		}
		return s.Lock.WithLock(ctx, "checkout:"+sessionID, s.LockTTL, func(ctx context.Context) error {
			if err := a.Reload(ctx); err != nil {
				return err
			}
			return s.run(ctx, a, reference, credential, &receipt, logger)
		})
	})
	if err != nil {
		logger.Info().Err(err).Msg("checkout rejected")
		return Receipt{}, err
	}
	logger.Info().Str("transaction_id", receipt.TransactionID).Int64("total_minor", receipt.Total.Minor).Msg("checkout completed")
	return receipt, nil
}

func (s *Service) run(ctx context.Context, a *cart.Aggregator, reference, credential string, receipt *Receipt, logger zerolog.Logger) error {
	span := trace.SpanFromContext(ctx)
	sessionID := a.SessionID()
	entries := a.Entries()
	if err := Validate(entries); err != nil {
		return err
	}
	var lookup catalog.Lookup
	if s.Catalog != nil {
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ProductID
		}
		snap, err := s.Catalog.Resolve(ctx, ids)
		if err != nil {
			return err
		}
		lookup = snap
	}
	payload, err := BuildEntries(a.Currency(), entries, lookup)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int64("checkout.total_minor", payload.GrandTotal().Minor),
		attribute.Int("checkout.items", len(payload.items)),
	)

	conf, err := s.Payments.Pay(ctx, payment.Request{
		Reference:  reference,
		Kind:       payment.KindCheckout,
		Amount:     payload.GrandTotal(),
		Credential: credential,
		Items:      payload.PaymentItems(),
	})
	if err != nil {
		return err
	}
	if clearErr := a.Clear(ctx); clearErr != nil {
		logger.Error().Err(clearErr).Bool("clear_pending", a.ClearPending()).Msg("cart clear after payment failed")
	}
	*receipt = Receipt{
		Reference:     reference,
		TransactionID: conf.TransactionID,
		Total:         payload.GrandTotal(),
		Items:         payload.Items(),
		Missing:       payload.Missing(),
		CompletedAt:   conf.AcceptedAt,
	}
	s.emit(ctx, logger, events.TopicCheckoutCompleted, sessionID, completedEvent{
		SessionID:     sessionID,
		Reference:     reference,
		TransactionID: conf.TransactionID,
		Payload:       payload,
	})
	return nil
}

func (s *Service) emit(ctx context.Context, logger zerolog.Logger, topic, sessionID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, sessionID, payload); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("emit checkout event")
	}
}

func (s *Service) reference(sessionID, idemKey string) string {
	if idemKey != "" {
		return KeyedReference(sessionID, idemKey)
	}
	if s.NewReference != nil {
		return s.NewReference()
	}
	return "chk-" + uuid.NewString()
}

// KeyedReference derives the payment reference for a client idempotency key within a session.
func KeyedReference(sessionID, idemKey string) string {
	sum := sha256.Sum256([]byte(sessionID + "\x00" + idemKey))
	return "chk-" + hex.EncodeToString(sum[:16])
}

func result(err error) string {
	var declined *payment.DeclinedError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrMissingDeliveryAddress):
		return "missing_address"
	case errors.As(err, &declined):
		return "declined"
	default:
		return "error"
	}
}
