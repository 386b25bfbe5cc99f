package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/superapp-core/internal/money"
)

// Kind distinguishes what a payment settles.
type Kind string

const (
	// KindCheckout pays a cart checkout payload.
	KindCheckout Kind = "checkout"
	// KindSplitShare settles one participant's share of a bill split.
	KindSplitShare Kind = "split_share"
)

// ReasonInsufficientFunds is the decline reason reported when the wallet balance is too low.
const ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"

// ErrDeclined matches every *DeclinedError via errors.Is.
var ErrDeclined = errors.New("payment declined")

// ErrInvalidRequest is returned before any collaborator call when the request is malformed.
var ErrInvalidRequest = errors.New("invalid payment request")

// Item identifies one purchased product and where it is delivered.
type Item struct {
	ProductID       string `json:"productId"`
	DeliveryAddress string `json:"deliveryAddress"`
}

// Request is handed to the payment collaborator. Credential is opaque to the core (a PIN, a
// token) and is forwarded untouched.
type Request struct {
	Reference  string      `json:"reference"`
	Kind       Kind        `json:"kind"`
	Amount     money.Money `json:"amount"`
	Credential string      `json:"credential"`
	Items      []Item      `json:"items,omitempty"`
}

// Validate checks the fields the core is responsible for.
func (r Request) Validate() error {
	switch {
	case r.Reference == "":
		return fmt.Errorf("reference is required: %w", ErrInvalidRequest)
	case r.Kind != KindCheckout && r.Kind != KindSplitShare:
		return fmt.Errorf("unknown kind %q: %w", r.Kind, ErrInvalidRequest)
	case !r.Amount.IsPositive():
		return fmt.Errorf("amount must be positive: %w", ErrInvalidRequest)
	case r.Credential == "":
		return fmt.Errorf("credential is required: %w", ErrInvalidRequest)
	}
	return nil
}

// Confirmation is returned by the collaborator for an accepted payment.
type Confirmation struct {
	TransactionID string      `json:"transactionId"`
	Amount        money.Money `json:"amount"`
	AcceptedAt    time.Time   `json:"acceptedAt"`
}

// DeclinedError reports a payment the collaborator refused, e.g. for insufficient funds or a
// wrong credential.
type DeclinedError struct {
	Code   string
	Reason string
}

func (e *DeclinedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return "payment declined: " + e.Code
	}
	return fmt.Sprintf("payment declined: %s (%s)", e.Reason, e.Code)
}

// Unwrap allows errors.Is(err, ErrDeclined).
func (e *DeclinedError) Unwrap() error { return ErrDeclined }

// Collaborator executes payments on behalf of the core. Implementations own transport,
// credential verification, balance checks and cancellation semantics.
type Collaborator interface {
	Pay(ctx context.Context, req Request) (Confirmation, error)
}
