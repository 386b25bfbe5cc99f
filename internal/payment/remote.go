package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/superapp-core/internal/money"
	"github.com/noah-isme/superapp-core/internal/obs"
	"github.com/noah-isme/superapp-core/internal/resilience"
)

// ErrUnavailable wraps transport failures and unexpected upstream statuses.
var ErrUnavailable = errors.New("payment service unavailable")

// Remote calls the wallet payment service over HTTP.
type Remote struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	Logger  zerolog.Logger
}

type remoteRequest struct {
	Reference   string `json:"reference"`
	Kind        Kind   `json:"kind"`
	AmountMinor int64  `json:"amountMinorUnits"`
	Currency    string `json:"currency"`
	Credential  string `json:"credential"`
	Items       []Item `json:"items,omitempty"`
}

type remoteResponse struct {
	TransactionID string    `json:"transactionId"`
	AmountMinor   int64     `json:"amountMinorUnits"`
	Currency      string    `json:"currency"`
	AcceptedAt    time.Time `json:"acceptedAt"`
	Code          string    `json:"code"`
	Reason        string    `json:"reason"`
}

// Pay implements Collaborator. The reference doubles as the Idempotency-Key so retried
// attempts never charge twice.
func (r *Remote) Pay(ctx context.Context, req Request) (conf Confirmation, err error) {
	if r == nil {
		return Confirmation{}, errors.New("payment: remote collaborator not configured")
	}
	ctx, span := otel.Tracer("payment").Start(ctx, "payment.Pay")
	span.SetAttributes(
		attribute.String("payment.kind", string(req.Kind)),
		attribute.String("payment.reference", req.Reference),
		attribute.Int64("payment.amount_minor", req.Amount.Minor),
	)
	defer func() {
		obs.PaymentCallsTotal.WithLabelValues(string(req.Kind), outcome(err)).Inc()
		if err != nil && !errors.Is(err, ErrDeclined) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return Confirmation{}, err
	}
	body, err := json.Marshal(remoteRequest{
		Reference:   req.Reference,
		Kind:        req.Kind,
		AmountMinor: req.Amount.Minor,
		Currency:    req.Amount.Currency,
		Credential:  req.Credential,
		Items:       req.Items,
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("encode payment request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(r.BaseURL, "/")+"/payments", bytes.NewReader(body))
	if err != nil {
		return Confirmation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := r.HTTP.Do(ctx, httpReq)
	if err != nil {
		r.Logger.Warn().Err(err).Str("reference", req.Reference).Msg("payment call failed")
		return Confirmation{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded remoteResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil && resp.StatusCode < 300 {
			return Confirmation{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if decoded.TransactionID == "" {
			return Confirmation{}, fmt.Errorf("%w: missing transaction id", ErrUnavailable)
		}
		amount := req.Amount
		if decoded.Currency != "" {
			amount = money.New(decoded.AmountMinor, decoded.Currency)
		}
		at := decoded.AcceptedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		return Confirmation{TransactionID: decoded.TransactionID, Amount: amount, AcceptedAt: at}, nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		code := decoded.Code
		if code == "" {
			code = "DECLINED"
		}
		return Confirmation{}, &DeclinedError{Code: code, Reason: decoded.Reason}
	default:
		return Confirmation{}, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDeclined):
		return "declined"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
