package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/superapp-core/internal/common"
	"github.com/noah-isme/superapp-core/internal/money"
	"github.com/noah-isme/superapp-core/internal/payment"
	"github.com/noah-isme/superapp-core/internal/resilience"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type checkoutRequest struct {
	Credential string `json:"credential" validate:"required,max=256"`
}

// Checkout pays for the session's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	sessionID, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeMissingSession, common.SessionHeader+" header is required", nil)
		return
	}
	var body checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(body); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "credential is required", nil)
			return
		}
	}
	key := strings.TrimSpace(r.Header.Get(common.IdempotencyHeader))
	receipt, err := h.Svc.CheckoutWithKey(r.Context(), sessionID, body.Credential, key)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": receipt})
}

func writeError(w http.ResponseWriter, err error) {
	var (
		missing  *MissingAddressError
		declined *payment.DeclinedError
	)
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeEmptyCart, "cart is empty", nil)
	case errors.As(err, &missing):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeMissingDeliveryAddress, "every item needs a delivery address",
			map[string]any{"productIds": missing.ProductIDs})
	case errors.As(err, &declined):
		common.JSONError(w, http.StatusPaymentRequired, common.CodePaymentDeclined, declined.Error(), map[string]any{"reason": declined.Code})
	case errors.Is(err, payment.ErrInvalidRequest):
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
	case errors.Is(err, money.ErrCurrencyMismatch):
		common.JSONError(w, http.StatusConflict, common.CodeInternal, "catalog price currency does not match the cart", nil)
	case errors.Is(err, payment.ErrUnavailable), errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstreamUnavailable, "payment service unavailable", nil)
	default:
		common.WriteError(w, err)
	}
}
