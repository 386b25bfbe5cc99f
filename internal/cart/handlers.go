package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/superapp-core/internal/catalog"
	"github.com/noah-isme/superapp-core/internal/common"
	"github.com/noah-isme/superapp-core/internal/money"
)

// Sessions hands out the aggregator of a session with exclusive access for the duration of fn.
type Sessions interface {
	WithCart(ctx context.Context, sessionID string, fn func(*Aggregator) error) error
}

// Resolver resolves product ids into catalog data.
type Resolver interface {
	Resolve(ctx context.Context, ids []string) (catalog.Snapshot, error)
}

// Handler wires cart operations to HTTP. Every route expects common.RequireSession upstream.
type Handler struct {
	Sessions Sessions
	Catalog  Resolver
	Validate *validator.Validate
}

type addItemRequest struct {
	ProductID       string  `json:"productId" validate:"required,max=128"`
	DeliveryAddress *string `json:"deliveryAddress" validate:"omitempty,max=512"`
}

type setQuantityRequest struct {
	Quantity *float64 `json:"quantity" validate:"required"`
}

// Routes mounts the cart endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Clear)
	r.Post("/items", h.AddItem)
	r.Put("/items/{productId}", h.SetQuantity)
	r.Delete("/items/{productId}", h.RemoveItem)
}

// Get returns the entries and the vendor-grouped summary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, "", nil)
}

// AddItem adds one unit of a product.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var body addItemRequest
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, r, http.StatusCreated, body.ProductID, func(ctx context.Context, a *Aggregator) error {
		_, err := a.AddItem(ctx, body.ProductID, body.DeliveryAddress)
		return err
	})
}

// SetQuantity sets an absolute quantity; zero removes the entry.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var body setQuantityRequest
	if !h.decode(w, r, &body) {
		return
	}
	productID := chi.URLParam(r, "productId")
	h.respond(w, r, http.StatusOK, productID, func(ctx context.Context, a *Aggregator) error {
		return a.SetQuantityFloat(ctx, productID, *body.Quantity)
	})
}

// RemoveItem deletes a product from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	h.respond(w, r, http.StatusOK, "", func(ctx context.Context, a *Aggregator) error {
		return a.RemoveItem(ctx, productID)
	})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, "", func(ctx context.Context, a *Aggregator) error {
		return a.Clear(ctx)
	})
}

var errCatalogUnavailable = errors.New("cart: catalog unavailable")

// respond resolves the catalog for the cart plus touched before applying mutate, so a catalog
// outage fails the request without changing the cart and a client retry is safe.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, touched string, mutate func(context.Context, *Aggregator) error) {
	if h.Sessions == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart sessions not configured", nil)
		return
	}
	ctx := r.Context()
	sessionID, ok := common.SessionID(ctx)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeMissingSession, common.SessionHeader+" header is required", nil)
		return
	}
	var (
		entries  []Entry
		currency string
		snapshot catalog.Snapshot
	)
	err := h.Sessions.WithCart(ctx, sessionID, func(a *Aggregator) error {
		if h.Catalog != nil {
			ids := productIDs(a.Entries())
			if touched = strings.TrimSpace(touched); touched != "" && indexOf(a.entries, touched) < 0 {
				ids = append(ids, touched)
			}
			snap, err := h.Catalog.Resolve(ctx, ids)
			if err != nil {
				return fmt.Errorf("%w: %w", errCatalogUnavailable, err)
			}
			snapshot = snap
		}
		if mutate != nil {
			if err := mutate(ctx, a); err != nil {
				return err
			}
		}
		entries = a.Entries()
		currency = a.Currency()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := Summarize(currency, entries, snapshot)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	common.JSON(w, status, map[string]any{
		"data": map[string]any{
			"sessionId": sessionID,
			"entries":   entries,
			"summary":   summary,
		},
	})
}

func productIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ProductID
	}
	return ids
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
			return false
		}
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errCatalogUnavailable):
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstreamUnavailable, "catalog unavailable", nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidQuantity, err.Error(), nil)
	case errors.Is(err, ErrInvalidProduct):
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "productId is required", nil)
	case errors.Is(err, money.ErrCurrencyMismatch):
		common.JSONError(w, http.StatusConflict, common.CodeInternal, "catalog price currency does not match the cart", nil)
	default:
		common.WriteError(w, err)
	}
}
