package split

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/superapp-core/internal/common"
	"github.com/noah-isme/superapp-core/internal/payment"
	"github.com/noah-isme/superapp-core/internal/resilience"
)

// Handler exposes bill splitting over HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createRequest struct {
	Title        string          `json:"title" validate:"max=120"`
	Total        json.RawMessage `json:"total"`
	Participants []string        `json:"participants" validate:"max=500"`
}

type settleRequest struct {
	Credential string `json:"credential" validate:"required"`
}

// Routes mounts the split endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/participants/{index}/settle", h.Settle)
}

// Create allocates a split. The total may be a decimal string or a JSON number; numbers are
// taken from their literal text so no float conversion happens.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "split service not configured", nil)
		return
	}
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	if err := h.validate(body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
		return
	}
	req, err := h.Svc.Create(r.Context(), totalText(body.Total), body.Title, body.Participants)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": req})
}

// Get returns a stored split.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": req})
}

// Settle pays one participant's share.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid participant index", nil)
		return
	}
	var body settleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	if err := h.validate(body); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "credential is required", nil)
		return
	}
	settlement, req, err := h.Svc.Settle(r.Context(), chi.URLParam(r, "id"), index, body.Credential)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"settlement": settlement,
			"split":      req,
		},
	})
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func totalText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

func writeError(w http.ResponseWriter, err error) {
	var declined *payment.DeclinedError
	switch {
	case errors.Is(err, ErrInvalidAmount):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidAmount, "total must be a positive amount", nil)
	case errors.Is(err, ErrNoParticipants):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeNoParticipants, "at least one participant is required", nil)
	case errors.Is(err, ErrInvalidParticipant):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidParticipant, err.Error(), nil)
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrParticipantNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	case errors.Is(err, ErrAlreadyPaid):
		common.JSONError(w, http.StatusConflict, common.CodeAlreadyPaid, "participant already paid", nil)
	case errors.As(err, &declined):
		common.JSONError(w, http.StatusPaymentRequired, common.CodePaymentDeclined, declined.Error(), map[string]any{"reason": declined.Code})
	case errors.Is(err, payment.ErrInvalidRequest):
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, err.Error(), nil)
	case errors.Is(err, payment.ErrUnavailable), errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstreamUnavailable, "payment service unavailable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to process split", nil)
	}
}
