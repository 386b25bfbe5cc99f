package common

import (
	"errors"
	"net/http"
)

// Stable error codes surfaced to API consumers.
const (
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeNoParticipants         = "NO_PARTICIPANTS"
	CodeInvalidParticipant     = "INVALID_PARTICIPANT"
	CodeInvalidQuantity        = "INVALID_QUANTITY"
	CodeMissingDeliveryAddress = "MISSING_DELIVERY_ADDRESS"
	CodeEmptyCart              = "EMPTY_CART"
	CodePaymentDeclined        = "PAYMENT_DECLINED"
	CodeAlreadyPaid            = "ALREADY_PAID"
	CodeNotFound               = "NOT_FOUND"
	CodeBadRequest             = "BAD_REQUEST"
	CodeMissingSession         = "MISSING_SESSION"
	CodeUpstreamUnavailable    = "UPSTREAM_UNAVAILABLE"
	CodeInternal               = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDetails returns a copy of the error carrying details for the response body.
func (e *AppError) WithDetails(details any) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Details = details
	return &clone
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest builds a 400 AppError.
func BadRequest(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusBadRequest, err)
}

// Unprocessable builds a 422 AppError.
func Unprocessable(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusUnprocessableEntity, err)
}

// AsAppError extracts an AppError from the chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}
