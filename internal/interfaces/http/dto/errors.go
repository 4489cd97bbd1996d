package dto

import (
	"net/http"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
)

// Error codes. Domain codes pass through unchanged so clients see the
// same code the engine raised.
const (
	ErrCodeInternal = "INTERNAL_ERROR"

	ErrCodeValidation          = finance.CodeValidation
	ErrCodeInsufficientFunds   = finance.CodeInsufficientFunds
	ErrCodeOverAllocation      = finance.CodeOverAllocation
	ErrCodeInsufficientCredit  = finance.CodeInsufficientCredit
	ErrCodeIllegalTransition   = finance.CodeIllegalTransition
	ErrCodeDocumentLocked      = finance.CodeDocumentLocked
	ErrCodeConcurrencyConflict = finance.CodeConcurrency

	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInvalidState  = "INVALID_STATE"
	ErrCodeLockTimeout   = "LOCK_TIMEOUT"

	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeTokenExpired     = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid     = "INVALID_TOKEN"
	ErrCodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	ErrCodeIdempotencyReuse = "IDEMPOTENCY_KEY_REUSED"
	ErrCodeRequestInFlight  = "REQUEST_IN_PROGRESS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound: http.StatusNotFound,

	// State and concurrency errors -> 409 Conflict
	ErrCodeIllegalTransition:   http.StatusConflict,
	ErrCodeDocumentLocked:      http.StatusConflict,
	ErrCodeInvalidState:        http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeLockTimeout:         http.StatusConflict,
	ErrCodeIdempotencyReuse:    http.StatusConflict,
	ErrCodeRequestInFlight:     http.StatusConflict,

	// Money rule errors -> 422 Unprocessable Entity
	ErrCodeInsufficientFunds:  http.StatusUnprocessableEntity,
	ErrCodeOverAllocation:     http.StatusUnprocessableEntity,
	ErrCodeInsufficientCredit: http.StatusUnprocessableEntity,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// kindHTTPStatus is the fallback for codes missing from ErrorCodeHTTPStatus
var kindHTTPStatus = map[shared.ErrorKind]int{
	shared.KindValidation:   http.StatusBadRequest,
	shared.KindNotFound:     http.StatusNotFound,
	shared.KindBusiness:     http.StatusUnprocessableEntity,
	shared.KindIllegalState: http.StatusConflict,
	shared.KindConflict:     http.StatusConflict,
	shared.KindInternal:     http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForDomainError resolves the status of a domain error by code,
// then by kind
func StatusForDomainError(err *shared.DomainError) int {
	if status, ok := ErrorCodeHTTPStatus[err.Code]; ok {
		return status
	}
	kind := err.Kind
	if kind == "" {
		kind = shared.KindBusiness
	}
	if status, ok := kindHTTPStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RemediationDetails is the error detail of an INSUFFICIENT_FUNDS response
type RemediationDetails struct {
	FundingSourceID    string                      `json:"funding_source_id"`
	FundingSourceLabel string                      `json:"funding_source_label"`
	Available          string                      `json:"available"`
	Requested          string                      `json:"requested"`
	Shortfall          string                      `json:"shortfall"`
	Options            []finance.RemediationOption `json:"options"`
}

// NewRemediationDetails builds the recovery menu for a rejected draw
func NewRemediationDetails(err *finance.InsufficientFundsError) RemediationDetails {
	return RemediationDetails{
		FundingSourceID:    err.FundingSourceID.String(),
		FundingSourceLabel: err.FundingSourceLabel,
		Available:          shared.FormatMoney(err.Available),
		Requested:          shared.FormatMoney(err.Requested),
		Shortfall:          shared.FormatMoney(err.Shortfall),
		Options:            err.RemediationOptions(),
	}
}
