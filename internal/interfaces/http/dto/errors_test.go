package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeInsufficientFunds, http.StatusUnprocessableEntity},
		{ErrCodeOverAllocation, http.StatusUnprocessableEntity},
		{ErrCodeIllegalTransition, http.StatusConflict},
		{ErrCodeDocumentLocked, http.StatusConflict},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeLockTimeout, http.StatusConflict},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestStatusForDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      *shared.DomainError
		expected int
	}{
		{"known code wins", shared.NewDomainError(finance.CodeIllegalTransition, "x"), http.StatusConflict},
		{"validation kind", shared.NewValidationError("CUSTOM", "x"), http.StatusBadRequest},
		{"business kind", shared.NewDomainError("CUSTOM", "x"), http.StatusUnprocessableEntity},
		{"illegal state kind", shared.NewIllegalStateError("CUSTOM", "x"), http.StatusConflict},
		{"not found kind", shared.NewNotFoundError("CUSTOM", "x"), http.StatusNotFound},
		{"missing kind is business", &shared.DomainError{Code: "CUSTOM"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusForDomainError(tt.err))
		})
	}
}

func TestNewRemediationDetails(t *testing.T) {
	source := &finance.FundingSource{Name: "Main bank", AvailableBalance: shared.MustMoney("100")}
	source.ID = uuid.New()
	err := finance.NewInsufficientFundsError(source, shared.MustMoney("400"))

	details := NewRemediationDetails(err)

	assert.Equal(t, "Main bank", details.FundingSourceLabel)
	assert.Equal(t, "100.00", details.Available)
	assert.Equal(t, "400.00", details.Requested)
	assert.Equal(t, "300.00", details.Shortfall)
	require.Len(t, details.Options, 3)
	assert.Equal(t, finance.RemediationPayPartial, details.Options[0].Action)

	raw, marshalErr := json.Marshal(NewErrorResponseWithDetails(ErrCodeInsufficientFunds, err.Error(), "req-1", details))
	require.NoError(t, marshalErr)
	assert.Contains(t, string(raw), `"shortfall":"300.00"`)
	assert.Contains(t, string(raw), `"max_amount":"100`)
	assert.Contains(t, string(raw), `"request_id":"req-1"`)
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		pageSize  int
		wantPages int
	}{
		{"exact pages", 40, 20, 2},
		{"partial last page", 41, 20, 3},
		{"empty", 0, 20, 0},
		{"unpaged", 7, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewSuccessResponseWithMeta([]int{}, tt.total, 1, tt.pageSize)
			assert.True(t, resp.Success)
			require.NotNil(t, resp.Meta)
			assert.Equal(t, tt.wantPages, resp.Meta.TotalPages)
		})
	}
}

func TestNewValidationErrorResponse(t *testing.T) {
	resp := NewValidationErrorResponse("Request validation failed", "req-2", []ValidationDetail{{Field: "kind", Message: "This field is required"}})

	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-2", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 1)
}
