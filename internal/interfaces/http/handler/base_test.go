package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name:       "from context",
			setup:      func(c *gin.Context) { c.Set(middleware.RequestIDKey, "ctx-request-id") },
			expectedID: "ctx-request-id",
		},
		{
			name:       "from header when context empty",
			setup:      func(c *gin.Context) { c.Request.Header.Set(middleware.RequestIDHeader, "header-request-id") },
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodGet, "/")
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandlerResponses(t *testing.T) {
	h := &BaseHandler{}

	t.Run("success", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		h.Success(c, map[string]string{"key": "value"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeResponse(t, w).Success)
	})

	t.Run("success with meta", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		h.SuccessWithMeta(c, []string{"a", "b"}, 45, 2, 20)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(45), resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.Page)
		assert.Equal(t, 3, resp.Meta.TotalPages)
	})

	t.Run("created", func(t *testing.T) {
		c, w := newTestContext(http.MethodPost, "/")
		h.Created(c, map[string]string{"id": "123"})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("no content", func(t *testing.T) {
		router := gin.New()
		router.DELETE("/test", func(c *gin.Context) { h.NoContent(c) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/test", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("bad request carries request id", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		c.Set(middleware.RequestIDKey, "req-123")
		h.BadRequest(c, "Invalid request")

		resp := decodeResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
		assert.Equal(t, "req-123", resp.Error.RequestID)
	})
}

func TestHandleError(t *testing.T) {
	docID := uuid.New()

	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "validation",
			err:          &finance.ValidationError{Field: "amount", Message: "must be positive"},
			expectedCode: http.StatusBadRequest,
			expectedErr:  dto.ErrCodeValidation,
		},
		{
			name:         "not found",
			err:          shared.NewNotFoundError("DOCUMENT_NOT_FOUND", "document not found"),
			expectedCode: http.StatusNotFound,
			expectedErr:  "DOCUMENT_NOT_FOUND",
		},
		{
			name:         "over allocation",
			err:          &finance.OverAllocationError{DocumentID: &docID, Requested: decimal.NewFromInt(10), Available: decimal.NewFromInt(5)},
			expectedCode: http.StatusUnprocessableEntity,
			expectedErr:  dto.ErrCodeOverAllocation,
		},
		{
			name:         "insufficient credit",
			err:          &finance.InsufficientCreditError{CounterpartyID: uuid.New(), Available: decimal.Zero, Requested: decimal.NewFromInt(1)},
			expectedCode: http.StatusUnprocessableEntity,
			expectedErr:  dto.ErrCodeInsufficientCredit,
		},
		{
			name:         "illegal transition",
			err:          &finance.IllegalStateTransitionError{Entity: "document", From: "DRAFT", Action: "approve"},
			expectedCode: http.StatusConflict,
			expectedErr:  dto.ErrCodeIllegalTransition,
		},
		{
			name:         "concurrency conflict",
			err:          finance.NewConcurrencyConflictError("document", docID, 3),
			expectedCode: http.StatusConflict,
			expectedErr:  dto.ErrCodeConcurrencyConflict,
		},
		{
			name:         "wrapped domain error keeps its code",
			err:          fmt.Errorf("record payment: %w", shared.NewIllegalStateError(dto.ErrCodeDocumentLocked, "document is locked")),
			expectedCode: http.StatusConflict,
			expectedErr:  dto.ErrCodeDocumentLocked,
		},
		{
			name:         "unknown business code falls back to 422",
			err:          shared.NewDomainError("SOMETHING_ELSE", "rejected"),
			expectedCode: http.StatusUnprocessableEntity,
			expectedErr:  "SOMETHING_ELSE",
		},
		{
			name:         "plain error is opaque",
			err:          errors.New("connection reset"),
			expectedCode: http.StatusInternalServerError,
			expectedErr:  dto.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext(http.MethodPost, "/")
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
		})
	}

	t.Run("internal errors do not leak", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext(http.MethodPost, "/")
		h.HandleError(c, errors.New("pq: password authentication failed"))
		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := newTestContext(http.MethodPost, "/")
		h.HandleError(c, nil)
		assert.Empty(t, w.Body.Bytes())
	})
}

func TestHandleError_InsufficientFundsCarriesRemediation(t *testing.T) {
	source, err := finance.NewFundingSource("Petty cash", finance.FundingCash, decimal.RequireFromString("40.00"))
	require.NoError(t, err)
	wrapped := fmt.Errorf("reserve legs: %w", finance.NewInsufficientFundsError(source, decimal.RequireFromString("100.00")))

	h := &BaseHandler{}
	c, w := newTestContext(http.MethodPost, "/settlements")
	h.HandleError(c, wrapped)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Error struct {
			Code    string                 `json:"code"`
			Details dto.RemediationDetails `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, dto.ErrCodeInsufficientFunds, body.Error.Code)

	details := body.Error.Details
	assert.Equal(t, source.ID.String(), details.FundingSourceID)
	assert.Equal(t, "Petty cash", details.FundingSourceLabel)
	assert.Equal(t, "40.00", details.Available)
	assert.Equal(t, "100.00", details.Requested)
	assert.Equal(t, "60.00", details.Shortfall)
	require.Len(t, details.Options, 3)
	assert.Equal(t, finance.RemediationPayPartial, details.Options[0].Action)
	require.NotNil(t, details.Options[0].MaxAmount)
	assert.True(t, details.Options[0].MaxAmount.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, finance.RemediationSwitchSource, details.Options[1].Action)
	assert.Equal(t, finance.RemediationUsePersonalFunds, details.Options[2].Action)
}

func TestParseID(t *testing.T) {
	h := &BaseHandler{}

	t.Run("valid", func(t *testing.T) {
		want := uuid.New()
		c, _ := newTestContext(http.MethodGet, "/")
		c.Params = gin.Params{{Key: "id", Value: want.String()}}

		got, ok := h.ParseID(c, "id")
		assert.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("malformed", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

		_, ok := h.ParseID(c, "id")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
	})
}

func TestBindFilter(t *testing.T) {
	h := &BaseHandler{}

	tests := []struct {
		name     string
		query    string
		ok       bool
		page     int
		pageSize int
		orderDir string
	}{
		{name: "defaults", query: "", ok: true, page: 1, pageSize: 20, orderDir: "desc"},
		{name: "explicit", query: "?page=3&page_size=50&order_dir=asc", ok: true, page: 3, pageSize: 50, orderDir: "asc"},
		{name: "page size over limit", query: "?page_size=500", ok: false},
		{name: "bad direction", query: "?order_dir=sideways", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/documents"+tt.query)
			filter, ok := h.bindFilter(c)

			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			assert.Equal(t, tt.page, filter.Page)
			assert.Equal(t, tt.pageSize, filter.PageSize)
			assert.Equal(t, tt.orderDir, filter.OrderDir)
		})
	}
}
