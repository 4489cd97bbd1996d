package handler

import (
	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/gin-gonic/gin"
)

// SettlementHandler records payments and serves the payment history
type SettlementHandler struct {
	BaseHandler
	settlements *financeapp.SettlementService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(settlements *financeapp.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

// RecordPayment godoc
// @Summary Record a payment against a counterparty's open documents
// @Description A rejected draw answers 422 INSUFFICIENT_FUNDS with the
// @Description recovery options in error.details. Send Idempotency-Key to
// @Description make retries safe.
// @Tags    settlements
// @Router  /settlements [post]
func (h *SettlementHandler) RecordPayment(c *gin.Context) {
	var req financeapp.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	req.Actor = getActor(c)

	result, err := h.settlements.RecordPayment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Get godoc
// @Summary Get a settlement
// @Tags    settlements
// @Router  /settlements/{id} [get]
func (h *SettlementHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	settlement, err := h.settlements.GetSettlement(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, settlement)
}

// ListByCounterparty godoc
// @Summary List a counterparty's settlements
// @Tags    settlements
// @Router  /counterparties/{id}/settlements [get]
func (h *SettlementHandler) ListByCounterparty(c *gin.Context) {
	counterpartyID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	page, err := h.settlements.ListSettlements(c.Request.Context(), counterpartyID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}
