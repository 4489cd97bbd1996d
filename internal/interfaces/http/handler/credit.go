package handler

import (
	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/gin-gonic/gin"
)

// CreditHandler exposes a counterparty's credit ledger
type CreditHandler struct {
	BaseHandler
	credits *financeapp.CreditService
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(credits *financeapp.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

// CreditLedgerResponse is the balance together with one page of history
type CreditLedgerResponse struct {
	financeapp.CreditBalanceResponse
	Transactions []financeapp.CreditTransactionResponse `json:"transactions"`
}

// Get godoc
// @Summary Get a counterparty's available credit and its transactions
// @Tags    credit
// @Router  /counterparties/{id}/credit [get]
func (h *CreditHandler) Get(c *gin.Context) {
	counterpartyID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	balance, err := h.credits.Balance(ctx, counterpartyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, err := h.credits.Transactions(ctx, counterpartyID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, CreditLedgerResponse{
		CreditBalanceResponse: *balance,
		Transactions:          page.Items,
	}, page.Total, page.Page, page.PageSize)
}

// Grant godoc
// @Summary Add manual credit, e.g. for returned goods
// @Tags    credit
// @Router  /counterparties/{id}/credit [post]
func (h *CreditHandler) Grant(c *gin.Context) {
	counterpartyID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req financeapp.GrantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	txn, err := h.credits.Grant(c.Request.Context(), counterpartyID, req, getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, txn)
}
