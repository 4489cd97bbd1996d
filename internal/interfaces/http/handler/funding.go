package handler

import (
	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/gin-gonic/gin"
)

// FundingHandler manages cash tills, bank accounts and owner funds
type FundingHandler struct {
	BaseHandler
	funding *financeapp.FundingService
}

// NewFundingHandler creates a new FundingHandler
func NewFundingHandler(funding *financeapp.FundingService) *FundingHandler {
	return &FundingHandler{funding: funding}
}

// Create godoc
// @Summary Create a funding source
// @Tags    funding-sources
// @Router  /funding-sources [post]
func (h *FundingHandler) Create(c *gin.Context) {
	var req financeapp.CreateFundingSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	source, err := h.funding.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, source)
}

// List godoc
// @Summary List funding sources
// @Tags    funding-sources
// @Router  /funding-sources [get]
func (h *FundingHandler) List(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	page, err := h.funding.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
// @Summary Get a funding source and its available balance
// @Tags    funding-sources
// @Router  /funding-sources/{id} [get]
func (h *FundingHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	source, err := h.funding.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, source)
}

// Deposit godoc
// @Summary Top up a funding source
// @Tags    funding-sources
// @Router  /funding-sources/{id}/deposit [post]
func (h *FundingHandler) Deposit(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req financeapp.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	source, err := h.funding.Deposit(c.Request.Context(), id, req, getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, source)
}
