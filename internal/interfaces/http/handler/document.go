package handler

import (
	"context"
	"errors"
	"io"

	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles bills, sales invoices and credit notes
type DocumentHandler struct {
	BaseHandler
	documents *financeapp.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(documents *financeapp.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Create godoc
// @Summary Create a draft document
// @Tags    documents
// @Router  /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	var req financeapp.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	doc, err := h.documents.Create(c.Request.Context(), req, getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, doc)
}

// List godoc
// @Summary List documents
// @Tags    documents
// @Router  /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	var filter financeapp.DocumentListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.documents.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
// @Summary Get a document with its payment status and aging
// @Tags    documents
// @Router  /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// GetByNumber godoc
// @Summary Get a document by its document number
// @Tags    documents
// @Router  /documents/number/{number} [get]
func (h *DocumentHandler) GetByNumber(c *gin.Context) {
	doc, err := h.documents.GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// UpdateLineItems godoc
// @Summary Replace the line items of a draft
// @Tags    documents
// @Router  /documents/{id}/line-items [put]
func (h *DocumentHandler) UpdateLineItems(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req financeapp.UpdateLineItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	doc, err := h.documents.UpdateLineItems(c.Request.Context(), id, req, getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// Delete godoc
// @Summary Delete a document that was never approved
// @Tags    documents
// @Router  /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Submit godoc
// @Summary Submit a draft for approval
// @Tags    documents
// @Router  /documents/{id}/submit [post]
func (h *DocumentHandler) Submit(c *gin.Context) {
	h.transition(c, h.documents.Submit)
}

// Approve godoc
// @Summary Approve a document, locking it for payment
// @Tags    documents
// @Router  /documents/{id}/approve [post]
func (h *DocumentHandler) Approve(c *gin.Context) {
	h.transition(c, h.documents.Approve)
}

// Resubmit godoc
// @Summary Return a rejected document to draft
// @Tags    documents
// @Router  /documents/{id}/resubmit [post]
func (h *DocumentHandler) Resubmit(c *gin.Context) {
	h.transition(c, h.documents.Resubmit)
}

// Reject godoc
// @Summary Reject a document pending approval
// @Tags    documents
// @Router  /documents/{id}/reject [post]
func (h *DocumentHandler) Reject(c *gin.Context) {
	h.transitionWithReason(c, h.documents.Reject)
}

// Cancel godoc
// @Summary Cancel a document, reversing what was settled
// @Tags    documents
// @Router  /documents/{id}/cancel [post]
func (h *DocumentHandler) Cancel(c *gin.Context) {
	h.transitionWithReason(c, h.documents.Cancel)
}

// ApplyCreditNote godoc
// @Summary Move an approved credit note into the counterparty's credit
// @Tags    documents
// @Router  /documents/{id}/apply-credit [post]
func (h *DocumentHandler) ApplyCreditNote(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	result, err := h.documents.ApplyCreditNote(c.Request.Context(), id, getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func (h *DocumentHandler) transition(c *gin.Context, fn func(context.Context, uuid.UUID, string) (*financeapp.DocumentResponse, error)) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	doc, err := fn(c.Request.Context(), id, getActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// transitionWithReason reads an optional {"reason": "..."} body. Whether a
// reason is required is decided by the document, not here.
func (h *DocumentHandler) transitionWithReason(c *gin.Context, fn func(context.Context, uuid.UUID, string, string) (*financeapp.DocumentResponse, error)) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req financeapp.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BindError(c, err)
		return
	}

	doc, err := fn(c.Request.Context(), id, getActor(c), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}
