package handler

import (
	"time"

	financeapp "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportHandler serves read-only reports
type ReportHandler struct {
	BaseHandler
	aging *financeapp.AgingService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(aging *financeapp.AgingService) *ReportHandler {
	return &ReportHandler{aging: aging}
}

// AgingReportRequest holds the aging report query parameters
type AgingReportRequest struct {
	Kind           string    `form:"kind" binding:"required,oneof=BILL SALES_INVOICE"`
	CounterpartyID string    `form:"counterparty_id" binding:"omitempty,uuid"`
	AsOf           time.Time `form:"as_of" time_format:"2006-01-02" time_utc:"1"`
}

// Aging godoc
// @Summary Open bills or invoices grouped by days overdue
// @Tags    reports
// @Param   kind            query string true  "BILL or SALES_INVOICE"
// @Param   counterparty_id query string false "restrict to one counterparty"
// @Param   as_of           query string false "YYYY-MM-DD, defaults to today"
// @Router  /reports/aging [get]
func (h *ReportHandler) Aging(c *gin.Context) {
	var req AgingReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	query := financeapp.AgingQuery{Kind: finance.DocumentKind(req.Kind), AsOf: req.AsOf}
	if req.CounterpartyID != "" {
		id := uuid.MustParse(req.CounterpartyID)
		query.CounterpartyID = &id
	}

	report, err := h.aging.Report(c.Request.Context(), query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
