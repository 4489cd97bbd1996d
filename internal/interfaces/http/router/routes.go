package router

import (
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers are the endpoints served under the versioned API
type Handlers struct {
	Documents   *handler.DocumentHandler
	Settlements *handler.SettlementHandler
	Funding     *handler.FundingHandler
	Credit      *handler.CreditHandler
	Reports     *handler.ReportHandler
	System      *handler.SystemHandler
}

// RegisterSettlementRoutes registers every settlement domain group on r.
// Settlements, deposits, credit grants and credit-note application are
// retryable.
func RegisterSettlementRoutes(r *Router, h Handlers) *Router {
	documents := NewDomainGroup("documents", "/documents")
	documents.POST("", h.Documents.Create).
		GET("", h.Documents.List).
		GET("/number/:number", h.Documents.GetByNumber).
		GET("/:id", h.Documents.Get).
		PUT("/:id/line-items", h.Documents.UpdateLineItems).
		DELETE("/:id", h.Documents.Delete).
		POST("/:id/submit", h.Documents.Submit).
		POST("/:id/approve", h.Documents.Approve).
		POST("/:id/reject", h.Documents.Reject).
		POST("/:id/resubmit", h.Documents.Resubmit).
		POST("/:id/cancel", h.Documents.Cancel).
		RetryablePOST("/:id/apply-credit", h.Documents.ApplyCreditNote)

	settlements := NewDomainGroup("settlements", "/settlements")
	settlements.RetryablePOST("", h.Settlements.RecordPayment).
		GET("/:id", h.Settlements.Get)

	funding := NewDomainGroup("funding", "/funding-sources")
	funding.POST("", h.Funding.Create).
		GET("", h.Funding.List).
		GET("/:id", h.Funding.Get).
		RetryablePOST("/:id/deposit", h.Funding.Deposit)

	counterparties := NewDomainGroup("counterparties", "/counterparties")
	counterparties.GET("/:id/credit", h.Credit.Get).
		RetryablePOST("/:id/credit", h.Credit.Grant).
		GET("/:id/settlements", h.Settlements.ListByCounterparty)

	reports := NewDomainGroup("reports", "/reports")
	reports.GET("/aging", h.Reports.Aging)

	system := NewDomainGroup("system", "/system")
	system.GET("/info", h.System.GetSystemInfo)

	r.Register(documents).
		Register(settlements).
		Register(funding).
		Register(counterparties).
		Register(reports).
		Register(system)
	return r
}

// RegisterHealth serves the health probe at /health and under the API prefix
func RegisterHealth(engine *gin.Engine, system *handler.SystemHandler, apiVersion string) {
	engine.GET("/health", system.Health)
	engine.GET("/api/"+apiVersion+"/health", system.Health)
}
