package persistence

import (
	"strings"

	"github.com/erp/settlement/internal/domain/shared"
	"gorm.io/gorm/clause"
)

// sortColumns whitelists the columns a list query may be ordered by. Rows
// are always tie-broken on id so pages never overlap when many documents share
// a due date or amount.
type sortColumns struct {
	allowed  map[string]bool
	fallback string
}

func newSortColumns(fallback string, columns ...string) sortColumns {
	allowed := make(map[string]bool, len(columns)+1)
	allowed[fallback] = true
	for _, c := range columns {
		allowed[c] = true
	}
	return sortColumns{allowed: allowed, fallback: fallback}
}

// column returns the requested column when whitelisted, else the fallback
func (s sortColumns) column(requested string) string {
	requested = strings.TrimSpace(requested)
	if s.allowed[requested] {
		return requested
	}
	return s.fallback
}

// orderBy builds the ORDER BY clause for filter. Anything other than "asc"
// sorts descending.
func (s sortColumns) orderBy(filter shared.Filter) clause.OrderBy {
	desc := !strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc")
	col := s.column(filter.OrderBy)

	columns := []clause.OrderByColumn{{Column: clause.Column{Name: col}, Desc: desc}}
	if col != "id" {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: desc})
	}
	return clause.OrderBy{Columns: columns}
}

var (
	documentSort = newSortColumns("created_at",
		"id", "updated_at", "document_number", "kind", "counterparty_id", "issue_date",
		"due_date", "total_amount", "paid_amount", "outstanding_amount", "approval_status")
	fundingSourceSort     = newSortColumns("name", "id", "created_at", "updated_at", "kind", "available_balance")
	settlementSort        = newSortColumns("recorded_at", "id", "created_at", "number", "total_amount", "credit_consumed")
	creditTransactionSort = newSortColumns("created_at", "amount", "type")
)
