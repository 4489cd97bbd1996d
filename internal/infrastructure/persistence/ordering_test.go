package persistence

import (
	"testing"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/clause"
)

func TestSortColumns_Column(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"empty falls back", "", "created_at"},
		{"whitelisted", "due_date", "due_date"},
		{"surrounding space", "  outstanding_amount ", "outstanding_amount"},
		{"unknown falls back", "password", "created_at"},
		{"injection attempt falls back", "due_date; DROP TABLE financial_documents;--", "created_at"},
		{"case sensitive", "DUE_DATE", "created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, documentSort.column(tt.requested))
		})
	}
}

func TestSortColumns_OrderBy(t *testing.T) {
	col := func(name string, desc bool) clause.OrderByColumn {
		return clause.OrderByColumn{Column: clause.Column{Name: name}, Desc: desc}
	}

	tests := []struct {
		name   string
		sort   sortColumns
		filter shared.Filter
		want   []clause.OrderByColumn
	}{
		{
			name:   "ascending with id tie-break",
			sort:   documentSort,
			filter: shared.Filter{OrderBy: "due_date", OrderDir: "asc"},
			want:   []clause.OrderByColumn{col("due_date", false), col("id", false)},
		},
		{
			name:   "direction is case insensitive",
			sort:   fundingSourceSort,
			filter: shared.Filter{OrderBy: "available_balance", OrderDir: " ASC "},
			want:   []clause.OrderByColumn{col("available_balance", false), col("id", false)},
		},
		{
			name:   "anything else sorts descending",
			sort:   settlementSort,
			filter: shared.Filter{OrderDir: "sideways"},
			want:   []clause.OrderByColumn{col("recorded_at", true), col("id", true)},
		},
		{
			name:   "id alone needs no tie-break",
			sort:   documentSort,
			filter: shared.Filter{OrderBy: "id", OrderDir: "asc"},
			want:   []clause.OrderByColumn{col("id", false)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sort.orderBy(tt.filter).Columns)
		})
	}
}
