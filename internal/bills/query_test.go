package bills

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"billtracker/internal/core"
)

func sample() []core.Bill {
	return []core.Bill{
		{ID: "1", Name: "netflix", Amount: decimal.RequireFromString("15.99"), Category: "streaming", DueDate: core.NewDate(2026, 10, 20)},
		{ID: "2", Name: "Electricity", Amount: decimal.RequireFromString("80"), Category: "utilities", DueDate: core.NewDate(2026, 10, 12), IsPaid: true},
		{ID: "3", Name: "Apartment", Amount: decimal.RequireFromString("1200"), Category: "rent", DueDate: core.NewDate(2026, 11, 1), Description: "monthly rent"},
		{ID: "4", Name: "Spotify", Amount: decimal.RequireFromString("9.99"), Category: "streaming", DueDate: core.NewDate(2026, 10, 18)},
	}
}

func ids(list []core.Bill) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "default orders by due date", want: []string{"2", "4", "1", "3"}},
		{name: "search matches name case-insensitively", filter: Filter{Search: "SPOT"}, want: []string{"4"}},
		{name: "search matches description", filter: Filter{Search: "rent"}, want: []string{"3"}},
		{name: "category", filter: Filter{Category: "streaming"}, want: []string{"4", "1"}},
		{name: "category all", filter: Filter{Category: All}, want: []string{"2", "4", "1", "3"}},
		{name: "paid", filter: Filter{Status: StatusPaid}, want: []string{"2"}},
		{name: "unpaid", filter: Filter{Status: StatusUnpaid}, want: []string{"4", "1", "3"}},
		{name: "sort by name ignores case", filter: Filter{SortBy: SortName}, want: []string{"3", "2", "1", "4"}},
		{name: "sort by amount descending", filter: Filter{SortBy: SortAmount}, want: []string{"3", "2", "1", "4"}},
		{name: "combined", filter: Filter{Category: "streaming", SortBy: SortAmount}, want: []string{"1", "4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Apply(sample(), tt.filter)))
		})
	}
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	list := sample()
	Apply(list, Filter{SortBy: SortAmount})
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(list))
}

func TestCategoriesInUse(t *testing.T) {
	assert.Equal(t, []string{"all", "streaming", "utilities", "rent"}, CategoriesInUse(sample()))
	assert.Equal(t, []string{"all"}, CategoriesInUse(nil))
}
