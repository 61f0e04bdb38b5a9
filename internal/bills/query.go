package bills

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"billtracker/internal/core"
)

// Filter values accepted from the list view.
const (
	All = "all"

	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"

	SortDueDate = "dueDate"
	SortName    = "name"
	SortAmount  = "amount"
)

// Filter narrows and orders a bill list. Zero values mean "all" and due-date order.
type Filter struct {
	Search   string
	Category string
	Status   string
	SortBy   string
}

// Apply returns the bills matching f in the requested order. The input is not modified.
func Apply(list []core.Bill, f Filter) []core.Bill {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]core.Bill, 0, len(list))
	for _, b := range list {
		if search != "" &&
			!strings.Contains(strings.ToLower(b.Name), search) &&
			!strings.Contains(strings.ToLower(b.Description), search) {
			continue
		}
		if f.Category != "" && f.Category != All && b.Category != f.Category {
			continue
		}
		switch f.Status {
		case StatusPaid:
			if !b.IsPaid {
				continue
			}
		case StatusUnpaid:
			if b.IsPaid {
				continue
			}
		}
		out = append(out, b)
	}

	switch f.SortBy {
	case SortName:
		c := collate.New(language.English, collate.IgnoreCase)
		sort.SliceStable(out, func(i, j int) bool {
			return c.CompareString(out[i].Name, out[j].Name) < 0
		})
	case SortAmount:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Amount.GreaterThan(out[j].Amount)
		})
	case "", SortDueDate:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].DueDate.Before(out[j].DueDate)
		})
	}
	return out
}

// CategoriesInUse returns "all" followed by each distinct bill category in
// order of first appearance.
func CategoriesInUse(list []core.Bill) []string {
	seen := make(map[string]bool, len(list))
	out := []string{All}
	for _, b := range list {
		if seen[b.Category] {
			continue
		}
		seen[b.Category] = true
		out = append(out, b.Category)
	}
	return out
}
