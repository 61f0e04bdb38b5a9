package services

import (
	"fmt"
	"sort"
	"time"

	"billtracker/internal/core"
)

// Classification splits unpaid bills into overdue and upcoming buckets.
// Both keep the order of the input list.
type Classification struct {
	Overdue  []core.Bill `json:"overdue"`
	Upcoming []core.Bill `json:"upcoming"`
}

// Classify buckets unpaid bills relative to today. A bill due before today is
// overdue; one due within lookahead days (inclusive) is upcoming; anything
// later is ignored. Paid bills never appear.
func Classify(bills []core.Bill, today core.Date, lookahead int) Classification {
	var c Classification
	for _, b := range bills {
		if b.IsPaid {
			continue
		}
		days := today.DaysUntil(b.DueDate)
		switch {
		case days < 0:
			c.Overdue = append(c.Overdue, b)
		case days <= lookahead:
			c.Upcoming = append(c.Upcoming, b)
		}
	}
	return c
}

// ClassifyAt is Classify with today taken from now's calendar day.
func ClassifyAt(bills []core.Bill, now time.Time, lookahead int) Classification {
	return Classify(bills, core.DateOf(now), lookahead)
}

// Empty reports whether no bill needs attention.
func (c Classification) Empty() bool {
	return len(c.Overdue) == 0 && len(c.Upcoming) == 0
}

// NeedingAttention merges both buckets ordered by due date.
func (c Classification) NeedingAttention() []core.Bill {
	all := make([]core.Bill, 0, len(c.Overdue)+len(c.Upcoming))
	all = append(all, c.Overdue...)
	all = append(all, c.Upcoming...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].DueDate.Before(all[j].DueDate)
	})
	return all
}

// Summary condenses the buckets for a banner, or returns nil when empty.
func (c Classification) Summary() *core.AttentionSummary {
	if c.Empty() {
		return nil
	}
	return &core.AttentionSummary{
		Total:       len(c.Overdue) + len(c.Upcoming),
		Overdue:     len(c.Overdue),
		Upcoming:    len(c.Upcoming),
		TotalAmount: core.Total(c.Overdue).Add(core.Total(c.Upcoming)),
	}
}

// DueLabel describes when a bill is due relative to today.
func DueLabel(b core.Bill, today core.Date) string {
	days := today.DaysUntil(b.DueDate)
	switch {
	case days < 0:
		return fmt.Sprintf("%d days overdue", -days)
	case days == 0:
		return "Due today"
	case days == 1:
		return "Due tomorrow"
	default:
		return fmt.Sprintf("Due in %d days", days)
	}
}
