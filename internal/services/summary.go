package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"billtracker/internal/core"
)

// DueSoonDays is the horizon of the dashboard's "due this week" card.
const DueSoonDays = 7

// Summarize computes the dashboard aggregates for bills on the given day.
func Summarize(bills []core.Bill, today core.Date) core.Summary {
	s := core.Summary{
		Date:              today,
		MonthlyTotal:      decimal.Zero,
		MonthlyEquivalent: decimal.Zero,
		UnpaidAmount:      decimal.Zero,
		DueThisWeek:       []core.Bill{},
		ByCategory:        []core.CategoryAmount{},
		Renewals:          []core.Renewal{},
		TotalCount:        len(bills),
	}

	totals := make(map[string]decimal.Decimal)
	grand := decimal.Zero
	for _, b := range bills {
		if b.Frequency == core.Monthly {
			s.MonthlyTotal = s.MonthlyTotal.Add(b.Amount)
			s.MonthlyCount++
		}
		s.MonthlyEquivalent = s.MonthlyEquivalent.Add(MonthlyEquivalent(b))

		if b.IsPaid {
			s.PaidCount++
			if r, ok := renewal(b); ok {
				s.Renewals = append(s.Renewals, r)
			}
		} else {
			s.UnpaidCount++
			s.UnpaidAmount = s.UnpaidAmount.Add(b.Amount)
			if d := today.DaysUntil(b.DueDate); d >= 0 && d <= DueSoonDays {
				s.DueThisWeek = append(s.DueThisWeek, b)
			}
		}

		totals[b.Category] = totals[b.Category].Add(b.Amount)
		grand = grand.Add(b.Amount)
	}

	sort.SliceStable(s.DueThisWeek, func(i, j int) bool {
		return s.DueThisWeek[i].DueDate.Before(s.DueThisWeek[j].DueDate)
	})
	s.DueThisWeekAmount = core.Total(s.DueThisWeek)

	for name, amount := range totals {
		pct := decimal.Zero
		if grand.IsPositive() {
			pct = amount.Div(grand).Mul(decimal.NewFromInt(100)).Round(1)
		}
		s.ByCategory = append(s.ByCategory, core.CategoryAmount{
			Name:    name,
			Label:   core.CategoryLabel(name),
			Amount:  amount,
			Percent: pct,
		})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if c := s.ByCategory[i].Amount.Cmp(s.ByCategory[j].Amount); c != 0 {
			return c > 0
		}
		return s.ByCategory[i].Name < s.ByCategory[j].Name
	})

	sort.SliceStable(s.Renewals, func(i, j int) bool {
		return s.Renewals[i].NextDueDate.Before(s.Renewals[j].NextDueDate)
	})
	return s
}

func renewal(b core.Bill) (core.Renewal, bool) {
	if !b.IsRecurring {
		return core.Renewal{}, false
	}
	strategy, err := GetFrequencyStrategy(b.Frequency)
	if err != nil {
		return core.Renewal{}, false
	}
	return core.Renewal{
		BillID:      b.ID,
		Name:        b.Name,
		Amount:      b.Amount,
		NextDueDate: strategy.NextDueDate(b.DueDate),
	}, true
}
