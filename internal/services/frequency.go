// Package services holds the pure computations over a user's bills: due-date
// classification, dashboard aggregates and per-frequency recurrence rules.
package services

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"billtracker/internal/core"
)

// FrequencyStrategy encapsulates the recurrence rules of one frequency.
type FrequencyStrategy interface {
	// PeriodMonths is the length of one billing period in months.
	PeriodMonths() int
	// NextDueDate returns the due date of the period after due, clamping to
	// the last day of the target month.
	NextDueDate(due core.Date) core.Date
}

type monthsStrategy struct {
	months int
}

func (s monthsStrategy) PeriodMonths() int {
	return s.months
}

func (s monthsStrategy) NextDueDate(due core.Date) core.Date {
	y, m, d := due.Date()
	target := int(m) + s.months
	year := y + (target-1)/12
	month := (target-1)%12 + 1
	lastDay := core.NewDate(year, month+1, 0).Day()
	if d > lastDay {
		d = lastDay
	}
	return core.NewDate(year, month, d)
}

var (
	strategiesMu sync.RWMutex
	strategies   = map[core.Frequency]FrequencyStrategy{
		core.Monthly:   monthsStrategy{months: 1},
		core.Quarterly: monthsStrategy{months: 3},
		core.Yearly:    monthsStrategy{months: 12},
	}
)

// GetFrequencyStrategy returns the strategy for a frequency.
func GetFrequencyStrategy(f core.Frequency) (FrequencyStrategy, error) {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	s, ok := strategies[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidFrequency, string(f))
	}
	return s, nil
}

// RegisterFrequencyStrategy adds or replaces the strategy for a frequency.
func RegisterFrequencyStrategy(f core.Frequency, s FrequencyStrategy) {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	strategies[f] = s
}

// MonthlyEquivalent spreads a recurring bill's amount over one month.
// One-off bills and unknown frequencies contribute zero.
func MonthlyEquivalent(b core.Bill) decimal.Decimal {
	if !b.IsRecurring {
		return decimal.Zero
	}
	s, err := GetFrequencyStrategy(b.Frequency)
	if err != nil {
		return decimal.Zero
	}
	return b.Amount.Div(decimal.NewFromInt(int64(s.PeriodMonths()))).Round(2)
}
