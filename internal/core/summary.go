package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	// Percent is the category's share of the total across all bills.
	Percent decimal.Decimal `json:"percent"`
}

// Renewal is the next period of a paid recurring bill.
type Renewal struct {
	BillID      string          `json:"billId"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	NextDueDate Date            `json:"nextDueDate"`
}

// Summary is the dashboard overview of a user's bills on a given day.
type Summary struct {
	Date Date `json:"date"`

	MonthlyTotal decimal.Decimal `json:"monthlyTotal"`
	MonthlyCount int             `json:"monthlyCount"`
	// MonthlyEquivalent spreads every recurring bill over one month.
	MonthlyEquivalent decimal.Decimal `json:"monthlyEquivalent"`

	UnpaidAmount decimal.Decimal `json:"unpaidAmount"`
	UnpaidCount  int             `json:"unpaidCount"`
	PaidCount    int             `json:"paidCount"`
	TotalCount   int             `json:"totalCount"`

	DueThisWeek       []Bill           `json:"dueThisWeek"`
	DueThisWeekAmount decimal.Decimal  `json:"dueThisWeekAmount"`
	ByCategory        []CategoryAmount `json:"byCategory"`
	Renewals          []Renewal        `json:"renewals"`
}

// AttentionSummary condenses the overdue and upcoming buckets for a banner.
type AttentionSummary struct {
	Total       int             `json:"total"`
	Upcoming    int             `json:"upcoming"`
	Overdue     int             `json:"overdue"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}
