package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// DateLayout is the ISO calendar-date form used on the wire and in storage.
const DateLayout = "2006-01-02"

type (
	Frequency string

	// Date is a calendar date with no time component, held at midnight UTC.
	Date struct {
		time.Time
	}

	Bill struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		DueDate     Date            `json:"dueDate"`
		IsPaid      bool            `json:"isPaid"`
		IsRecurring bool            `json:"isRecurring"`
		Frequency   Frequency       `json:"frequency"`
		Description string          `json:"description,omitempty"`
	}

	// BillDraft carries every mutable field of a bill.
	BillDraft struct {
		Name        string          `json:"name"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		DueDate     Date            `json:"dueDate"`
		IsPaid      bool            `json:"isPaid"`
		IsRecurring bool            `json:"isRecurring"`
		Frequency   Frequency       `json:"frequency"`
		Description string          `json:"description,omitempty"`
	}

	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidFrequency = errors.New("frequency must be monthly, quarterly or yearly")
)

// Frequencies lists the supported recurrence periods in display order.
func Frequencies() []Frequency {
	return []Frequency{Monthly, Quarterly, Yearly}
}

func (f Frequency) Validate() error {
	switch f {
	case Monthly, Quarterly, Yearly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, string(f))
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day t falls on in its own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// DaysUntil returns the whole number of days from d to other, rounded up.
func (d Date) DaysUntil(other Date) int {
	return int(math.Ceil(other.Sub(d.Time).Hours() / 24))
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Normalize trims free text and fills the default frequency.
func (d BillDraft) Normalize() BillDraft {
	d.Name = strings.TrimSpace(d.Name)
	d.Category = strings.TrimSpace(d.Category)
	d.Description = strings.TrimSpace(d.Description)
	if d.Frequency == "" {
		d.Frequency = Monthly
	}
	if d.Category == "" {
		d.Category = DefaultCategory
	}
	return d
}

// Validate reports field problems as *FieldErrors, or ErrInvalidFrequency.
func (d BillDraft) Validate() error {
	var fe FieldErrors
	if strings.TrimSpace(d.Name) == "" {
		fe.Name = "bill name is required"
	}
	if !d.Amount.IsPositive() {
		fe.Amount = "please enter a valid amount"
	}
	if d.DueDate.Validate() != nil {
		fe.DueDate = "due date is required"
	}
	if !fe.Empty() {
		return &fe
	}
	return d.Frequency.Validate()
}

// Bill returns the draft as a bill with the given identifier.
func (d BillDraft) Bill(id string) Bill {
	return Bill{
		ID:          id,
		Name:        d.Name,
		Amount:      d.Amount,
		Category:    d.Category,
		DueDate:     d.DueDate,
		IsPaid:      d.IsPaid,
		IsRecurring: d.IsRecurring,
		Frequency:   d.Frequency,
		Description: d.Description,
	}
}

// Draft returns the mutable fields of b.
func (b Bill) Draft() BillDraft {
	return BillDraft{
		Name:        b.Name,
		Amount:      b.Amount,
		Category:    b.Category,
		DueDate:     b.DueDate,
		IsPaid:      b.IsPaid,
		IsRecurring: b.IsRecurring,
		Frequency:   b.Frequency,
		Description: b.Description,
	}
}
