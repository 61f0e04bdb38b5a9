package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateDaysUntil(t *testing.T) {
	today := NewDate(2026, 10, 17)
	cases := []struct {
		other Date
		want  int
	}{
		{NewDate(2026, 10, 17), 0},
		{NewDate(2026, 10, 18), 1},
		{NewDate(2026, 10, 12), -5},
		{NewDate(2026, 11, 1), 15},
		{NewDate(2027, 10, 17), 365},
	}
	for _, tc := range cases {
		if got := today.DaysUntil(tc.other); got != tc.want {
			t.Fatalf("DaysUntil(%s) = %d, want %d", tc.other, got, tc.want)
		}
	}
}

func TestDateOfDropsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	got := DateOf(time.Date(2026, 10, 17, 23, 30, 0, 0, loc))
	if !got.Equal(NewDate(2026, 10, 17)) {
		t.Fatalf("DateOf = %s, want 2026-10-17", got)
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2026, 3, 9))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"2026-03-09"` {
		t.Fatalf("marshal = %s", b)
	}

	var d Date
	if err := json.Unmarshal([]byte(`""`), &d); err != nil || !d.IsZero() {
		t.Fatalf("empty string should decode to zero date, got %v (err=%v)", d, err)
	}
	if err := json.Unmarshal([]byte(`"2026-13-40"`), &d); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestBillDraftValidate(t *testing.T) {
	good := BillDraft{
		Name:      "Electricity",
		Amount:    decimal.RequireFromString("42.50"),
		DueDate:   NewDate(2026, 10, 17),
		Frequency: Monthly,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := BillDraft{Name: "  ", Amount: decimal.Zero, Frequency: Monthly}
	err := bad.Validate()
	var fe *FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldErrors, got %v", err)
	}
	if fe.Name == "" || fe.Amount == "" || fe.DueDate == "" {
		t.Fatalf("expected all three fields flagged, got %+v", fe)
	}

	neg := good
	neg.Amount = decimal.RequireFromString("-1")
	if err := neg.Validate(); !errors.As(err, &fe) || fe.Amount == "" || fe.Name != "" {
		t.Fatalf("expected only amount flagged, got %v", err)
	}

	freq := good
	freq.Frequency = "weekly"
	if err := freq.Validate(); !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestBillDraftNormalize(t *testing.T) {
	d := BillDraft{Name: "  Rent ", Description: " flat ", Category: ""}.Normalize()
	if d.Name != "Rent" || d.Description != "flat" {
		t.Fatalf("text not trimmed: %+v", d)
	}
	if d.Frequency != Monthly {
		t.Fatalf("frequency = %q, want monthly", d.Frequency)
	}
	if d.Category != DefaultCategory {
		t.Fatalf("category = %q, want %q", d.Category, DefaultCategory)
	}
}

func TestBillDraftRoundTrip(t *testing.T) {
	d := BillDraft{
		Name:        "Netflix",
		Amount:      decimal.RequireFromString("15.99"),
		Category:    "streaming",
		DueDate:     NewDate(2026, 11, 1),
		IsRecurring: true,
		Frequency:   Monthly,
	}
	b := d.Bill("b1")
	if b.ID != "b1" || b.Draft() != d {
		t.Fatalf("draft round trip mismatch: %+v", b)
	}
}
