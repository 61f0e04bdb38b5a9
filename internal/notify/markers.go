package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"billtracker/internal/core"
	"billtracker/internal/prefs"
)

const (
	markerPrefix = "notified_"

	// MarkerDateLayout renders the calendar day part of a marker key.
	MarkerDateLayout = "Mon Jan 02 2006"
)

// MarkerKey returns the sent-marker key for a bill on a day.
func MarkerKey(billID string, day core.Date) string {
	return markerPrefix + billID + "_" + day.Format(MarkerDateLayout)
}

// Markers records which bills already got their desktop alert on which day.
type Markers struct {
	kv prefs.KV
}

func NewMarkers(kv prefs.KV) *Markers {
	return &Markers{kv: kv}
}

func (m *Markers) Has(ctx context.Context, billID string, day core.Date) (bool, error) {
	_, ok, err := m.kv.Get(ctx, MarkerKey(billID, day))
	return ok, err
}

func (m *Markers) Mark(ctx context.Context, billID string, day core.Date) error {
	return m.kv.Set(ctx, MarkerKey(billID, day), "true")
}

// Prune deletes markers for days before cutoff. Keys it cannot parse are kept.
func (m *Markers) Prune(ctx context.Context, cutoff core.Date) (int, error) {
	keys, err := m.kv.Keys(ctx, markerPrefix)
	if err != nil {
		return 0, fmt.Errorf("list markers: %w", err)
	}
	pruned := 0
	for _, key := range keys {
		day, ok := markerDay(key)
		if !ok || !day.Before(cutoff) {
			continue
		}
		if err := m.kv.Delete(ctx, key); err != nil {
			return pruned, fmt.Errorf("delete marker: %w", err)
		}
		pruned++
	}
	return pruned, nil
}

func markerDay(key string) (core.Date, bool) {
	i := strings.LastIndex(key, "_")
	if i < 0 {
		return core.Date{}, false
	}
	t, err := time.Parse(MarkerDateLayout, key[i+1:])
	if err != nil {
		return core.Date{}, false
	}
	return core.DateOf(t), true
}
