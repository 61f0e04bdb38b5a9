package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
)

// Dispatcher fires one desktop alert per unpaid bill on its due date.
type Dispatcher struct {
	notifier Notifier
	markers  *Markers
	logger   *log.Logger
	metrics  *metrics.Metrics

	// mu makes check-then-mark atomic across concurrent evaluations.
	mu         sync.Mutex
	lastPruned core.Date
}

func NewDispatcher(notifier Notifier, markers *Markers, logger *log.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{notifier: notifier, markers: markers, logger: logger, metrics: m}
}

// DueTodayAlert builds the alert for a bill due today.
func DueTodayAlert(b core.Bill) Alert {
	return Alert{
		Title: "Bill Due Today: " + b.Name,
		Body:  "$" + b.Amount.StringFixed(2) + " is due today",
		Tag:   b.ID,
	}
}

// Dispatch alerts on every unpaid bill due today that has no marker yet,
// provided settings and permission allow desktop alerts. It returns the
// number of alerts shown. A failed alert leaves no marker so the next
// evaluation retries it.
func (d *Dispatcher) Dispatch(ctx context.Context, bills []core.Bill, today core.Date, s Settings, p Permission) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneDaily(ctx, today, s.DaysBeforeDue)

	if !s.Enabled || !s.ShowBrowserNotifications || p != PermissionGranted {
		return 0, nil
	}

	var errs []error
	fired := 0
	for _, b := range bills {
		if b.IsPaid || !b.DueDate.Equal(today) {
			continue
		}
		seen, err := d.markers.Has(ctx, b.ID, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("check marker for %s: %w", b.ID, err))
			continue
		}
		if seen {
			d.metrics.Alert(metrics.AlertSuppressed)
			continue
		}
		if err := d.notifier.Show(ctx, DueTodayAlert(b)); err != nil {
			d.metrics.Alert(metrics.AlertFailed)
			d.logger.WarnContext(ctx, "Desktop alert failed",
				log.FieldBillID, b.ID,
				log.FieldError, err)
			errs = append(errs, fmt.Errorf("show alert for %s: %w", b.ID, err))
			continue
		}
		d.metrics.Alert(metrics.AlertSent)
		fired++
		if err := d.markers.Mark(ctx, b.ID, today); err != nil {
			errs = append(errs, fmt.Errorf("mark %s notified: %w", b.ID, err))
			continue
		}
		d.logger.InfoContext(ctx, "Due-today alert sent",
			log.FieldBillID, b.ID,
			log.FieldBillName, b.Name,
			log.FieldAmount, core.FormatCurrency(b.Amount))
	}
	return fired, errors.Join(errs...)
}

// pruneDaily drops markers older than the lookahead window, at most once per day.
func (d *Dispatcher) pruneDaily(ctx context.Context, today core.Date, lookahead int) {
	if d.lastPruned.Equal(today) {
		return
	}
	n, err := d.markers.Prune(ctx, today.AddDays(-lookahead))
	if err != nil {
		d.logger.WarnContext(ctx, "Marker pruning failed", log.FieldError, err)
		return
	}
	d.lastPruned = today
	if n > 0 {
		d.logger.DebugContext(ctx, "Pruned sent markers", log.FieldCount, n)
	}
}
