package worker

import (
	"context"
	"fmt"

	"billtracker/internal/amqp"
	"billtracker/internal/log"
	"billtracker/internal/notify"
)

// AlertWorker displays alerts queued by reminder processes.
type AlertWorker struct {
	display notify.Notifier
	userID  string
	logger  *log.Logger
}

// NewAlertWorker shows alerts through display. A non-empty userID restricts
// it to that user's alerts; others are acknowledged and dropped.
func NewAlertWorker(display notify.Notifier, userID string, logger *log.Logger) *AlertWorker {
	return &AlertWorker{display: display, userID: userID, logger: logger.WithComponent(log.ComponentNotify)}
}

// HandleAlertMessage processes one queued alert. A returned error requeues it.
func (w *AlertWorker) HandleAlertMessage(ctx context.Context, msg *amqp.AlertMessage) error {
	if w.userID != "" && msg.UserID != w.userID {
		w.logger.DebugContext(ctx, "Skipping alert for another user", log.FieldUserID, msg.UserID)
		return nil
	}

	alert := notify.Alert{Title: msg.Title, Body: msg.Body, Tag: msg.Tag}
	if err := w.display.Show(ctx, alert); err != nil {
		return fmt.Errorf("show alert %s: %w", msg.Tag, err)
	}

	w.logger.InfoContext(ctx, "Alert displayed",
		log.FieldUserID, msg.UserID,
		log.FieldBillID, msg.Tag,
		"queued_at", msg.Timestamp)
	return nil
}
