package notify

import (
	"context"

	"billtracker/internal/amqp"
	"billtracker/internal/log"
)

// Alert is one desktop notification. Tag collapses repeats on the desktop.
type Alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// Notifier displays desktop alerts.
type Notifier interface {
	Show(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Show(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent(log.ComponentNotify)}
}

func (n *LogNotifier) Show(ctx context.Context, a Alert) error {
	n.logger.InfoContext(ctx, "Desktop alert",
		"title", a.Title,
		"body", a.Body,
		"tag", a.Tag)
	return nil
}

// AlertPublisher is satisfied by *amqp.Client.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, msg *amqp.AlertMessage) error
}

// QueueNotifier hands alerts to the desktop agent over the alert queue.
type QueueNotifier struct {
	pub    AlertPublisher
	userID string
}

func NewQueueNotifier(pub AlertPublisher, userID string) *QueueNotifier {
	return &QueueNotifier{pub: pub, userID: userID}
}

func (n *QueueNotifier) Show(ctx context.Context, a Alert) error {
	return n.pub.PublishAlert(ctx, &amqp.AlertMessage{
		UserID: n.userID,
		Title:  a.Title,
		Body:   a.Body,
		Tag:    a.Tag,
	})
}
