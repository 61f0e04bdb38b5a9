package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"billtracker/internal/amqp"
	"billtracker/internal/cli"
	"billtracker/internal/config"
	"billtracker/internal/log"
	"billtracker/internal/notify"
	"billtracker/internal/worker"
)

// alert-agent consumes the alert queue and displays each alert. Run it on
// the desktop that should show reminders.
func main() {
	userID := flag.String("user", "", "only display alerts for this user ID")
	flag.Parse()

	cfg, logger := cli.LoadConfig((*config.Config).ValidateAlertAgent)
	logger = logger.WithComponent(log.ComponentAMQP)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPAlertQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	alerts := worker.NewAlertWorker(notify.NewLogNotifier(logger), *userID, logger)

	logger.Info("Starting alert-agent", "queue", cfg.AMQPAlertQueue, log.FieldUserID, *userID)
	err = client.ConsumeAlerts(ctx, func(msg *amqp.AlertMessage) error {
		return alerts.HandleAlertMessage(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Alert consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("alert-agent shutdown complete")
}
