package main

import (
	"os"

	"golang.org/x/sync/errgroup"

	"billtracker/internal/auth"
	"billtracker/internal/cli"
	"billtracker/internal/config"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/session"
	"billtracker/internal/worker"
)

// reminder-worker keeps one user's reminders running without the API: it
// signs in, mirrors the user's bills and fires due-today alerts as the
// date rolls over.
func main() {
	cfg, logger := cli.LoadConfig((*config.Config).Validate, (*config.Config).ValidateReminder)
	logger.Info("Starting reminder-worker", "backend", cfg.DataBackend, "alert_sink", cfg.AlertSink)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	b, err := cli.OpenBackend(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer b.Close()

	kv, closePrefs, err := cli.OpenPrefs(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize preferences store", log.FieldError, err)
		os.Exit(1)
	}
	defer closePrefs()

	sink, err := cli.AlertSink(logger, cfg, b)
	if err != nil {
		logger.Error("Failed to initialize alert sink", log.FieldError, err)
		os.Exit(1)
	}

	authn := auth.NewSessionManager(auth.NewPasswordAuthenticator(b.Users), auth.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL), b.Users)
	unsubscribe := authn.OnAuthStateChange(func(u *core.User) {
		if u == nil {
			logger.Info("Signed out")
			return
		}
		logger.Info("Signed in", log.FieldUserID, u.ID)
	})
	defer unsubscribe()

	signedIn, err := authn.SignIn(ctx, cfg.ReminderEmail, cfg.ReminderPassword)
	if err != nil {
		logger.Error("Failed to sign in", log.FieldError, err)
		os.Exit(1)
	}
	defer authn.SignOut(ctx)

	sess, err := session.Open(ctx, signedIn.User, session.Deps{
		Bills:      b.Bills,
		Categories: b.Categories,
		Feed:       b.Broker,
		Prefs:      kv,
		Notifier:   sink,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to open session", log.FieldError, err)
		os.Exit(1)
	}
	defer sess.Close()

	reminders := worker.NewReminderWorker(worker.Static(sess.Notifications), cfg.ReminderInterval, logger)

	logger.Info("Running initial reminder evaluation...")
	if fired, err := reminders.RunOnce(ctx); err != nil {
		logger.Error("Initial evaluation failed", log.FieldError, err)
	} else {
		logger.Info("Initial evaluation complete", log.FieldCount, fired)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { return reminders.Run(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("reminder-worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("reminder-worker shutdown complete")
}
