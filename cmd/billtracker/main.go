package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"billtracker/internal/auth"
	"billtracker/internal/cache"
	"billtracker/internal/cli"
	"billtracker/internal/config"
	apphttp "billtracker/internal/http"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
	"billtracker/internal/middleware/ratelimit"
	"billtracker/internal/middleware/security"
	"billtracker/internal/session"
	"billtracker/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig((*config.Config).Validate)
	logger.Info("Starting billtracker", "backend", cfg.DataBackend, "prefs", cfg.PrefsBackend, "alert_sink", cfg.AlertSink)

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

	m := metrics.New()
	sessions := session.NewManager(session.Deps{
		Bills:      b.Bills,
		Categories: b.Categories,
		Feed:       b.Broker,
		Prefs:      kv,
		Notifier:   sink,
		Logger:     logger,
		Metrics:    m,
	}, cfg.SessionCacheSize, cfg.SessionTTL)
	defer sessions.Close()

	clientIP, err := security.NewClientIP()
	if err != nil {
		logger.Error("Failed to configure client IP extraction", log.FieldError, err)
		os.Exit(1)
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Users:    b.Users,
		Auth:     auth.NewPasswordAuthenticator(b.Users),
		JWT:      auth.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL),
		Sessions: sessions,
		Ready:    b.Ping,
		Limiter:  limiter,
		ClientIP: clientIP,
		Metrics:  m,
		Logger:   logger,
	})

	janitor := cache.NewJanitor(logger, sessions.Cleaner())
	reminders := worker.NewReminderWorker(worker.ManagerSource(sessions), cfg.ReminderInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx, time.Minute) })
	g.Go(func() error { return limiter.Run(gctx, time.Minute) })
	g.Go(func() error { return reminders.Run(gctx) })
	g.Go(func() error {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("billtracker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("billtracker stopped gracefully")
}
