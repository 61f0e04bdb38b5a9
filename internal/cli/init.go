// Package cli provides the initialization shared by the billtracker
// binaries: environment, logging, configuration, backend and alert sink.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"billtracker/internal/backend"
	"billtracker/internal/config"
	"billtracker/internal/log"
	"billtracker/internal/notify"
	"billtracker/internal/prefs"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadConfig loads the environment and configuration, exiting the process
// when any check fails. The returned logger honours the loaded settings.
func LoadConfig(checks ...func(*config.Config) error) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg)

	for _, check := range checks {
		if err := check(cfg); err != nil {
			logger.Error("Configuration validation failed", log.FieldError, err)
			os.Exit(1)
		}
	}
	return cfg, logger
}

// OpenBackend opens the configured data backend.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) (*backend.Backend, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).CreateBackend(ctx, bcfg)
}

// OpenPrefs opens the preferences store. The returned close func is never nil.
func OpenPrefs(ctx context.Context, logger *log.Logger, cfg *config.Config) (prefs.KV, func() error, error) {
	logger = logger.WithComponent(log.ComponentPrefs)
	switch cfg.PrefsBackend {
	case "redis":
		r, err := prefs.NewRedis(ctx, prefs.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Initialized Redis preferences store", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return r, r.Close, nil
	default:
		logger.Info("Initialized memory preferences store")
		return prefs.NewMemory(), func() error { return nil }, nil
	}
}

// AlertSink returns the per-user desktop alert sink selected by ALERT_SINK.
func AlertSink(logger *log.Logger, cfg *config.Config, b *backend.Backend) (func(userID string) notify.Notifier, error) {
	switch cfg.AlertSink {
	case "amqp":
		if b.AMQP == nil {
			return nil, fmt.Errorf("alert sink amqp requires a reachable AMQP broker")
		}
		client := b.AMQP
		return func(userID string) notify.Notifier {
			return notify.NewQueueNotifier(client, userID)
		}, nil
	default:
		n := notify.NewLogNotifier(logger)
		return func(string) notify.Notifier { return n }, nil
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
