package backend

import (
	"context"
	"fmt"

	"billtracker/internal/adapters"
	"billtracker/internal/amqp"
	"billtracker/internal/changefeed"
	"billtracker/internal/log"
	"billtracker/internal/postgres"
	"billtracker/internal/remote/memory"
	"billtracker/internal/storage"
)

// Factory creates backends based on configuration
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the configured store. Callers must Close the result.
func (f *Factory) CreateBackend(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{Type: cfg.Type, Broker: changefeed.NewBroker()}
	f.connectAMQP(cfg, b)

	var err error
	switch cfg.Type {
	case MemoryBackend:
		f.createMemoryBackend(b)
	case SQLiteBackend:
		err = f.createSQLiteBackend(ctx, cfg, b)
	case PostgresBackend:
		err = f.createPostgresBackend(ctx, cfg, b)
	default:
		err = fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (f *Factory) connectAMQP(cfg Config, b *Backend) {
	if cfg.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPAlertQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without fan-out", log.FieldError, err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPAlertQueue)
	b.AMQP = client
	b.cleanups = append(b.cleanups, client.Close)
}

func (f *Factory) createMemoryBackend(b *Backend) {
	store := memory.New()
	ann := adapters.NewAnnouncer(b.Broker, nil, f.logger)
	b.Bills = adapters.NewAnnouncingBills(store, ann)
	b.Categories = adapters.NewAnnouncingCategories(store, ann)
	b.Users = store

	f.logger.Info("Initialized memory backend")
}

func (f *Factory) createSQLiteBackend(_ context.Context, cfg Config, b *Backend) error {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	b.cleanups = append(b.cleanups, repo.Close)
	b.ping = repo.Ping

	var fanout adapters.ChangePublisher
	if b.AMQP != nil {
		fanout = b.AMQP
		client := b.AMQP
		b.runners = append(b.runners, func(ctx context.Context) error {
			return client.ConsumeChanges(ctx, func(msg *amqp.ChangeMessage) {
				b.Broker.Publish(msg.Change())
			})
		})
	}
	ann := adapters.NewAnnouncer(b.Broker, fanout, f.logger)
	b.Bills = adapters.NewAnnouncingBills(repo, ann)
	b.Categories = adapters.NewAnnouncingCategories(repo, ann)
	b.Users = repo

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", b.AMQP != nil)
	return nil
}

func (f *Factory) createPostgresBackend(ctx context.Context, cfg Config, b *Backend) error {
	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConnections)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	b.cleanups = append(b.cleanups, func() error {
		db.Close()
		return nil
	})
	b.ping = db.Ping

	b.Bills = postgres.NewBillRepository(db)
	b.Categories = postgres.NewCategoryRepository(db)
	b.Users = postgres.NewUserRepository(db)

	// Triggers notify every process; no fan-out needed.
	b.runners = append(b.runners, postgres.NewListener(db, b.Broker, f.logger).Run)

	f.logger.Info("Initialized Postgres backend", "max_connections", cfg.DBMaxConnections)
	return nil
}
