package main

import (
	"flag"
	"fmt"
	"os"

	"billtracker/internal/cli"
	"billtracker/internal/config"
	"billtracker/internal/log"
	"billtracker/internal/postgres"
	"billtracker/internal/storage"
)

// migrate applies or inspects the schema of the configured SQL backend.
//
//	migrate up        apply pending migrations
//	migrate down      roll back one step (postgres only)
//	migrate version   print the current schema version
func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|down|version]\n", os.Args[0])
	}
	flag.Parse()
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	cfg, logger := cli.LoadConfig(validateBackend)
	logger = logger.WithComponent(log.ComponentStorage)

	if err := run(cmd, cfg); err != nil {
		logger.Error("Migration failed", log.FieldError, err, log.FieldOperation, cmd, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	logger.Info("Migration complete", log.FieldOperation, cmd, "backend", cfg.DataBackend)
}

func validateBackend(cfg *config.Config) error {
	switch cfg.DataBackend {
	case "sqlite":
		if cfg.SQLiteDBPath == "" {
			return fmt.Errorf("SQLITE_DB_PATH is required")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	default:
		return fmt.Errorf("data backend %q has no schema to migrate", cfg.DataBackend)
	}
	return nil
}

func run(cmd string, cfg *config.Config) error {
	switch cmd {
	case "up":
		if cfg.DataBackend == "postgres" {
			return postgres.RunMigrations(cfg.DatabaseURL)
		}
		return storage.RunMigrations(cfg.SQLiteDBPath)
	case "down":
		if cfg.DataBackend != "postgres" {
			return fmt.Errorf("rollback is only supported for postgres")
		}
		return postgres.RollbackMigrations(cfg.DatabaseURL)
	case "version":
		var (
			version uint
			dirty   bool
			err     error
		)
		if cfg.DataBackend == "postgres" {
			version, dirty, err = postgres.MigrationVersion(cfg.DatabaseURL)
		} else {
			version, dirty, err = storage.SchemaVersion(cfg.SQLiteDBPath)
		}
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
