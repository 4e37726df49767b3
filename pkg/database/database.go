package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"libratrack/pkg/config"
	"libratrack/pkg/models"
)

const (
	connectAttempts = 10
	connectDelay    = 5 * time.Second
)

// Open connects to the configured store, migrates the schema and seeds the
// default catalogue when enabled. Startup connection attempts are retried
// because the database container usually comes up after the services.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		logger.Info("connecting to database", "driver", "postgres", "host", cfg.Host, "port", cfg.Port, "name", cfg.Name)
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		logger.Info("connecting to database", "driver", "sqlite", "path", cfg.Path)
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	var db *gorm.DB
	err := retry.Do(
		func() error {
			var err error
			db, err = gorm.Open(dialector, &gorm.Config{})
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database connection attempt failed", "attempt", n+1, "max", connectAttempts, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("database connection established")

	if cfg.Seed {
		n, err := Seed(db)
		if err != nil {
			return nil, fmt.Errorf("seed catalogue: %w", err)
		}
		logger.Info("catalogue seeded", "created", n)
	}
	return db, nil
}

// OpenSQLite opens a sqlite database and migrates it. In-memory databases are
// pinned to a single connection so every query sees the same schema.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := configurePool(db, config.DatabaseConfig{Driver: "sqlite", Path: path}); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Ping reports whether the underlying connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func configurePool(db *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if strings.EqualFold(cfg.Driver, "sqlite") {
		if strings.Contains(cfg.Path, ":memory:") {
			sqlDB.SetMaxOpenConns(1)
		}
		return nil
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return nil
}
