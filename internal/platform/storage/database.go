package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"receipt-server-go/internal/platform/errors"
	"receipt-server-go/internal/platform/storage/migrations"
)

// Supported relational drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and addresses the relational store.
type Config struct {
	Driver string
	DSN    string
	Debug  bool
}

// Open connects to the relational store, creates the schema and applies
// pending data migrations.
func Open(cfg Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logMode := logger.Silent
	if cfg.Debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "database.open", "failed to open database", err)
	}

	if dialector.Name() == DriverSQLite {
		// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "database.open", "failed to access connection pool", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate syncs the schema and runs registered data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return errors.Wrap(errors.KindStorage, "database.automigrate", "failed to migrate schema", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001SeedPaymentTypes{})
	return manager.RunMigrations()
}

// Ping checks that the underlying connection pool is reachable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "database.ping", "failed to access connection pool", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Wrap(errors.KindStorage, "database.ping", "database unreachable", err)
	}
	return nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = filepath.Join("data", "receipts.db")
		}
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "database.prepare", "failed to create data directory", err)
			}
		}
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New(errors.KindConfig, "database.prepare", "postgres driver requires a dsn")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, errors.New(errors.KindConfig, "database.prepare", "unsupported database driver: "+cfg.Driver)
	}
}
