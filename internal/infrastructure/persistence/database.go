// Package persistence is the gorm store behind the development server.
package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes the database
type Options struct {
	Driver   string
	DSN      string
	LogLevel string
	Tracing  telemetry.DBTracingConfig
	Logger   *zap.Logger
}

// OptionsFromConfig derives store options from the loaded configuration
func OptionsFromConfig(cfg *config.Config, log *zap.Logger) Options {
	tracing := telemetry.DefaultDBTracingConfig()
	tracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	tracing.DBSystem = cfg.Devserver.DBDriver
	tracing.LogFullSQL = !cfg.IsProduction()

	return Options{
		Driver:   cfg.Devserver.DBDriver,
		DSN:      cfg.Devserver.DSN,
		LogLevel: cfg.Log.Level,
		Tracing:  tracing,
		Logger:   log,
	}
}

// Database holds the gorm connection
type Database struct {
	DB     *gorm.DB
	driver string
}

// Open connects, applies pool settings and registers tracing
func Open(opts Options) (*Database, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	driver := strings.ToLower(opts.Driver)
	if driver == "" {
		driver = DriverSQLite
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dsn = "file::memory:?_foreign_keys=on"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres requires a dsn")
		}
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(opts.Logger, logger.GormLevel(opts.LogLevel)),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if driver == DriverSQLite {
		// one connection keeps an in-memory database shared and serializes writers
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := telemetry.RegisterDBTracing(db, opts.Tracing, opts.Logger); err != nil {
		return nil, fmt.Errorf("registering db tracing: %w", err)
	}

	return &Database{DB: db, driver: driver}, nil
}

// Driver returns the active driver name
func (d *Database) Driver() string {
	return d.driver
}

// Migrate creates or updates every table
func (d *Database) Migrate() error {
	return d.DB.AutoMigrate(
		&AccountModel{},
		&TransactionModel{},
		&BookingModel{},
		&ScheduleModel{},
		&VoucherModel{},
		&ReviewModel{},
		&ChatMessageModel{},
		&DriverProfileModel{},
	)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Transaction executes fn within a database transaction
func (d *Database) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.DB.WithContext(ctx).Transaction(fn)
}
