package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
)

// Database is the PostgreSQL pool behind the event store.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

type openOptions struct {
	logger     gormlogger.Interface
	attempts   int
	retryDelay time.Duration
}

// Option configures NewDatabase.
type Option func(*openOptions)

// WithGormLogger replaces the silent default logger. Nil is ignored.
func WithGormLogger(l gormlogger.Interface) Option {
	return func(o *openOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConnectRetry pings up to attempts times, delay apart, before giving
// up. Useful when the gateway and Postgres start together.
func WithConnectRetry(attempts int, delay time.Duration) Option {
	return func(o *openOptions) {
		o.attempts = attempts
		o.retryDelay = delay
	}
}

// NewDatabase opens the pool described by cfg and waits until it answers.
func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	o := openOptions{logger: gormlogger.Discard, attempts: 1}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: o.logger,
		// Every write is a single statement or an explicit transaction.
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	d := &Database{DB: db, sql: sqlDB}
	if err := d.waitReady(ctx, o.attempts, o.retryDelay); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) waitReady(ctx context.Context, attempts int, delay time.Duration) error {
	var err error
	for i := 1; ; i++ {
		if err = d.sql.PingContext(ctx); err == nil {
			return nil
		}
		if i >= attempts {
			return fmt.Errorf("ping database after %d attempt(s): %w", i, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping database: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

// NewDatabaseFromGorm wraps a handle opened elsewhere, typically SQLite in
// tests.
func NewDatabaseFromGorm(db *gorm.DB) *Database {
	// gorm.Open always sets a ConnPool, so DB() only fails for handles
	// built by hand.
	sqlDB, _ := db.DB()
	return &Database{DB: db, sql: sqlDB}
}

// SQL returns the underlying pool, e.g. for migrations or pool metrics.
func (d *Database) SQL() *sql.DB {
	return d.sql
}

// Ping reports whether the pool can reach the server.
func (d *Database) Ping(ctx context.Context) error {
	if d.sql == nil {
		return fmt.Errorf("database: no connection pool")
	}
	return d.sql.PingContext(ctx)
}

// Close releases the pool.
func (d *Database) Close() error {
	if d.sql == nil {
		return nil
	}
	return d.sql.Close()
}
