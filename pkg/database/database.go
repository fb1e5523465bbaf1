package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go-pos-sync/pkg/config"
	"go-pos-sync/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the store for the configured driver and applies pool settings.
func Connect(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.LogQueries {
		level = gormlogger.Info
	}
	newLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	gormCfg := &gorm.Config{
		Logger:         newLogger,
		PrepareStmt:    false,
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case config.DriverSQLite:
		db, err = gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	default:
		// Simple protocol keeps pooled transaction-mode proxies (pgbouncer, supabase) happy.
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		}), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	if strings.EqualFold(cfg.Driver, config.DriverSQLite) {
		// SQLite has a single writer.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := pingWithRetry(ctx, sqlDB.PingContext, cfg.PingAttempts, cfg.PingBackoff, logg); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "database connection established")
	}
	return db, nil
}

// pingWithRetry waits for the database to answer, trying up to attempts times with
// a fixed pause between tries.
func pingWithRetry(ctx context.Context, ping func(context.Context) error, attempts int, backoff time.Duration, logg *logger.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; ; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i >= attempts {
			return fmt.Errorf("ping db after %d attempts: %w", i, err)
		}
		if logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{"attempt": i, "max_attempts": attempts}), "database not ready, retrying")
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ping db: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// Close releases the pooled connections.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
