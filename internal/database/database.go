// Package database opens the postgres pools and owns schema management.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slotswap/internal/config"
	"slotswap/internal/middleware"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DB is the global database connection instance.
var DB *gorm.DB

// readDB is an optional read replica; nil when DB_READ_HOST is unset.
var readDB *gorm.DB

// endpoint is one postgres server the app talks to.
type endpoint struct {
	host, port, user, password string
}

func (e endpoint) dsn(name, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		e.host, e.port, e.user, e.password, name, sslMode)
}

// applicationName tags every session in pg_stat_activity.
const applicationName = "slotswap-api"

// connConfig parses dsn for the pgx driver and names the session.
func connConfig(dsn string) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cc.RuntimeParams == nil {
		cc.RuntimeParams = map[string]string{}
	}
	if cc.RuntimeParams["application_name"] == "" {
		cc.RuntimeParams["application_name"] = applicationName
	}
	return cc, nil
}

func open(dsn string, cfg *config.Config) (*gorm.DB, error) {
	cc, err := connConfig(dsn)
	if err != nil {
		return nil, err
	}
	sqlDB := stdlib.OpenDB(*cc)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         newQueryLog(),
		TranslateError: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := db.Use(QueryMetrics{}); err != nil {
		return nil, fmt.Errorf("register query metrics: %w", err)
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// Connect opens the primary connection and, when configured, the read
// replica. Schema management is left to ApplySchema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	primaryAt := endpoint{cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword}
	primary, err := open(primaryAt.dsn(cfg.DBName, cfg.DBSSLMode), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	middleware.Logger.Info("database connected", slog.String("host", cfg.DBHost))
	DB = primary

	readDB = nil
	if cfg.DBReadHost != "" {
		replicaAt := endpoint{cfg.DBReadHost, cfg.DBReadPort, cfg.DBReadUser, cfg.DBReadPassword}
		replica, err := open(replicaAt.dsn(cfg.DBName, cfg.DBSSLMode), cfg)
		if err != nil {
			// Reads fall back to the primary.
			middleware.Logger.Warn("read replica unavailable", slog.String("host", cfg.DBReadHost), slog.String("error", err.Error()))
		} else {
			middleware.Logger.Info("Read replica connected", slog.String("host", cfg.DBReadHost))
			readDB = replica
		}
	}

	return DB, nil
}

func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeMinutes) * time.Minute)
	}
	return nil
}

// GetReadDB returns the read replica, or nil when none is configured.
func GetReadDB() *gorm.DB {
	return readDB
}

// Ping checks that db answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the primary and replica pools.
func Close() error {
	var errs []error
	for _, db := range []*gorm.DB{DB, readDB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	DB, readDB = nil, nil
	return errors.Join(errs...)
}
