package database

import (
	"fmt"
	"log/slog"

	"slotswap/internal/config"
	"slotswap/internal/middleware"
	"slotswap/internal/models"

	"gorm.io/gorm"
)

const (
	SchemaModeSQL  = "sql"
	SchemaModeAuto = "auto"
)

// SchemaStatus describes what ApplySchema will do and where the database is.
type SchemaStatus struct {
	Mode           string
	Environment    string
	AppliedVersion uint
	Dirty          bool
	Pending        []uint
}

func normalizedSchemaMode(cfg *config.Config) string {
	if cfg.DBSchemaMode == "" {
		if cfg.IsProduction() {
			return SchemaModeSQL
		}
		return SchemaModeAuto
	}
	return cfg.DBSchemaMode
}

func schemaPolicy(cfg *config.Config) (string, error) {
	mode := normalizedSchemaMode(cfg)
	switch mode {
	case SchemaModeSQL:
		return mode, nil
	case SchemaModeAuto:
		if cfg.IsProduction() {
			return "", fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q; use sql migrations", cfg.Env)
		}
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
}

// schemaModels are the tables auto mode manages. The embedded SQL
// migrations must describe the same tables.
func schemaModels() []any {
	return []any{&models.User{}, &models.SwapRequest{}}
}

// AutoMigrate syncs the GORM models onto db.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(schemaModels()...)
}

// ApplySchema brings db up to date using the configured schema mode.
func ApplySchema(db *gorm.DB, cfg *config.Config) error {
	mode, err := schemaPolicy(cfg)
	if err != nil {
		return err
	}

	middleware.Logger.Info("applying database schema", slog.String("mode", mode), slog.String("env", cfg.Env))
	if mode == SchemaModeSQL {
		if err := RunMigrations(db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
		return nil
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// GetSchemaStatus reports the schema mode and, in sql mode, the applied and
// pending migration versions.
func GetSchemaStatus(db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	mode, err := schemaPolicy(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{Mode: mode, Environment: cfg.Env}
	if mode != SchemaModeSQL {
		return status, nil
	}

	status.AppliedVersion, status.Dirty, err = MigrationVersion(db)
	if err != nil {
		return nil, err
	}
	available, err := AvailableMigrations()
	if err != nil {
		return nil, err
	}
	for _, v := range available {
		if v > status.AppliedVersion {
			status.Pending = append(status.Pending, v)
		}
	}
	return status, nil
}
