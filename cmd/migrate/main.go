// Command migrate inspects and changes the slot swap database schema.
//
//	migrate up            apply pending SQL migrations
//	migrate auto          sync GORM models (non-production only)
//	migrate status        show schema mode, version and pending migrations
//	migrate down [steps]  revert the last steps SQL migrations (default 1)
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"slotswap/internal/config"
	"slotswap/internal/database"
	"slotswap/internal/middleware"

	"gorm.io/gorm"
)

type command func(db *gorm.DB, cfg *config.Config, args []string) error

var commands = map[string]command{
	"up": func(db *gorm.DB, _ *config.Config, _ []string) error {
		return database.RunMigrations(db)
	},
	"auto": func(db *gorm.DB, cfg *config.Config, _ []string) error {
		cfg.DBSchemaMode = database.SchemaModeAuto
		return database.ApplySchema(db, cfg)
	},
	"status": status,
	"down":   down,
}

var errUsage = errors.New("usage: migrate <up|auto|status|down> [steps]")

func main() {
	if err := run(os.Args[1:]); err != nil {
		middleware.Logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := cmd(db, cfg, args[1:]); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	middleware.Logger.Info("migrate done", slog.String("command", args[0]))
	return nil
}

func status(db *gorm.DB, cfg *config.Config, _ []string) error {
	st, err := database.GetSchemaStatus(db, cfg)
	if err != nil {
		return err
	}
	pending := make([]string, 0, len(st.Pending))
	for _, v := range st.Pending {
		pending = append(pending, fmt.Sprintf("%06d", v))
	}
	middleware.Logger.Info("schema status",
		slog.String("mode", st.Mode),
		slog.String("env", st.Environment),
		slog.Uint64("version", uint64(st.AppliedVersion)),
		slog.Bool("dirty", st.Dirty),
		slog.Any("pending", pending),
	)
	return nil
}

func down(db *gorm.DB, _ *config.Config, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid steps %q: %w", args[0], err)
		}
		steps = n
	}
	return database.RollbackMigrations(db, steps)
}
