package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slotswap/internal/middleware"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// queryLog sends GORM output through the application logger so SQL lines
// carry the request id of the call that issued them.
type queryLog struct {
	level logger.LogLevel
	slow  time.Duration
}

func newQueryLog() queryLog {
	return queryLog{level: logger.Warn, slow: slowQuery}
}

func (q queryLog) LogMode(level logger.LogLevel) logger.Interface {
	q.level = level
	return q
}

func (q queryLog) emit(ctx context.Context, at logger.LogLevel, lvl slog.Level, msg string, args []any) {
	if q.level >= at {
		middleware.Logger.Log(ctx, lvl, fmt.Sprintf(msg, args...))
	}
}

func (q queryLog) Info(ctx context.Context, msg string, args ...any) {
	q.emit(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (q queryLog) Warn(ctx context.Context, msg string, args ...any) {
	q.emit(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (q queryLog) Error(ctx context.Context, msg string, args ...any) {
	q.emit(ctx, logger.Error, slog.LevelError, msg, args)
}

func (q queryLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		lvl slog.Level
		msg string
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && q.level >= logger.Error:
		lvl, msg = slog.LevelError, "query failed"
	case q.slow > 0 && elapsed > q.slow && q.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "slow query"
	case q.level >= logger.Info:
		lvl, msg = slog.LevelInfo, "query"
	default:
		return
	}

	sql, rows := fc()
	attrs := []any{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if lvl == slog.LevelError {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	middleware.Logger.Log(ctx, lvl, msg, attrs...)
}
