package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// slogLogger sends GORM's output to slog. Failed statements log at error,
// slow ones at warn, and everything else only at the info level.
type slogLogger struct {
	log   *slog.Logger
	level logger.LogLevel
}

func newGormLogger(l *slog.Logger, level logger.LogLevel) logger.Interface {
	return slogLogger{log: l, level: level}
}

func (l slogLogger) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l slogLogger) Info(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Info, slog.LevelInfo, msg, args)
}

func (l slogLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Warn, slog.LevelWarn, msg, args)
}

func (l slogLogger) Error(ctx context.Context, msg string, args ...any) {
	l.printf(ctx, logger.Error, slog.LevelError, msg, args)
}

func (l slogLogger) printf(ctx context.Context, at logger.LogLevel, lvl slog.Level, msg string, args []any) {
	if l.level >= at {
		l.log.Log(ctx, lvl, fmt.Sprintf(msg, args...))
	}
}

func (l slogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		lvl slog.Level
		msg string
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		lvl, msg = slog.LevelError, "query failed"
	case elapsed > slowQuery && l.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "slow query"
	case l.level >= logger.Info:
		lvl, msg = slog.LevelInfo, "query"
	default:
		return
	}

	stmt, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", stmt),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if lvl == slog.LevelError {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.log.LogAttrs(ctx, lvl, msg, attrs...)
}
