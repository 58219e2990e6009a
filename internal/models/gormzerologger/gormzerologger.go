package gormzerologger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormZerologger branche les traces gorm sur zerolog
type GormZerologger struct {
	Logger                    zerolog.Logger
	LogLevel                  logger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

func New(logLevel string) *GormZerologger {
	return &GormZerologger{
		Logger:                    log.Logger.With().Str("component", "gorm").Logger(),
		LogLevel:                  ParseGormLogLevel(logLevel),
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
	}
}

// LevelFor choisit le niveau gorm depuis la config du logger applicatif
func LevelFor(appLevel string, production bool) string {
	if appLevel == "debug" || !production {
		return "trace"
	}
	return "warn"
}

func ParseGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug", "trace", "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Info
	}
}

func (l *GormZerologger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZerologger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Info {
		l.Logger.Info().Msgf(msg, data...)
	}
}

func (l *GormZerologger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Warn {
		l.Logger.Warn().Msgf(msg, data...)
	}
}

func (l *GormZerologger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= logger.Error {
		l.Logger.Error().Msgf(msg, data...)
	}
}

func (l *GormZerologger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	notFound := errors.Is(err, gorm.ErrRecordNotFound) && l.IgnoreRecordNotFoundError

	switch {
	case err != nil && !notFound && l.LogLevel >= logger.Error:
		sql, rows := fc()
		l.Logger.Error().
			Err(err).
			Dur("elapsed_ms", elapsed).
			Int64("rows", rows).
			Str("sql", sql).
			Msg("database query error")

	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= logger.Warn:
		sql, rows := fc()
		l.Logger.Warn().
			Dur("elapsed_ms", elapsed).
			Dur("threshold", l.SlowThreshold).
			Int64("rows", rows).
			Str("sql", sql).
			Msg("slow database query")

	case l.LogLevel >= logger.Info:
		sql, rows := fc()
		l.Logger.Debug().
			Dur("elapsed_ms", elapsed).
			Int64("rows", rows).
			Str("sql", sql).
			Msg("database query")
	}
}
