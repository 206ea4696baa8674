package journal

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tturner/fuzzrelay/internal/logging"
)

// GormLogger routes gorm output through the relay logger.
type GormLogger struct {
	logger   *logging.Logger
	LogLevel gormlogger.LogLevel
}

// NewGormLogger maps the relay log level onto gorm's levels.
func NewGormLogger(l *logging.Logger) *GormLogger {
	level := gormlogger.Warn
	switch l.GetLevel() {
	case logging.LogLevelSilent:
		level = gormlogger.Silent
	case logging.LogLevelError:
		level = gormlogger.Error
	case logging.LogLevelDebug:
		level = gormlogger.Info
	}
	return &GormLogger{logger: l, LogLevel: level}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		l.logger.Debug("[journal] %s", fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		l.logger.Info("[journal] %s", fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		l.logger.Error("[journal] %s", fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL statements at debug level, slow ones at info and failures as errors.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	ms := float64(elapsed.Nanoseconds()) / 1e6

	switch {
	case err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= gormlogger.Error:
		l.logger.Error("[journal] sql failed: %v (%s, rows=%d, %.2fms)", err, sql, rows, ms)
	case elapsed > time.Second && l.LogLevel >= gormlogger.Warn:
		l.logger.Info("[journal] slow sql: %s (rows=%d, %.2fms)", sql, rows, ms)
	case l.LogLevel == gormlogger.Info:
		l.logger.Debug("[journal] sql: %s (rows=%d, %.2fms)", sql, rows, ms)
	}
}
