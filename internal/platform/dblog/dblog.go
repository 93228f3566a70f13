package dblog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSlowThreshold = 200 * time.Millisecond

// Logger sends gorm's query log to logrus. SQL is only logged at debug level.
type Logger struct {
	log           *logrus.Entry
	level         logger.LogLevel
	slowThreshold time.Duration
}

func New(log *logrus.Entry) *Logger {
	level := logger.Warn
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	return &Logger{
		log:           log.WithField("component", "gorm"),
		level:         level,
		slowThreshold: defaultSlowThreshold,
	}
}

func (l *Logger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *Logger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.WithContext(ctx).Info(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.WithContext(ctx).Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.WithContext(ctx).Error(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.fields(ctx, elapsed, sql, rows).WithError(err).Error("query failed")
	case elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		l.fields(ctx, elapsed, sql, rows).Warn("slow query")
	case l.level >= logger.Info:
		sql, rows := fc()
		l.fields(ctx, elapsed, sql, rows).Debug("query")
	}
}

func (l *Logger) fields(ctx context.Context, elapsed time.Duration, sql string, rows int64) *logrus.Entry {
	return l.log.WithContext(ctx).WithFields(logrus.Fields{
		"elapsed": elapsed.String(),
		"rows":    rows,
		"sql":     sql,
	})
}
