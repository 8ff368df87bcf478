// logger.go: logging infrastructure for store operations
package recordstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chronostore/chronostore/internal/errors"
	"github.com/chronostore/chronostore/internal/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Package-level logger for store operations
var (
	storeLogger   *slog.Logger
	storeLevelVar = new(slog.LevelVar) // Dynamic level control
	loggerClose   func() error
	loggerOnce    sync.Once
	loggerMu      sync.RWMutex

	// defaultLogPath follows the project convention of a "logs/" directory
	// holding all component log files.
	defaultLogPath = "logs/recordstore.log"
)

// InitializeLogger initializes the store logger with the specified log file path.
// Safe to call multiple times - initialization happens only once.
func InitializeLogger(logFilePath string) error {
	var initErr error

	loggerOnce.Do(func() {
		if logFilePath == "" {
			logFilePath = defaultLogPath
		}

		storeLevelVar.Set(slog.LevelInfo)

		var err error
		loggerMu.Lock()
		defer loggerMu.Unlock()
		storeLogger, loggerClose, err = logging.NewFileLogger(logFilePath, "recordstore", storeLevelVar)
		if err != nil {
			// Fall back to a disabled logger instead of failing the store.
			storeLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
			loggerClose = func() error { return nil }

			initErr = errors.Newf("recordstore: failed to initialize file logger: %v", err).
				Component("recordstore").
				Category(errors.CategoryFileIO).
				Context("log_file", logFilePath).
				Build()
		}
	})

	return initErr
}

// getLogger returns the logger, initializing it with the default path if needed.
func getLogger() *slog.Logger {
	loggerMu.RLock()
	if storeLogger != nil {
		defer loggerMu.RUnlock()
		return storeLogger
	}
	loggerMu.RUnlock()

	_ = InitializeLogger(defaultLogPath)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return storeLogger
}

// CloseLogger closes the store logger.
func CloseLogger() error {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if loggerClose != nil {
		return loggerClose()
	}
	return nil
}

// SetLogLevel sets the log level for the store logger.
func SetLogLevel(level slog.Level) {
	storeLevelVar.Set(level)
}

// GormLogger implements GORM's logger interface with structured logging.
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      logger.LogLevel
}

func newGormLogger() *GormLogger {
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      logger.Warn,
	}
}

// LogMode implements logger.Interface
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info implements logger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		getLogger().InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Warn implements logger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		getLogger().WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Error implements logger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		getLogger().ErrorContext(ctx, "GORM error",
			"msg", fmt.Sprintf(msg, data...))
	}
}

// Trace implements logger.Interface
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		getLogger().ErrorContext(ctx, "Database query failed",
			"error", err,
			"sql", sql,
			"duration", elapsed,
			"rows_affected", rows)

	case elapsed > l.SlowThreshold && l.SlowThreshold != 0:
		getLogger().WarnContext(ctx, "Slow query detected",
			"sql", sql,
			"duration", elapsed,
			"rows_affected", rows,
			"threshold", l.SlowThreshold)

	case l.LogLevel >= logger.Info:
		getLogger().DebugContext(ctx, "Query executed",
			"sql", sql,
			"duration", elapsed,
			"rows_affected", rows)
	}
}
