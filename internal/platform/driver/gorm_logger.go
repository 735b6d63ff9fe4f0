package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"simple-chat/internal/platform/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger 將 gorm 的日誌轉到 GCP 格式的 logger.
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger 建立 gorm 日誌轉接器, 只記錄錯誤與慢查詢.
func NewGormLogger(slowThreshold time.Duration) *GormLogger {
	return &GormLogger{level: gormlogger.Warn, slowThreshold: slowThreshold}
}

// LogMode 實作 gormlogger.Interface.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		logger.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		logger.Warning(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		logger.Error(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace 記錄失敗或超過門檻的 SQL, 找不到資料不算錯誤.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		logger.Error(ctx, "SQL 執行失敗", logger.WithError(err), logger.WithDetails(map[string]any{
			"sql": sql, "rows": rows, "elapsed_ms": elapsed.Milliseconds(),
		}))
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		logger.Warning(ctx, "慢查詢", logger.WithDetails(map[string]any{
			"sql": sql, "rows": rows, "elapsed_ms": elapsed.Milliseconds(),
		}))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		logger.Debug(ctx, "SQL", logger.WithDetails(map[string]any{"sql": sql, "rows": rows}))
	}
}
