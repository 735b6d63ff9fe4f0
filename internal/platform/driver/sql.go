package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenPostgres 透過 pgx 連接 PostgreSQL.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         NewGormLogger(200 * time.Millisecond),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info(ctx, "PostgreSQL connected successfully")
	return db, nil
}

// OpenSQLite 開啟 SQLite (純 Go 驅動), path 可為 ":memory:".
//
// 連線數固定為 1: SQLite 只允許單一寫入者, 且 :memory: 資料庫只存在於該連線.
func OpenSQLite(ctx context.Context, path string) (*gorm.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path+pragmaSuffix(path)), &gorm.Config{
		Logger:         NewGormLogger(200 * time.Millisecond),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}
	return db, nil
}

// 開啟外鍵約束, 讓 ON DELETE CASCADE 生效.
func pragmaSuffix(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&_pragma=foreign_keys(1)"
	}
	return "?_pragma=foreign_keys(1)"
}
