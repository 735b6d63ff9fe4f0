// Package storage 依設定開啟對應的儲存後端.
package storage

import (
	"context"
	"fmt"

	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/driver"
	"simple-chat/internal/storage/database"
	"simple-chat/internal/storage/database/mongostore"
	"simple-chat/internal/storage/database/sqlstore"
)

// Open 連接資料庫並回傳倉儲集合.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*database.Repositories, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		db, err := driver.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return mongostore.New(ctx, db)

	case config.DriverPostgres:
		db, err := driver.OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := sqlstore.Migrate(ctx, db); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return sqlstore.New(db), nil

	case config.DriverSQLite:
		db, err := driver.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if err := sqlstore.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlstore.New(db), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
