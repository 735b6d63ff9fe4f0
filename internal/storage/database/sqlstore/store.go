// Package sqlstore 以 gorm 實作關聯式儲存 (PostgreSQL 與 SQLite).
package sqlstore

import (
	"context"
	"errors"
	"strings"

	"simple-chat/internal/storage/database"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation PostgreSQL unique_violation SQLSTATE.
const pgUniqueViolation = "23505"

// Migrate 建立或更新資料表與索引.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&userModel{},
		&threadModel{},
		&messageModel{},
		&receiptModel{},
	)
}

// New 回傳 gorm 實作的倉儲集合.
func New(db *gorm.DB) *database.Repositories {
	return database.NewRepositories(
		&UserStore{db: db},
		&ThreadStore{db: db},
		&MessageStore{db: db},
		func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	)
}

// translate 將 gorm 與驅動錯誤轉成儲存層哨兵錯誤
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return database.ErrNotFound
	case isUniqueViolation(err):
		return errors.Join(database.ErrDuplicate, err)
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// 未啟用 TranslateError 的 sqlite 連線
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate key")
}
