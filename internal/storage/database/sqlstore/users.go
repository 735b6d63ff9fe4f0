package sqlstore

import (
	"context"
	"strings"
	"time"

	"simple-chat/internal/domain"
	"simple-chat/internal/storage/database"

	"gorm.io/gorm"
)

// UserStore 使用者存儲實作
type UserStore struct {
	db *gorm.DB
}

func (s *UserStore) first(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where(query, args...).Take(&m).Error; err != nil {
		return nil, translate(err)
	}
	u := m.toDomain()
	return &u, nil
}

// GetByID 根據 ID 獲取使用者
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByEmail 根據 email 獲取使用者
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.first(ctx, "email = ?", email)
}

// GetBySubject 根據身份提供者 subject 獲取使用者
func (s *UserStore) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	if subject == "" {
		return nil, database.ErrNotFound
	}
	return s.first(ctx, "external_subject = ?", subject)
}

// GetByChannelIdentity 根據外部通道身份獲取使用者
func (s *UserStore) GetByChannelIdentity(ctx context.Context, handle string) (*domain.User, error) {
	if handle == "" {
		return nil, database.ErrNotFound
	}
	return s.first(ctx, "channel_identity = ?", handle)
}

// Create 創建使用者
func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	return translate(s.db.WithContext(ctx).Create(newUserModel(u)).Error)
}

func (s *UserStore) update(ctx context.Context, scope *gorm.DB, values map[string]any) error {
	result := scope.WithContext(ctx).Model(&userModel{}).Updates(values)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// UpdateProfile 更新顯示資料
func (s *UserStore) UpdateProfile(ctx context.Context, id, displayName, avatarURL string, now time.Time) error {
	return s.update(ctx, s.db.Where("id = ?", id), map[string]any{
		"display_name": displayName,
		"avatar_url":   avatarURL,
		"updated_at":   now,
	})
}

// SetPresence 更新在線狀態, 上線時同時更新 last_seen_at.
func (s *UserStore) SetPresence(ctx context.Context, id string, online bool, now time.Time) error {
	values := map[string]any{"is_online": online, "updated_at": now}
	if online {
		values["last_seen_at"] = now
	}
	return s.update(ctx, s.db.Where("id = ?", id), values)
}

// SetChannelIdentity 寫入外部通道身份, 已設定時回傳 ErrNotFound.
func (s *UserStore) SetChannelIdentity(ctx context.Context, id, handle string, now time.Time) error {
	return s.update(ctx, s.db.Where("id = ? AND channel_identity IS NULL", id), map[string]any{
		"channel_identity": handle,
		"updated_at":       now,
	})
}

// LinkSubject 綁定 subject, 已綁定時回傳 ErrNotFound.
func (s *UserStore) LinkSubject(ctx context.Context, id, subject string, now time.Time) error {
	return s.update(ctx, s.db.Where("id = ? AND external_subject IS NULL", id), map[string]any{
		"external_subject": subject,
		"updated_at":       now,
	})
}

// Search 依顯示名稱或 email 模糊搜尋 (不區分大小寫)
func (s *UserStore) Search(ctx context.Context, query string, limit int) ([]domain.User, error) {
	pattern := "%" + database.EscapeLike(strings.ToLower(query)) + "%"
	var models []userModel
	err := s.db.WithContext(ctx).
		Where(`LOWER(display_name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`, pattern, pattern).
		Order("display_name ASC").Order("id ASC").
		Limit(database.SearchLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toUsers(models), nil
}

// ListOnline 列出在線使用者
func (s *UserStore) ListOnline(ctx context.Context) ([]domain.User, error) {
	var models []userModel
	err := s.db.WithContext(ctx).
		Where("is_online = ?", true).
		Order("display_name ASC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toUsers(models), nil
}

func toUsers(models []userModel) []domain.User {
	users := make([]domain.User, 0, len(models))
	for i := range models {
		users = append(users, models[i].toDomain())
	}
	return users
}

var _ database.UserRepository = (*UserStore)(nil)
