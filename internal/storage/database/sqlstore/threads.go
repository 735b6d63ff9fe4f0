package sqlstore

import (
	"context"

	"simple-chat/internal/domain"
	"simple-chat/internal/storage/database"

	"gorm.io/gorm"
)

// ThreadStore 對話存儲實作
type ThreadStore struct {
	db *gorm.DB
}

func (s *ThreadStore) first(ctx context.Context, query string, args ...any) (*domain.Thread, error) {
	var m threadModel
	if err := s.db.WithContext(ctx).Where(query, args...).Take(&m).Error; err != nil {
		return nil, translate(err)
	}
	t := m.toDomain()
	return &t, nil
}

// GetByID 根據 ID 獲取對話
func (s *ThreadStore) GetByID(ctx context.Context, id string) (*domain.Thread, error) {
	return s.first(ctx, "id = ?", id)
}

// GetByPairKey 根據正規化配對鍵獲取對話
func (s *ThreadStore) GetByPairKey(ctx context.Context, pairKey string) (*domain.Thread, error) {
	return s.first(ctx, "pair_key = ?", pairKey)
}

// Create 創建對話, pair_key 唯一約束衝突時回傳 database.ErrDuplicate.
func (s *ThreadStore) Create(ctx context.Context, t *domain.Thread) error {
	return translate(s.db.WithContext(ctx).Create(newThreadModel(t)).Error)
}

// ListActiveByUser 列出使用者參與的活躍對話
func (s *ThreadStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Thread, error) {
	var models []threadModel
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND (user_a = ? OR user_b = ?)", true, userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toThreads(models), nil
}

// ListActiveWithChannel 列出已綁定遠端對話的活躍對話
func (s *ThreadStore) ListActiveWithChannel(ctx context.Context) ([]domain.Thread, error) {
	var models []threadModel
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND channel_thread_id IS NOT NULL", true).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toThreads(models), nil
}

func toThreads(models []threadModel) []domain.Thread {
	threads := make([]domain.Thread, 0, len(models))
	for i := range models {
		threads = append(threads, models[i].toDomain())
	}
	return threads
}

var _ database.ThreadRepository = (*ThreadStore)(nil)
