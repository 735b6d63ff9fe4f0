package sqlstore

import (
	"context"
	"time"

	"simple-chat/internal/domain"
	"simple-chat/internal/storage/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const receiptBatchSize = 200

// MessageStore 訊息與已讀回執存儲實作
type MessageStore struct {
	db *gorm.DB
}

// Append 在同一個交易中寫入訊息並推進對話的最後訊息時間
func (s *MessageStore) Append(ctx context.Context, m *domain.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newMessageModel(m)).Error; err != nil {
			return translate(err)
		}

		// 只往前推進, 補寫的舊訊息不會讓時間倒退
		return tx.Model(&threadModel{}).
			Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", m.ThreadID, m.SentAt).
			Update("last_message_at", m.SentAt).Error
	})
}

// ListByThread 依 sent_at 升冪分頁
func (s *MessageStore) ListByThread(ctx context.Context, threadID string, skip, limit int) ([]domain.Message, error) {
	var models []messageModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND is_deleted = ?", threadID, false).
		Order("sent_at ASC").Order("id ASC").
		Offset(skip).Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].toDomain())
	}
	return messages, nil
}

// Latest 最新一則未刪除訊息
func (s *MessageStore) Latest(ctx context.Context, threadID string) (*domain.Message, error) {
	var m messageModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND is_deleted = ?", threadID, false).
		Order("sent_at DESC").Order("id DESC").
		Take(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	msg := m.toDomain()
	return &msg, nil
}

// ExistsByChannelID 檢查遠端訊息是否已寫入
func (s *MessageStore) ExistsByChannelID(ctx context.Context, channelMessageID string) (bool, error) {
	if channelMessageID == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&messageModel{}).
		Where("channel_message_id = ?", channelMessageID).
		Limit(1).Count(&count).Error
	return count > 0, err
}

// GetByChannelID 依遠端訊息 ID 查詢
func (s *MessageStore) GetByChannelID(ctx context.Context, channelMessageID string) (*domain.Message, error) {
	if channelMessageID == "" {
		return nil, database.ErrNotFound
	}
	var m messageModel
	err := s.db.WithContext(ctx).Where("channel_message_id = ?", channelMessageID).Take(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	msg := m.toDomain()
	return &msg, nil
}

// unread 與 MarkRead 共用, 確保計數與標記的訊息集合一致
func unread(db *gorm.DB, threadID, userID string) *gorm.DB {
	return db.Model(&messageModel{}).
		Where("messages.thread_id = ? AND messages.is_deleted = ? AND messages.sender_id <> ?", threadID, false, userID).
		Where("NOT EXISTS (SELECT 1 FROM read_receipts r WHERE r.message_id = messages.id AND r.user_id = ?)", userID)
}

// CountUnread 獲取未讀消息數量
func (s *MessageStore) CountUnread(ctx context.Context, threadID, userID string) (int64, error) {
	var count int64
	err := unread(s.db.WithContext(ctx), threadID, userID).Count(&count).Error
	return count, err
}

// MarkRead 為未讀訊息建立回執, 並發寫入的重複回執以 ON CONFLICT DO NOTHING 忽略.
func (s *MessageStore) MarkRead(ctx context.Context, threadID, userID string, readAt time.Time) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := unread(tx, threadID, userID).Pluck("messages.id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		receipts := make([]receiptModel, 0, len(ids))
		for _, id := range ids {
			receipts = append(receipts, receiptModel{
				ID:        uuid.NewString(),
				MessageID: id,
				UserID:    userID,
				ReadAt:    readAt,
			})
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(receipts, receiptBatchSize)
		if result.Error != nil {
			return result.Error
		}
		inserted = int(result.RowsAffected)
		return nil
	})
	return inserted, err
}

// ReceiptsFor 依訊息 ID 分組回傳回執
func (s *MessageStore) ReceiptsFor(ctx context.Context, messageIDs []string) (map[string][]domain.ReadReceipt, error) {
	out := make(map[string][]domain.ReadReceipt, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	var models []receiptModel
	err := s.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("read_at ASC").Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	for i := range models {
		r := models[i].toDomain()
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	return out, nil
}

var _ database.MessageRepository = (*MessageStore)(nil)
