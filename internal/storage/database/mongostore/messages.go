package mongostore

import (
	"context"
	"errors"
	"time"

	"simple-chat/internal/domain"
	"simple-chat/internal/storage/database"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 單機 mongod 不支援交易時的錯誤代碼.
const illegalOperationCode = 20

// MessageStore 消息存儲實作, 已讀記錄內嵌於 read_by.
type MessageStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	threads    *mongo.Collection
}

// NewMessageStore 創建新的消息存儲
func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{
		client:     db.Client(),
		collection: db.Collection(messagesCollection),
		threads:    db.Collection(threadsCollection),
	}
}

// Append 寫入訊息並推進對話的最後訊息時間.
func (s *MessageStore) Append(ctx context.Context, m *domain.Message) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, s.appendWrites(txCtx, m)
	})
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(illegalOperationCode) {
		// 非 replica set: 依序寫入, 訊息先落地
		return s.appendWrites(ctx, m)
	}
	return err
}

func (s *MessageStore) appendWrites(ctx context.Context, m *domain.Message) error {
	if _, err := s.collection.InsertOne(ctx, newMessageDocument(m)); err != nil {
		return translate(err)
	}

	// $max 避免補寫的舊訊息讓時間倒退
	result, err := s.threads.UpdateOne(ctx, bson.M{"_id": m.ThreadID}, bson.M{
		"$max": bson.M{
			"last_message_at": m.SentAt,
			"activity_at":     m.SentAt,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ListByThread 依 sent_at 升冪分頁
func (s *MessageStore) ListByThread(ctx context.Context, threadID string, skip, limit int) ([]domain.Message, error) {
	filter := bson.M{"thread_id": threadID, "is_deleted": false}
	opts := options.Find().
		SetSort(bson.D{{Key: "sent_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"read_by": 0})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []domain.Message{}
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		messages = append(messages, *doc.toDomain())
	}
	return messages, cursor.Err()
}

// Latest 最新一則未刪除訊息
func (s *MessageStore) Latest(ctx context.Context, threadID string) (*domain.Message, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "sent_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetProjection(bson.M{"read_by": 0})

	var doc messageDocument
	err := s.collection.FindOne(ctx, bson.M{"thread_id": threadID, "is_deleted": false}, opts).Decode(&doc)
	if err != nil {
		return nil, translate(err)
	}
	return doc.toDomain(), nil
}

// ExistsByChannelID 檢查遠端訊息是否已寫入
func (s *MessageStore) ExistsByChannelID(ctx context.Context, channelMessageID string) (bool, error) {
	if channelMessageID == "" {
		return false, nil
	}
	count, err := s.collection.CountDocuments(ctx, bson.M{"channel_message_id": channelMessageID},
		options.Count().SetLimit(1))
	return count > 0, err
}

// GetByChannelID 依遠端訊息 ID 查詢
func (s *MessageStore) GetByChannelID(ctx context.Context, channelMessageID string) (*domain.Message, error) {
	if channelMessageID == "" {
		return nil, database.ErrNotFound
	}
	opts := options.FindOne().SetProjection(bson.M{"read_by": 0})
	var doc messageDocument
	err := s.collection.FindOne(ctx, bson.M{"channel_message_id": channelMessageID}, opts).Decode(&doc)
	if err != nil {
		return nil, translate(err)
	}
	return doc.toDomain(), nil
}

// unreadFilter 與 MarkRead 共用, 確保計數與標記的訊息集合一致
func unreadFilter(threadID, userID string) bson.M {
	return bson.M{
		"thread_id":       threadID,
		"is_deleted":      false,
		"sender_id":       bson.M{"$ne": userID},
		"read_by.user_id": bson.M{"$ne": userID},
	}
}

// CountUnread 獲取未讀消息數量
func (s *MessageStore) CountUnread(ctx context.Context, threadID, userID string) (int64, error) {
	return s.collection.CountDocuments(ctx, unreadFilter(threadID, userID))
}

// MarkRead 標記消息為已讀
//
// filter 已排除讀過的訊息, 單一文件的更新是原子的, 所以不會產生重複記錄.
func (s *MessageStore) MarkRead(ctx context.Context, threadID, userID string, readAt time.Time) (int, error) {
	update := bson.M{
		"$push": bson.M{"read_by": readByDocument{
			ID:     uuid.NewString(),
			UserID: userID,
			ReadAt: readAt,
		}},
	}
	result, err := s.collection.UpdateMany(ctx, unreadFilter(threadID, userID), update)
	if err != nil {
		return 0, err
	}
	return int(result.ModifiedCount), nil
}

// ReceiptsFor 取出訊息的已讀記錄
func (s *MessageStore) ReceiptsFor(ctx context.Context, messageIDs []string) (map[string][]domain.ReadReceipt, error) {
	out := make(map[string][]domain.ReadReceipt, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1, "read_by": 1})
	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": messageIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if len(doc.ReadBy) > 0 {
			out[doc.ID] = doc.receipts()
		}
	}
	return out, cursor.Err()
}

var _ database.MessageRepository = (*MessageStore)(nil)
