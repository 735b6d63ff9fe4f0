package mongostore

import (
	"context"

	"simple-chat/internal/domain"
	"simple-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ThreadStore 對話存儲實作
type ThreadStore struct {
	collection *mongo.Collection
}

// NewThreadStore 創建新的對話存儲
func NewThreadStore(db *mongo.Database) *ThreadStore {
	return &ThreadStore{
		collection: db.Collection(threadsCollection),
	}
}

func (s *ThreadStore) findOne(ctx context.Context, filter bson.M) (*domain.Thread, error) {
	var doc threadDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return doc.toDomain(), nil
}

// GetByID 根據 ID 獲取對話
func (s *ThreadStore) GetByID(ctx context.Context, id string) (*domain.Thread, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByPairKey 根據正規化配對鍵獲取對話
func (s *ThreadStore) GetByPairKey(ctx context.Context, pairKey string) (*domain.Thread, error) {
	return s.findOne(ctx, bson.M{"pair_key": pairKey})
}

// Create 創建對話, pair_key 唯一索引衝突時回傳 database.ErrDuplicate.
func (s *ThreadStore) Create(ctx context.Context, t *domain.Thread) error {
	_, err := s.collection.InsertOne(ctx, newThreadDocument(t))
	return translate(err)
}

// ListActiveByUser 列出使用者參與的活躍對話
func (s *ThreadStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Thread, error) {
	filter := bson.M{
		"is_active": true,
		"$or": bson.A{
			bson.M{"user_a": userID},
			bson.M{"user_b": userID},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "activity_at", Value: -1}, {Key: "_id", Value: 1}})
	return s.find(ctx, filter, opts)
}

// ListActiveWithChannel 列出已綁定遠端對話的活躍對話
func (s *ThreadStore) ListActiveWithChannel(ctx context.Context) ([]domain.Thread, error) {
	filter := bson.M{
		"is_active":         true,
		"channel_thread_id": bson.M{"$type": "string"},
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *ThreadStore) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]domain.Thread, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	threads := []domain.Thread{}
	for cursor.Next(ctx) {
		var doc threadDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		threads = append(threads, *doc.toDomain())
	}
	return threads, cursor.Err()
}

var _ database.ThreadRepository = (*ThreadStore)(nil)
