package mongostore

import (
	"context"
	"errors"
	"time"

	"simple-chat/internal/domain"
	"simple-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UserStore 使用者存儲實作
type UserStore struct {
	collection *mongo.Collection
}

// NewUserStore 創建新的使用者存儲
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{
		collection: db.Collection(usersCollection),
	}
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return doc.toDomain(), nil
}

// GetByID 根據 ID 獲取使用者
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail 根據 email 獲取使用者
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// GetBySubject 根據身份提供者 subject 獲取使用者
func (s *UserStore) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	if subject == "" {
		return nil, database.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"external_subject": subject})
}

// GetByChannelIdentity 根據外部通道身份獲取使用者
func (s *UserStore) GetByChannelIdentity(ctx context.Context, handle string) (*domain.User, error) {
	if handle == "" {
		return nil, database.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"channel_identity": handle})
}

// Create 創建使用者
func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	_, err := s.collection.InsertOne(ctx, newUserDocument(u))
	return translate(err)
}

func (s *UserStore) updateOne(ctx context.Context, filter, update bson.M) error {
	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return translate(err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// UpdateProfile 更新顯示資料
func (s *UserStore) UpdateProfile(ctx context.Context, id, displayName, avatarURL string, now time.Time) error {
	return s.updateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"display_name": displayName,
		"avatar_url":   avatarURL,
		"updated_at":   now,
	}})
}

// SetPresence 更新在線狀態, 上線時同時更新 last_seen_at.
func (s *UserStore) SetPresence(ctx context.Context, id string, online bool, now time.Time) error {
	set := bson.M{"is_online": online, "updated_at": now}
	if online {
		set["last_seen_at"] = now
	}
	return s.updateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
}

// SetChannelIdentity 寫入外部通道身份, 已設定時回傳 ErrNotFound.
func (s *UserStore) SetChannelIdentity(ctx context.Context, id, handle string, now time.Time) error {
	filter := bson.M{"_id": id, "channel_identity": bson.M{"$exists": false}}
	return s.updateOne(ctx, filter, bson.M{"$set": bson.M{
		"channel_identity": handle,
		"updated_at":       now,
	}})
}

// LinkSubject 綁定 subject, 已綁定時回傳 ErrNotFound.
func (s *UserStore) LinkSubject(ctx context.Context, id, subject string, now time.Time) error {
	filter := bson.M{"_id": id, "external_subject": bson.M{"$exists": false}}
	return s.updateOne(ctx, filter, bson.M{"$set": bson.M{
		"external_subject": subject,
		"updated_at":       now,
	}})
}

// Search 依顯示名稱或 email 模糊搜尋 (不區分大小寫)
func (s *UserStore) Search(ctx context.Context, query string, limit int) ([]domain.User, error) {
	pattern := safeRegexQuery(query)
	filter := bson.M{"$or": bson.A{
		bson.M{"display_name": pattern},
		bson.M{"email": pattern},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "display_name", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(database.SearchLimit(limit)))
	return s.find(ctx, filter, opts)
}

// ListOnline 列出在線使用者
func (s *UserStore) ListOnline(ctx context.Context) ([]domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "display_name", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, bson.M{"is_online": true}, opts)
}

func (s *UserStore) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]domain.User, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []domain.User{}
	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, *doc.toDomain())
	}
	return users, cursor.Err()
}

// translate 將驅動錯誤轉成儲存層哨兵錯誤
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return database.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(database.ErrDuplicate, err)
	default:
		return err
	}
}

// safeRegexQuery 創建安全的正則表達式查詢（防止 ReDoS）
func safeRegexQuery(pattern string) bson.M {
	return bson.M{
		"$regex":   database.QuoteRegex(pattern),
		"$options": "i", // 不區分大小寫
	}
}

var _ database.UserRepository = (*UserStore)(nil)
