package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 建立索引, 唯一性約束也在這裡保證.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	// 存在時才檢查唯一性 (omitempty 欄位)
	present := bson.M{"$type": "string"}

	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_uniq").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "external_subject", Value: 1}},
			Options: options.Index().SetName("external_subject_uniq").SetUnique(true).
				SetPartialFilterExpression(bson.M{"external_subject": present}),
		},
		{
			Keys: bson.D{{Key: "channel_identity", Value: 1}},
			Options: options.Index().SetName("channel_identity_uniq").SetUnique(true).
				SetPartialFilterExpression(bson.M{"channel_identity": present}),
		},
		{
			Keys:    bson.D{{Key: "is_online", Value: 1}, {Key: "display_name", Value: 1}},
			Options: options.Index().SetName("online_name_idx"),
		},
	}
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}

	threadIndexes := []mongo.IndexModel{
		// 一組無序使用者配對只能有一個對話
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetName("pair_key_uniq").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_a", Value: 1}, {Key: "activity_at", Value: -1}},
			Options: options.Index().SetName("user_a_activity_idx"),
		},
		{
			Keys:    bson.D{{Key: "user_b", Value: 1}, {Key: "activity_at", Value: -1}},
			Options: options.Index().SetName("user_b_activity_idx"),
		},
	}
	if _, err := db.Collection(threadsCollection).Indexes().CreateMany(ctx, threadIndexes); err != nil {
		return fmt.Errorf("create threads indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		// 分頁查詢的主要索引
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "sent_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("thread_sent_idx"),
		},
		{
			Keys: bson.D{{Key: "channel_message_id", Value: 1}},
			Options: options.Index().SetName("channel_message_id_uniq").SetUnique(true).
				SetPartialFilterExpression(bson.M{"channel_message_id": present}),
		},
		// 未讀計算
		{
			Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "read_by.user_id", Value: 1}},
			Options: options.Index().SetName("thread_read_idx"),
		},
	}
	if _, err := db.Collection(messagesCollection).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("create messages indexes: %w", err)
	}

	return nil
}
