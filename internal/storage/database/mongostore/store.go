// Package mongostore 以 MongoDB 實作儲存層.
package mongostore

import (
	"context"
	"fmt"

	"simple-chat/internal/platform/logger"
	"simple-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// New 建立索引並回傳倉儲集合.
func New(ctx context.Context, db *mongo.Database) (*database.Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo database is nil")
	}

	if err := CreateIndexes(ctx, db); err != nil {
		return nil, err
	}
	logger.Info(ctx, "MongoDB 索引建立完成", logger.WithDetails(map[string]any{"database": db.Name()}))

	client := db.Client()
	return database.NewRepositories(
		NewUserStore(db),
		NewThreadStore(db),
		NewMessageStore(db),
		func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
		func(ctx context.Context) error { return client.Disconnect(ctx) },
	), nil
}
