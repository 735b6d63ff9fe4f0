// Package database 定義儲存層合約, 由 mongostore 與 sqlstore 實作.
package database

import (
	"context"
	"errors"
	"time"

	"simple-chat/internal/domain"
)

// 儲存層哨兵錯誤, 服務層負責轉換成領域錯誤.
var (
	ErrNotFound  = errors.New("database: record not found")
	ErrDuplicate = errors.New("database: duplicate key")
)

// UserRepository 使用者儲存.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetBySubject(ctx context.Context, subject string) (*domain.User, error)
	GetByChannelIdentity(ctx context.Context, handle string) (*domain.User, error)
	// Create 違反 email 或 subject 唯一性時回傳 ErrDuplicate.
	Create(ctx context.Context, u *domain.User) error
	UpdateProfile(ctx context.Context, id, displayName, avatarURL string, now time.Time) error
	SetPresence(ctx context.Context, id string, online bool, now time.Time) error
	// SetChannelIdentity 只在使用者尚未擁有通道身份時寫入, 否則回傳 ErrNotFound.
	SetChannelIdentity(ctx context.Context, id, handle string, now time.Time) error
	// LinkSubject 只在使用者尚未綁定 subject 時寫入.
	LinkSubject(ctx context.Context, id, subject string, now time.Time) error
	Search(ctx context.Context, query string, limit int) ([]domain.User, error)
	ListOnline(ctx context.Context) ([]domain.User, error)
}

// ThreadRepository 對話儲存.
type ThreadRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Thread, error)
	GetByPairKey(ctx context.Context, pairKey string) (*domain.Thread, error)
	// Create 同一 PairKey 已存在時回傳 ErrDuplicate.
	Create(ctx context.Context, t *domain.Thread) error
	// ListActiveByUser 依最後活動時間 (無訊息時為建立時間) 由新到舊排列.
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Thread, error)
	// ListActiveWithChannel 列出已綁定遠端對話的活躍對話.
	ListActiveWithChannel(ctx context.Context) ([]domain.Thread, error)
}

// MessageRepository 訊息與已讀回執儲存.
type MessageRepository interface {
	// Append 在同一個交易中寫入訊息並更新對話的 LastMessageAt.
	// ChannelMessageID 重複時回傳 ErrDuplicate.
	Append(ctx context.Context, m *domain.Message) error
	// ListByThread 依 SentAt 升冪 (相同時依 ID) 排列, 不含已刪除訊息.
	ListByThread(ctx context.Context, threadID string, skip, limit int) ([]domain.Message, error)
	// Latest 最新一則未刪除訊息, 沒有時回傳 ErrNotFound.
	Latest(ctx context.Context, threadID string) (*domain.Message, error)
	ExistsByChannelID(ctx context.Context, channelMessageID string) (bool, error)
	// GetByChannelID 依遠端訊息 ID 查詢, 沒有時回傳 ErrNotFound.
	GetByChannelID(ctx context.Context, channelMessageID string) (*domain.Message, error)
	// CountUnread 計算 sender != userID, 未刪除, 且 userID 沒有回執的訊息數.
	CountUnread(ctx context.Context, threadID, userID string) (int64, error)
	// MarkRead 為 CountUnread 涵蓋的訊息建立回執, 全部使用同一個 readAt.
	// 並發重複的回執會被忽略, 回傳實際新增的筆數.
	MarkRead(ctx context.Context, threadID, userID string, readAt time.Time) (int, error)
	// ReceiptsFor 依訊息 ID 分組回傳回執, 依 ReadAt 升冪.
	ReceiptsFor(ctx context.Context, messageIDs []string) (map[string][]domain.ReadReceipt, error)
}

// Repositories 倉儲集合.
type Repositories struct {
	Users    UserRepository
	Threads  ThreadRepository
	Messages MessageRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// NewRepositories 組合倉儲集合, ping 與 closeFn 可為 nil.
func NewRepositories(users UserRepository, threads ThreadRepository, messages MessageRepository,
	ping, closeFn func(ctx context.Context) error,
) *Repositories {
	return &Repositories{
		Users:    users,
		Threads:  threads,
		Messages: messages,
		ping:     ping,
		close:    closeFn,
	}
}

// Ping 檢查底層連線.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}

// Close 關閉底層連線.
func (r *Repositories) Close(ctx context.Context) error {
	if r.close == nil {
		return nil
	}
	return r.close(ctx)
}
