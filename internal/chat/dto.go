package chat

import (
	"time"

	"simple-chat/internal/domain"
	"simple-chat/internal/user"
)

// ThreadSummary 對話列表項目, 以呼叫者的角度呈現.
type ThreadSummary struct {
	ID              string         `json:"id"`
	ChannelThreadID string         `json:"channelThreadId,omitempty"`
	OtherUser       user.Profile   `json:"otherUser"`
	LastMessage     *MessageRecord `json:"lastMessage,omitempty"`
	UnreadCount     int64          `json:"unreadCount"`
	CreatedAt       time.Time      `json:"createdAt"`
	LastMessageAt   *time.Time     `json:"lastMessageAt,omitempty"`
	IsActive        bool           `json:"isActive"`
}

// ThreadDetail 對話內容與一頁訊息.
type ThreadDetail struct {
	ID              string          `json:"id"`
	ChannelThreadID string          `json:"channelThreadId,omitempty"`
	UserA           user.Profile    `json:"userA"`
	UserB           user.Profile    `json:"userB"`
	Messages        []MessageRecord `json:"messages"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastMessageAt   *time.Time      `json:"lastMessageAt,omitempty"`
	PageSize        int             `json:"pageSize"`
	PageNumber      int             `json:"pageNumber"`
}

// MessageRecord 對外的訊息.
type MessageRecord struct {
	ID               string             `json:"id"`
	ThreadID         string             `json:"threadId"`
	SenderID         string             `json:"senderId"`
	SenderName       string             `json:"senderName"`
	Content          string             `json:"content"`
	SentAt           time.Time          `json:"sentAt"`
	EditedAt         *time.Time         `json:"editedAt,omitempty"`
	ChannelMessageID string             `json:"channelMessageId,omitempty"`
	Kind             domain.MessageKind `json:"kind"`
	IsRead           bool               `json:"isRead"`
	ReadReceipts     []ReceiptRecord    `json:"readReceipts"`
}

// ReceiptRecord 對外的已讀回執.
type ReceiptRecord struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	ReadAt   time.Time `json:"readAt"`
}
