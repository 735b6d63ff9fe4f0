package grpc

import "simple-chat/internal/chat"

// GetOrCreateThreadRequest 取得或建立對話.
type GetOrCreateThreadRequest struct {
	CurrentUserID string `json:"currentUserId"`
	OtherUserID   string `json:"otherUserId"`
}

// ThreadResponse 單一對話.
type ThreadResponse struct {
	Thread *chat.ThreadSummary `json:"thread"`
}

// GetThreadDetailsRequest 對話內容. 分頁為 0 時使用預設值.
type GetThreadDetailsRequest struct {
	ThreadID      string `json:"threadId"`
	CurrentUserID string `json:"currentUserId"`
	PageSize      int    `json:"pageSize,omitempty"`
	PageNumber    int    `json:"pageNumber,omitempty"`
}

// ThreadDetailResponse 對話內容.
type ThreadDetailResponse struct {
	Detail *chat.ThreadDetail `json:"detail"`
}

// GetUserThreadsRequest 列出使用者的對話.
type GetUserThreadsRequest struct {
	UserID string `json:"userId"`
}

// ThreadListResponse 對話列表.
type ThreadListResponse struct {
	Threads []chat.ThreadSummary `json:"threads"`
}

// SendMessageRequest 送出訊息.
type SendMessageRequest struct {
	SenderID string `json:"senderId"`
	ThreadID string `json:"threadId"`
	Content  string `json:"content"`
}

// MessageResponse 單一訊息.
type MessageResponse struct {
	Message *chat.MessageRecord `json:"message"`
}

// GetThreadMessagesRequest 分頁讀取訊息.
type GetThreadMessagesRequest struct {
	ThreadID   string `json:"threadId"`
	PageSize   int    `json:"pageSize,omitempty"`
	PageNumber int    `json:"pageNumber,omitempty"`
}

// MessageListResponse 訊息列表.
type MessageListResponse struct {
	Messages []chat.MessageRecord `json:"messages"`
}

// MarkMessagesAsReadRequest 標記已讀.
type MarkMessagesAsReadRequest struct {
	UserID   string `json:"userId"`
	ThreadID string `json:"threadId"`
}

// MarkMessagesAsReadResponse 空回應.
type MarkMessagesAsReadResponse struct{}

// GetUnreadCountRequest 未讀數量.
type GetUnreadCountRequest struct {
	UserID   string `json:"userId"`
	ThreadID string `json:"threadId"`
}

// UnreadCountResponse 未讀數量.
type UnreadCountResponse struct {
	ThreadID    string `json:"threadId"`
	UserID      string `json:"userId"`
	UnreadCount int64  `json:"unreadCount"`
}
