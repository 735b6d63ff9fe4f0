package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// 事件類型
const (
	EventThreadCreated      = "thread.created"
	EventMessageSent        = "message.sent"
	EventMessageRead        = "message.read"
	EventMessagePersistFail = "message.persist_failed"
	EventAccessDenied       = "access.denied"
	EventChannelTokenIssued = "channel.token_issued"
	EventAuthenticationFail = "auth.failure"
	EventRateLimitExceeded  = "rate_limit.exceeded"
	EventMessageReconciled  = "message.reconciled"
	resultSuccess           = "success"
	resultFailure           = "failure"
	resultDenied            = "denied"
	resultBlocked           = "blocked"
)

// Metadata 請求元數據, 由 HTTP 中間件寫入 context.
type Metadata struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type metadataKey struct{}

// WithMetadata 將請求元數據放入 context.
func WithMetadata(ctx context.Context, m Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, m)
}

// MetadataFrom 從 context 取出請求元數據.
func MetadataFrom(ctx context.Context) (Metadata, bool) {
	if ctx == nil {
		return Metadata{}, false
	}
	m, ok := ctx.Value(metadataKey{}).(Metadata)
	return m, ok
}

// AuditEvent 審計事件
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	ThreadID  string         `json:"thread_id,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Result    string         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AuditService 審計服務, 以 JSON lines 輸出. nil 值可安全使用.
type AuditService struct {
	enabled bool
	now     func() time.Time

	mu  sync.Mutex
	out io.Writer
}

// NewAuditService 創建審計服務, out 為 nil 時寫到標準輸出.
func NewAuditService(enabled bool, out io.Writer) *AuditService {
	if out == nil {
		out = os.Stdout
	}
	return &AuditService{enabled: enabled, now: time.Now, out: out}
}

// IsEnabled 檢查審計是否啟用
func (a *AuditService) IsEnabled() bool {
	return a != nil && a.enabled
}

// LogThreadCreated 記錄對話建立
func (a *AuditService) LogThreadCreated(ctx context.Context, userID, threadID, otherUserID string) {
	a.record(ctx, AuditEvent{
		EventType: EventThreadCreated,
		UserID:    userID,
		ThreadID:  threadID,
		Result:    resultSuccess,
		Details:   map[string]any{"other_user_id": otherUserID},
	})
}

// LogMessageSent 記錄訊息送出
func (a *AuditService) LogMessageSent(ctx context.Context, userID, threadID, messageID string) {
	a.record(ctx, AuditEvent{
		EventType: EventMessageSent,
		UserID:    userID,
		ThreadID:  threadID,
		MessageID: messageID,
		Result:    resultSuccess,
	})
}

// LogMessagesRead 記錄已讀, count 為新增的回執數.
func (a *AuditService) LogMessagesRead(ctx context.Context, userID, threadID string, count int) {
	a.record(ctx, AuditEvent{
		EventType: EventMessageRead,
		UserID:    userID,
		ThreadID:  threadID,
		Result:    resultSuccess,
		Details:   map[string]any{"receipts": count},
	})
}

// LogPersistFailure 記錄遠端已送出但本地寫入失敗的訊息.
func (a *AuditService) LogPersistFailure(ctx context.Context, userID, threadID, channelMessageID, reason string) {
	a.record(ctx, AuditEvent{
		EventType: EventMessagePersistFail,
		UserID:    userID,
		ThreadID:  threadID,
		Result:    resultFailure,
		Details: map[string]any{
			"channel_message_id": channelMessageID,
			"reason":             reason,
		},
	})
}

// LogMessageReconciled 記錄由同步工作補寫的訊息.
func (a *AuditService) LogMessageReconciled(ctx context.Context, threadID, messageID, channelMessageID string) {
	a.record(ctx, AuditEvent{
		EventType: EventMessageReconciled,
		ThreadID:  threadID,
		MessageID: messageID,
		Result:    resultSuccess,
		Details:   map[string]any{"channel_message_id": channelMessageID},
	})
}

// LogAccessDenied 記錄訪問被拒絕
func (a *AuditService) LogAccessDenied(ctx context.Context, userID, threadID, reason string) {
	a.record(ctx, AuditEvent{
		EventType: EventAccessDenied,
		UserID:    userID,
		ThreadID:  threadID,
		Result:    resultDenied,
		Details:   map[string]any{"reason": reason},
	})
}

// LogChannelTokenIssued 記錄通道權杖簽發
func (a *AuditService) LogChannelTokenIssued(ctx context.Context, userID string, expiresOn time.Time) {
	a.record(ctx, AuditEvent{
		EventType: EventChannelTokenIssued,
		UserID:    userID,
		Result:    resultSuccess,
		Details:   map[string]any{"expires_on": expiresOn.UTC().Format(time.RFC3339)},
	})
}

// LogAuthenticationFailure 記錄認證失敗
func (a *AuditService) LogAuthenticationFailure(ctx context.Context, reason string) {
	a.record(ctx, AuditEvent{
		EventType: EventAuthenticationFail,
		Result:    resultFailure,
		Details:   map[string]any{"reason": reason},
	})
}

// LogRateLimitExceeded 記錄速率限制超過
func (a *AuditService) LogRateLimitExceeded(ctx context.Context, clientKey, endpoint string) {
	a.record(ctx, AuditEvent{
		EventType: EventRateLimitExceeded,
		Result:    resultBlocked,
		Details: map[string]any{
			"client":   clientKey,
			"endpoint": endpoint,
		},
	})
}

func (a *AuditService) record(ctx context.Context, event AuditEvent) {
	if !a.IsEnabled() {
		return
	}
	event.Timestamp = a.now().UTC()
	if meta, ok := MetadataFrom(ctx); ok {
		event.IPAddress = meta.IPAddress
		event.UserAgent = meta.UserAgent
		event.RequestID = meta.RequestID
	}

	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.out.Write(line)
}
