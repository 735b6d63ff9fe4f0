// Package chat 實作一對一對話, 訊息與已讀狀態.
//
// 訊息先送到外部通道, 成功後才寫入本地儲存; 本地寫入與對話的
// LastMessageAt 更新在同一個交易中完成.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"simple-chat/internal/channel"
	"simple-chat/internal/constants"
	"simple-chat/internal/domain"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/metrics"
	"simple-chat/internal/platform/sanitize"
	"simple-chat/internal/security/audit"
	"simple-chat/internal/security/encryption"
	"simple-chat/internal/storage/database"
	"simple-chat/internal/user"

	"github.com/google/uuid"
)

// Limits 分頁與內容長度限制.
type Limits struct {
	DefaultPageSize  int
	MaxPageSize      int
	MaxContentLength int
}

// DefaultLimits 預設限制.
func DefaultLimits() Limits {
	return Limits{
		DefaultPageSize:  constants.DefaultPageSize,
		MaxPageSize:      constants.MaxPageSize,
		MaxContentLength: constants.DefaultMaxMessageLength,
	}
}

// Service 對話服務.
type Service struct {
	threads  database.ThreadRepository
	messages database.MessageRepository
	users    database.UserRepository
	dir      *user.Directory
	channel  channel.Adapter

	sealer  encryption.Sealer
	audit   *audit.AuditService
	metrics *metrics.Metrics
	now     func() time.Time
	limits  Limits
}

// Option 服務選項.
type Option func(*Service)

// WithSealer 啟用內容加密.
func WithSealer(s encryption.Sealer) Option {
	return func(svc *Service) {
		if s != nil {
			svc.sealer = s
		}
	}
}

// WithAudit 設定審計服務.
func WithAudit(a *audit.AuditService) Option {
	return func(svc *Service) { svc.audit = a }
}

// WithMetrics 設定指標.
func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithClock 替換時鐘 (測試用).
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithLimits 覆寫限制, 零值欄位使用預設.
func WithLimits(l Limits) Option {
	return func(svc *Service) {
		if l.DefaultPageSize > 0 {
			svc.limits.DefaultPageSize = l.DefaultPageSize
		}
		if l.MaxPageSize > 0 {
			svc.limits.MaxPageSize = l.MaxPageSize
		}
		if l.MaxContentLength > 0 {
			svc.limits.MaxContentLength = l.MaxContentLength
		}
	}
}

// NewService 建立對話服務.
func NewService(repos *database.Repositories, dir *user.Directory, ch channel.Adapter, opts ...Option) *Service {
	s := &Service{
		threads:  repos.Threads,
		messages: repos.Messages,
		users:    repos.Users,
		dir:      dir,
		channel:  ch,
		sealer:   encryption.Plain{},
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		limits:   DefaultLimits(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits 目前生效的限制.
func (s *Service) Limits() Limits {
	return s.limits
}

// GetOrCreateThread 取得或建立兩位使用者之間的對話.
//
// 同一組使用者並發建立時, 唯一鍵衝突的一方改為讀取勝出的對話.
func (s *Service) GetOrCreateThread(ctx context.Context, currentUserID, otherUserID string) (*ThreadSummary, error) {
	if strings.TrimSpace(currentUserID) == "" || strings.TrimSpace(otherUserID) == "" {
		return nil, domain.Invalid("both user ids are required")
	}
	if currentUserID == otherUserID {
		return nil, domain.Invalid("cannot create a thread with yourself")
	}

	current, err := s.dir.GetByID(ctx, currentUserID)
	if err != nil {
		return nil, err
	}
	other, err := s.dir.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	pairKey := domain.PairKey(current.ID, other.ID)
	existing, err := s.threads.GetByPairKey(ctx, pairKey)
	switch {
	case err == nil:
		return s.summary(ctx, existing, current.ID, other)
	case !errors.Is(err, database.ErrNotFound):
		return nil, domain.Internal(err, "find thread")
	}

	thread := domain.NewThread(uuid.NewString(), current.ID, other.ID, s.now())
	remoteID, err := s.createRemoteThread(ctx, thread, current, other)
	if err != nil {
		return nil, err
	}
	thread.ChannelThreadID = remoteID

	if err := s.threads.Create(ctx, thread); err != nil {
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, domain.Internal(err, "create thread")
		}
		// 其他請求先建立了同一組對話.
		logger.Warning(ctx, "對話已由並發請求建立, 捨棄遠端對話",
			logger.WithUserID(current.ID),
			logger.WithAction("thread.create_race"),
			logger.WithDetails(map[string]any{"pair_key": pairKey, "channel_thread_id": remoteID}))

		winner, err := s.threads.GetByPairKey(ctx, pairKey)
		if err != nil {
			return nil, domain.Internal(err, "re-read thread after duplicate")
		}
		return s.summary(ctx, winner, current.ID, other)
	}

	s.audit.LogThreadCreated(ctx, current.ID, thread.ID, other.ID)
	logger.Info(ctx, "對話已建立",
		logger.WithUserID(current.ID),
		logger.WithThreadID(thread.ID),
		logger.WithAction("thread.create"))

	return &ThreadSummary{
		ID:              thread.ID,
		ChannelThreadID: thread.ChannelThreadID,
		OtherUser:       user.ToProfile(other),
		CreatedAt:       thread.CreatedAt,
		IsActive:        thread.IsActive,
	}, nil
}

// createRemoteThread 為兩位參與者配發通道身份並建立遠端對話.
func (s *Service) createRemoteThread(ctx context.Context, thread *domain.Thread, u1, u2 *domain.User) (string, error) {
	a, b := u1, u2
	if thread.UserA != u1.ID {
		a, b = u2, u1
	}

	participants := make([]channel.Participant, 0, 2)
	for _, u := range []*domain.User{a, b} {
		handle, err := s.dir.EnsureChannelIdentity(ctx, u)
		if err != nil {
			return "", err
		}
		participants = append(participants, channel.Participant{Identity: handle, DisplayName: user.DisplayName(u)})
	}

	topic := user.DisplayName(a) + constants.ThreadTopicSeparator + user.DisplayName(b)
	remoteID, err := s.channel.CreateThread(ctx, topic, participants)
	if err != nil {
		return "", domain.External(err, "failed to create channel thread")
	}
	return remoteID, nil
}

// GetThreadDetails 取得對話與一頁訊息, 只有參與者可以讀取.
func (s *Service) GetThreadDetails(ctx context.Context, threadID, currentUserID string, pageSize, pageNumber int) (*ThreadDetail, error) {
	if strings.TrimSpace(currentUserID) == "" {
		return nil, domain.Invalid("current user id is required")
	}
	if err := s.validatePage(pageSize, pageNumber); err != nil {
		return nil, err
	}

	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(currentUserID) {
		s.audit.LogAccessDenied(ctx, currentUserID, thread.ID, "not a thread participant")
		return nil, domain.Forbidden("user is not a participant in this thread")
	}

	names := newNameCache(s.users)
	userA, err := names.user(ctx, thread.UserA)
	if err != nil {
		return nil, err
	}
	userB, err := names.user(ctx, thread.UserB)
	if err != nil {
		return nil, err
	}

	records, err := s.page(ctx, thread.ID, pageSize, pageNumber, currentUserID, names)
	if err != nil {
		return nil, err
	}

	return &ThreadDetail{
		ID:              thread.ID,
		ChannelThreadID: thread.ChannelThreadID,
		UserA:           user.ToProfile(userA),
		UserB:           user.ToProfile(userB),
		Messages:        records,
		CreatedAt:       thread.CreatedAt,
		LastMessageAt:   thread.LastMessageAt,
		PageSize:        pageSize,
		PageNumber:      pageNumber,
	}, nil
}

// GetUserThreads 列出使用者的活躍對話, 依最後活動時間由新到舊.
func (s *Service) GetUserThreads(ctx context.Context, userID string) ([]ThreadSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Invalid("user id is required")
	}

	threads, err := s.threads.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, "list threads")
	}

	names := newNameCache(s.users)
	out := make([]ThreadSummary, 0, len(threads))
	for i := range threads {
		other, err := names.user(ctx, threads[i].Other(userID))
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			other = &domain.User{ID: threads[i].Other(userID), DisplayName: constants.UnknownDisplayName}
		}
		summary, err := s.summaryWith(ctx, &threads[i], userID, other, names)
		if err != nil {
			return nil, err
		}
		out = append(out, *summary)
	}
	return out, nil
}

// SendMessage 送出訊息.
//
// 所有檢查都在遠端呼叫之前完成. 遠端失敗時本地不寫入;
// 遠端成功但本地寫入失敗時回傳 Internal, 不在呼叫內重試.
func (s *Service) SendMessage(ctx context.Context, senderID, threadID, content string) (*MessageRecord, error) {
	content = strings.TrimSpace(sanitize.Text(content))
	if content == "" {
		return nil, domain.Invalid("message content cannot be empty")
	}
	if n := utf8.RuneCountInString(content); n > s.limits.MaxContentLength {
		return nil, domain.Invalid("message content exceeds %d characters", s.limits.MaxContentLength)
	}
	if strings.TrimSpace(senderID) == "" {
		return nil, domain.Invalid("sender id is required")
	}

	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(senderID) {
		s.audit.LogAccessDenied(ctx, senderID, thread.ID, "not a thread participant")
		return nil, domain.Forbidden("user is not a participant in this thread")
	}

	sender, err := s.dir.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender.ChannelIdentity == "" {
		return nil, domain.Precondition("sender has no channel identity")
	}
	if thread.ChannelThreadID == "" {
		return nil, domain.Precondition("thread is not linked to a channel thread")
	}

	remoteID, err := s.channel.SendMessage(ctx, thread.ChannelThreadID,
		channel.Participant{Identity: sender.ChannelIdentity, DisplayName: user.DisplayName(sender)}, content)
	if err != nil {
		logger.Error(ctx, "遠端訊息送出失敗",
			logger.WithUserID(sender.ID),
			logger.WithThreadID(thread.ID),
			logger.WithAction("message.send"),
			logger.WithError(err))
		return nil, domain.External(err, "failed to deliver message")
	}

	stored, err := s.sealer.Seal(content, thread.ID)
	if err != nil {
		s.persistFailed(ctx, sender.ID, thread, remoteID, err)
		return nil, domain.Internal(err, "message delivered but not recorded")
	}

	msg := &domain.Message{
		ID:               uuid.NewString(),
		ThreadID:         thread.ID,
		SenderID:         sender.ID,
		Content:          stored,
		SentAt:           s.now(),
		ChannelMessageID: remoteID,
		Kind:             domain.MessageKindText,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		recorded, ok := s.alreadyRecorded(ctx, err, thread.ID, remoteID)
		if !ok {
			s.persistFailed(ctx, sender.ID, thread, remoteID, err)
			return nil, domain.Internal(err, "message delivered but not recorded")
		}
		// 補寫流程已先寫入同一則遠端訊息
		logger.Info(ctx, "遠端訊息已由補寫落地",
			logger.WithThreadID(thread.ID),
			logger.WithMessageID(recorded.ID),
			logger.WithAction("message.send"))
		msg = recorded
	}

	s.audit.LogMessageSent(ctx, sender.ID, thread.ID, msg.ID)
	logger.Info(ctx, "訊息已送出",
		logger.WithUserID(sender.ID),
		logger.WithThreadID(thread.ID),
		logger.WithMessageID(msg.ID),
		logger.WithAction("message.send"))

	return &MessageRecord{
		ID:               msg.ID,
		ThreadID:         msg.ThreadID,
		SenderID:         msg.SenderID,
		SenderName:       user.DisplayName(sender),
		Content:          content,
		SentAt:           msg.SentAt,
		ChannelMessageID: msg.ChannelMessageID,
		Kind:             msg.Kind,
		IsRead:           true,
		ReadReceipts:     []ReceiptRecord{},
	}, nil
}

// alreadyRecorded 判斷 Append 的重複錯誤是否來自同一則遠端訊息.
func (s *Service) alreadyRecorded(ctx context.Context, err error, threadID, remoteID string) (*domain.Message, bool) {
	if !errors.Is(err, database.ErrDuplicate) || remoteID == "" {
		return nil, false
	}
	existing, getErr := s.messages.GetByChannelID(ctx, remoteID)
	if getErr != nil || existing.ThreadID != threadID {
		return nil, false
	}
	return existing, true
}

func (s *Service) persistFailed(ctx context.Context, senderID string, thread *domain.Thread, remoteID string, err error) {
	s.metrics.PersistFailure()
	s.audit.LogPersistFailure(ctx, senderID, thread.ID, remoteID, err.Error())
	logger.Critical(ctx, "訊息已送到遠端但本地寫入失敗",
		logger.WithUserID(senderID),
		logger.WithThreadID(thread.ID),
		logger.WithAction("message.persist_failed"),
		logger.WithError(err),
		logger.WithDetails(map[string]any{
			"channel_message_id": remoteID,
			"channel_thread_id":  thread.ChannelThreadID,
			"sender_id":          senderID,
			"thread_id":          thread.ID,
		}))
}

// GetThreadMessages 取得一頁訊息, 沒有檢視者所以 IsRead 一律為 false.
func (s *Service) GetThreadMessages(ctx context.Context, threadID string, pageSize, pageNumber int) ([]MessageRecord, error) {
	if err := s.validatePage(pageSize, pageNumber); err != nil {
		return nil, err
	}
	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, thread.ID, pageSize, pageNumber, "", newNameCache(s.users))
}

// MarkMessagesAsRead 將對方送出且尚未讀取的訊息標為已讀, 可重複呼叫.
func (s *Service) MarkMessagesAsRead(ctx context.Context, userID, threadID string) error {
	thread, err := s.participantThread(ctx, userID, threadID)
	if err != nil {
		return err
	}

	n, err := s.messages.MarkRead(ctx, thread.ID, userID, s.now())
	if err != nil {
		return domain.Internal(err, "mark messages as read")
	}
	if n > 0 {
		s.audit.LogMessagesRead(ctx, userID, thread.ID, n)
		logger.Debug(ctx, "訊息已讀",
			logger.WithUserID(userID),
			logger.WithThreadID(thread.ID),
			logger.WithAction("message.read"),
			logger.WithDetails(map[string]any{"receipts": n}))
	}
	return nil
}

// GetUnreadCount 計算 MarkMessagesAsRead 會處理的訊息數.
func (s *Service) GetUnreadCount(ctx context.Context, userID, threadID string) (int64, error) {
	thread, err := s.participantThread(ctx, userID, threadID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.CountUnread(ctx, thread.ID, userID)
	if err != nil {
		return 0, domain.Internal(err, "count unread messages")
	}
	return n, nil
}

func (s *Service) participantThread(ctx context.Context, userID, threadID string) (*domain.Thread, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Invalid("user id is required")
	}
	thread, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(userID) {
		s.audit.LogAccessDenied(ctx, userID, thread.ID, "not a thread participant")
		return nil, domain.Forbidden("user is not a participant in this thread")
	}
	return thread, nil
}

func (s *Service) getThread(ctx context.Context, threadID string) (*domain.Thread, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, domain.Invalid("thread id is required")
	}
	thread, err := s.threads.GetByID(ctx, threadID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.NotFound("thread %s not found", threadID)
	}
	if err != nil {
		return nil, domain.Internal(err, "find thread")
	}
	return thread, nil
}

func (s *Service) validatePage(pageSize, pageNumber int) error {
	if pageSize < constants.MinPageSize || pageSize > s.limits.MaxPageSize {
		return domain.Invalid("page size must be between %d and %d", constants.MinPageSize, s.limits.MaxPageSize)
	}
	if pageNumber < constants.MinPageNumber {
		return domain.Invalid("page number must be at least %d", constants.MinPageNumber)
	}
	return nil
}

// page 讀取一頁訊息; viewer 為空時 IsRead 一律為 false.
func (s *Service) page(ctx context.Context, threadID string, pageSize, pageNumber int, viewer string, names *nameCache) ([]MessageRecord, error) {
	msgs, err := s.messages.ListByThread(ctx, threadID, database.Offset(pageNumber, pageSize), pageSize)
	if err != nil {
		return nil, domain.Internal(err, "list messages")
	}

	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
	}
	receipts := map[string][]domain.ReadReceipt{}
	if len(ids) > 0 {
		if receipts, err = s.messages.ReceiptsFor(ctx, ids); err != nil {
			return nil, domain.Internal(err, "load read receipts")
		}
	}

	out := make([]MessageRecord, 0, len(msgs))
	for i := range msgs {
		rec, err := s.record(ctx, &msgs[i], receipts[msgs[i].ID], viewer, names)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, m *domain.Message, receipts []domain.ReadReceipt, viewer string, names *nameCache) (MessageRecord, error) {
	content, err := s.sealer.Open(m.Content, m.ThreadID)
	if err != nil {
		return MessageRecord{}, domain.Internal(err, "decrypt message %s", m.ID)
	}

	rec := MessageRecord{
		ID:               m.ID,
		ThreadID:         m.ThreadID,
		SenderID:         m.SenderID,
		SenderName:       names.name(ctx, m.SenderID),
		Content:          content,
		SentAt:           m.SentAt,
		EditedAt:         m.EditedAt,
		ChannelMessageID: m.ChannelMessageID,
		Kind:             m.Kind,
		IsRead:           viewer != "" && m.SenderID == viewer,
		ReadReceipts:     make([]ReceiptRecord, 0, len(receipts)),
	}
	for _, r := range receipts {
		if viewer != "" && r.UserID == viewer {
			rec.IsRead = true
		}
		rec.ReadReceipts = append(rec.ReadReceipts, ReceiptRecord{
			UserID:   r.UserID,
			UserName: names.name(ctx, r.UserID),
			ReadAt:   r.ReadAt,
		})
	}
	return rec, nil
}

func (s *Service) summary(ctx context.Context, t *domain.Thread, viewer string, other *domain.User) (*ThreadSummary, error) {
	return s.summaryWith(ctx, t, viewer, other, newNameCache(s.users))
}

func (s *Service) summaryWith(ctx context.Context, t *domain.Thread, viewer string, other *domain.User, names *nameCache) (*ThreadSummary, error) {
	unread, err := s.messages.CountUnread(ctx, t.ID, viewer)
	if err != nil {
		return nil, domain.Internal(err, "count unread messages")
	}

	summary := &ThreadSummary{
		ID:              t.ID,
		ChannelThreadID: t.ChannelThreadID,
		OtherUser:       user.ToProfile(other),
		UnreadCount:     unread,
		CreatedAt:       t.CreatedAt,
		LastMessageAt:   t.LastMessageAt,
		IsActive:        t.IsActive,
	}

	last, err := s.messages.Latest(ctx, t.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return summary, nil
	case err != nil:
		return nil, domain.Internal(err, "load last message")
	}

	receipts, err := s.messages.ReceiptsFor(ctx, []string{last.ID})
	if err != nil {
		return nil, domain.Internal(err, "load read receipts")
	}
	rec, err := s.record(ctx, last, receipts[last.ID], viewer, names)
	if err != nil {
		return nil, err
	}
	summary.LastMessage = &rec
	return summary, nil
}

// nameCache 單一請求內的使用者查詢快取.
type nameCache struct {
	users database.UserRepository
	byID  map[string]*domain.User
}

func newNameCache(users database.UserRepository) *nameCache {
	return &nameCache{users: users, byID: make(map[string]*domain.User)}
}

func (c *nameCache) user(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := c.byID[id]; ok {
		return u, nil
	}
	u, err := c.users.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, domain.Internal(err, "find user")
	}
	c.byID[id] = u
	return u, nil
}

// name 顯示名稱, 查不到時回傳預設值.
func (c *nameCache) name(ctx context.Context, id string) string {
	u, err := c.user(ctx, id)
	if err != nil {
		return constants.UnknownDisplayName
	}
	return user.DisplayName(u)
}
