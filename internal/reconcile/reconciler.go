// Package reconcile 定期將遠端通道中尚未落地的訊息補寫到本地儲存.
//
// 送訊息時遠端成功但本地寫入失敗, 會留下只存在於通道的訊息.
// 補寫以 channel_message_id 唯一性保證冪等.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"simple-chat/internal/channel"
	"simple-chat/internal/domain"
	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/metrics"
	"simple-chat/internal/platform/sanitize"
	"simple-chat/internal/security/audit"
	"simple-chat/internal/security/encryption"
	"simple-chat/internal/storage/database"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

const remoteTextType = "text"

// Reconciler 訊息補寫工作.
type Reconciler struct {
	repos    *database.Repositories
	channel  channel.Adapter
	sealer   encryption.Sealer
	audit    *audit.AuditService
	metrics  *metrics.Metrics
	schedule string
	lookback time.Duration
	pageSize int
	now      func() time.Time
	gron     *gronx.Gronx
}

// Option 補寫選項.
type Option func(*Reconciler)

// WithSealer 與對話服務使用同一個加密器.
func WithSealer(s encryption.Sealer) Option {
	return func(r *Reconciler) {
		if s != nil {
			r.sealer = s
		}
	}
}

func WithAudit(a *audit.AuditService) Option {
	return func(r *Reconciler) { r.audit = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock 測試用.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New 建立補寫工作, cron 表達式不合法時回傳錯誤.
func New(cfg config.ReconcileConfig, repos *database.Repositories, ch channel.Adapter, opts ...Option) (*Reconciler, error) {
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid reconcile schedule: %q", cfg.Schedule)
	}

	r := &Reconciler{
		repos:    repos,
		channel:  ch,
		sealer:   encryption.Plain{},
		schedule: schedule,
		lookback: time.Duration(cfg.LookbackMinute) * time.Minute,
		pageSize: cfg.PageSize,
		now:      time.Now,
		gron:     gronx.New(),
	}
	if r.lookback <= 0 {
		r.lookback = 10 * time.Minute
	}
	if r.pageSize <= 0 {
		r.pageSize = 100
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Due 回傳 t 所在的分鐘是否符合排程.
func (r *Reconciler) Due(t time.Time) bool {
	due, err := r.gron.IsDue(r.schedule, t.Truncate(time.Minute))
	return err == nil && due
}

// Run 每分鐘檢查一次排程, 直到 ctx 結束.
func (r *Reconciler) Run(ctx context.Context) {
	logger.Infof(ctx, "訊息補寫已啟動, schedule=%s", r.schedule)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), "訊息補寫已停止")
			return
		case t := <-ticker.C:
			if !r.Due(t) {
				continue
			}
			runCtx := logger.WithTraceID(ctx, logger.NewTraceID())
			n, err := r.RunOnce(runCtx)
			if err != nil {
				logger.Error(runCtx, "訊息補寫失敗", logger.WithAction("reconcile.run"), logger.WithError(err))
				continue
			}
			logger.Infof(runCtx, "訊息補寫完成, 新增 %d 則", n)
		}
	}
}

// RunOnce 掃描所有綁定遠端對話的活躍對話, 回傳補寫的訊息數.
// 單一對話失敗不會中斷其他對話, 最後回傳合併的錯誤.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	threads, err := r.repos.Threads.ListActiveWithChannel(ctx)
	if err != nil {
		return 0, fmt.Errorf("list threads: %w", err)
	}

	total := 0
	var errs []error
	for i := range threads {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := r.reconcileThread(ctx, &threads[i])
		total += n
		if err != nil {
			logger.Warning(ctx, "對話補寫失敗",
				logger.WithThreadID(threads[i].ID),
				logger.WithAction("reconcile.thread"),
				logger.WithLabels(map[string]string{"channel_thread_id": threads[i].ChannelThreadID}),
				logger.WithError(err))
			errs = append(errs, fmt.Errorf("thread %s: %w", threads[i].ID, err))
		}
	}
	r.metrics.Reconciled(total)
	return total, errors.Join(errs...)
}

func (r *Reconciler) reconcileThread(ctx context.Context, thread *domain.Thread) (int, error) {
	reader, err := r.reader(ctx, thread)
	if err != nil {
		return 0, err
	}

	remote, err := r.listSince(ctx, thread, reader, thread.ActivityAt().Add(-r.lookback))
	if err != nil {
		return 0, err
	}

	inserted := 0
	// 遠端由新到舊, 反向處理讓 LastMessageAt 最後停在最新一則.
	for i := len(remote) - 1; i >= 0; i-- {
		ok, err := r.backfill(ctx, thread, &remote[i])
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// listSince 跟隨遠端分頁直到 since, 回傳由新到舊的全部訊息.
func (r *Reconciler) listSince(ctx context.Context, thread *domain.Thread, reader string, since time.Time) ([]channel.RemoteMessage, error) {
	var all []channel.RemoteMessage
	opts := channel.ListOptions{As: reader, MaxPageSize: r.pageSize, StartTime: since}
	for {
		page, err := r.channel.ListMessages(ctx, thread.ChannelThreadID, opts)
		if err != nil {
			return nil, fmt.Errorf("list remote messages: %w", err)
		}
		all = append(all, page.Messages...)
		if page.NextPageToken == "" || page.NextPageToken == opts.PageToken {
			return all, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts.PageToken = page.NextPageToken
	}
}

// reader 取任一位已有通道身份的參與者, 以其身份讀取遠端訊息.
func (r *Reconciler) reader(ctx context.Context, thread *domain.Thread) (string, error) {
	for _, id := range []string{thread.UserA, thread.UserB} {
		u, err := r.repos.Users.GetByID(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load participant: %w", err)
		}
		if u.ChannelIdentity != "" {
			return u.ChannelIdentity, nil
		}
	}
	return "", errors.New("no participant has a channel identity")
}

func (r *Reconciler) backfill(ctx context.Context, thread *domain.Thread, rm *channel.RemoteMessage) (bool, error) {
	if rm.ID == "" || !strings.EqualFold(rm.Type, remoteTextType) {
		return false, nil
	}
	exists, err := r.repos.Messages.ExistsByChannelID(ctx, rm.ID)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	if exists {
		return false, nil
	}

	sender, err := r.repos.Users.GetByChannelIdentity(ctx, rm.SenderIdentity)
	if errors.Is(err, database.ErrNotFound) {
		logger.Debug(ctx, "遠端寄件者沒有對應的本地使用者",
			logger.WithThreadID(thread.ID),
			logger.WithDetails(map[string]any{"channel_message_id": rm.ID}))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve sender: %w", err)
	}
	if !thread.HasParticipant(sender.ID) {
		return false, nil
	}

	content := strings.TrimSpace(sanitize.Text(rm.Content))
	if content == "" {
		return false, nil
	}
	stored, err := r.sealer.Seal(content, thread.ID)
	if err != nil {
		return false, fmt.Errorf("seal content: %w", err)
	}

	sentAt := rm.CreatedOn
	if sentAt.IsZero() {
		sentAt = r.now()
	}
	msg := &domain.Message{
		ID:               uuid.NewString(),
		ThreadID:         thread.ID,
		SenderID:         sender.ID,
		Content:          stored,
		SentAt:           sentAt.UTC(),
		ChannelMessageID: rm.ID,
		Kind:             domain.MessageKindText,
	}
	if err := r.repos.Messages.Append(ctx, msg); err != nil {
		// 與送訊息流程並發時可能已被寫入.
		if errors.Is(err, database.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("append message: %w", err)
	}

	r.audit.LogMessageReconciled(ctx, thread.ID, msg.ID, rm.ID)
	logger.Info(ctx, "已補寫遠端訊息",
		logger.WithUserID(sender.ID),
		logger.WithThreadID(thread.ID),
		logger.WithMessageID(msg.ID),
		logger.WithAction("reconcile.backfill"))
	return true, nil
}
