// Package memory 提供行程內的外部通道實作, 用於本地開發與測試.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"simple-chat/internal/channel"

	"github.com/google/uuid"
)

type thread struct {
	topic        string
	participants map[string]channel.Participant
	messages     []channel.RemoteMessage
}

// Channel 行程內通道, 並發安全.
type Channel struct {
	mu         sync.Mutex
	now        func() time.Time
	identities map[string]bool
	threads    map[string]*thread
	calls      map[string]int
	failures   map[string][]error
	tokenTTL   time.Duration
}

// New 建立空的行程內通道.
func New() *Channel {
	return &Channel{
		now:        time.Now,
		identities: make(map[string]bool),
		threads:    make(map[string]*thread),
		calls:      make(map[string]int),
		failures:   make(map[string][]error),
		tokenTTL:   24 * time.Hour,
	}
}

// 操作名稱, 用於 FailNext 與 Calls.
const (
	OpCreateIdentity   = "CreateIdentity"
	OpIssueAccessToken = "IssueAccessToken"
	OpCreateThread     = "CreateThread"
	OpAddParticipant   = "AddParticipant"
	OpSendMessage      = "SendMessage"
	OpListMessages     = "ListMessages"
)

// FailNext 讓接下來 n 次 op 呼叫回傳 err.
func (c *Channel) FailNext(op string, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.failures[op] = append(c.failures[op], err)
	}
}

// Calls 回傳 op 被呼叫的次數.
func (c *Channel) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Messages 回傳遠端對話中的訊息副本.
func (c *Channel) Messages(threadID string) []channel.RemoteMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[threadID]
	if !ok {
		return nil
	}
	return append([]channel.RemoteMessage(nil), t.messages...)
}

// enter 記錄呼叫次數並取出預設的失敗, 呼叫者需持有鎖.
func (c *Channel) enter(ctx context.Context, op string) error {
	c.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if queue := c.failures[op]; len(queue) > 0 {
		c.failures[op] = queue[1:]
		return queue[0]
	}
	return nil
}

func (c *Channel) CreateIdentity(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreateIdentity); err != nil {
		return "", err
	}
	id := "8:acs:" + uuid.NewString()
	c.identities[id] = true
	return id, nil
}

func (c *Channel) IssueAccessToken(ctx context.Context, identity string, scopes []channel.Scope) (channel.AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpIssueAccessToken); err != nil {
		return channel.AccessToken{}, err
	}
	if !c.identities[identity] {
		return channel.AccessToken{}, fmt.Errorf("memory channel: unknown identity %q", identity)
	}
	return channel.AccessToken{
		Token:     "mem." + uuid.NewString(),
		ExpiresOn: c.now().Add(c.tokenTTL).UTC(),
	}, nil
}

func (c *Channel) CreateThread(ctx context.Context, topic string, participants []channel.Participant) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpCreateThread); err != nil {
		return "", err
	}
	t := &thread{topic: topic, participants: make(map[string]channel.Participant, len(participants))}
	for _, p := range participants {
		if !c.identities[p.Identity] {
			return "", fmt.Errorf("memory channel: unknown identity %q", p.Identity)
		}
		t.participants[p.Identity] = p
	}
	id := fmt.Sprintf("19:%s@thread.v2", uuid.NewString())
	c.threads[id] = t
	return id, nil
}

func (c *Channel) AddParticipant(ctx context.Context, threadID string, participant channel.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpAddParticipant); err != nil {
		return err
	}
	t, ok := c.threads[threadID]
	if !ok {
		return fmt.Errorf("memory channel: unknown thread %q", threadID)
	}
	t.participants[participant.Identity] = participant
	return nil
}

func (c *Channel) SendMessage(ctx context.Context, threadID string, sender channel.Participant, content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpSendMessage); err != nil {
		return "", err
	}
	t, ok := c.threads[threadID]
	if !ok {
		return "", fmt.Errorf("memory channel: unknown thread %q", threadID)
	}
	if _, ok := t.participants[sender.Identity]; !ok {
		return "", fmt.Errorf("memory channel: %q is not a participant", sender.Identity)
	}
	msg := channel.RemoteMessage{
		ID:                uuid.NewString(),
		Type:              "text",
		SequenceID:        fmt.Sprint(len(t.messages) + 1),
		Content:           content,
		SenderIdentity:    sender.Identity,
		SenderDisplayName: sender.DisplayName,
		CreatedOn:         c.now().UTC(),
	}
	t.messages = append(t.messages, msg)
	return msg.ID, nil
}

// ListMessages 依建立時間由新到舊分頁回傳, 與遠端服務一致; PageToken 為位移量.
func (c *Channel) ListMessages(ctx context.Context, threadID string, opts channel.ListOptions) (*channel.MessagePage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, OpListMessages); err != nil {
		return nil, err
	}
	t, ok := c.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("memory channel: unknown thread %q", threadID)
	}

	out := make([]channel.RemoteMessage, 0, len(t.messages))
	for _, m := range t.messages {
		if !opts.StartTime.IsZero() && m.CreatedOn.Before(opts.StartTime) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedOn.After(out[j].CreatedOn) })

	offset := 0
	if opts.PageToken != "" {
		n, err := strconv.Atoi(opts.PageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("memory channel: invalid page token %q", opts.PageToken)
		}
		offset = min(n, len(out))
	}
	page := &channel.MessagePage{Messages: out[offset:]}
	if opts.MaxPageSize > 0 && len(page.Messages) > opts.MaxPageSize {
		page.Messages = page.Messages[:opts.MaxPageSize]
		page.NextPageToken = strconv.Itoa(offset + opts.MaxPageSize)
	}
	return page, nil
}

func (c *Channel) Endpoint() string {
	return "memory://local"
}

var _ channel.Adapter = (*Channel)(nil)
