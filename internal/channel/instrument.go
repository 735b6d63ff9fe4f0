package channel

import (
	"context"
	"time"
)

// Observer 接收每次通道呼叫的結果.
type Observer interface {
	ObserveChannelCall(op string, err error, elapsed time.Duration)
}

type instrumented struct {
	next     Adapter
	timeout  time.Duration
	observer Observer
}

// Instrument 為每次呼叫套上逾時並回報結果, observer 可為 nil.
func Instrument(next Adapter, timeout time.Duration, observer Observer) Adapter {
	return &instrumented{next: next, timeout: timeout, observer: observer}
}

func (a *instrumented) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	if a.observer != nil {
		a.observer.ObserveChannelCall(op, err, time.Since(start))
	}
	return err
}

func (a *instrumented) CreateIdentity(ctx context.Context) (id string, err error) {
	err = a.call(ctx, "create_identity", func(ctx context.Context) error {
		id, err = a.next.CreateIdentity(ctx)
		return err
	})
	return id, err
}

func (a *instrumented) IssueAccessToken(ctx context.Context, identity string, scopes []Scope) (tok AccessToken, err error) {
	err = a.call(ctx, "issue_access_token", func(ctx context.Context) error {
		tok, err = a.next.IssueAccessToken(ctx, identity, scopes)
		return err
	})
	return tok, err
}

func (a *instrumented) CreateThread(ctx context.Context, topic string, participants []Participant) (id string, err error) {
	err = a.call(ctx, "create_thread", func(ctx context.Context) error {
		id, err = a.next.CreateThread(ctx, topic, participants)
		return err
	})
	return id, err
}

func (a *instrumented) AddParticipant(ctx context.Context, threadID string, participant Participant) error {
	return a.call(ctx, "add_participant", func(ctx context.Context) error {
		return a.next.AddParticipant(ctx, threadID, participant)
	})
}

func (a *instrumented) SendMessage(ctx context.Context, threadID string, sender Participant, content string) (id string, err error) {
	err = a.call(ctx, "send_message", func(ctx context.Context) error {
		id, err = a.next.SendMessage(ctx, threadID, sender, content)
		return err
	})
	return id, err
}

func (a *instrumented) ListMessages(ctx context.Context, threadID string, opts ListOptions) (page *MessagePage, err error) {
	err = a.call(ctx, "list_messages", func(ctx context.Context) error {
		page, err = a.next.ListMessages(ctx, threadID, opts)
		return err
	})
	return page, err
}

func (a *instrumented) Endpoint() string {
	return a.next.Endpoint()
}
