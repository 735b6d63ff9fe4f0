// Package channel 定義外部即時通道 (遠端身份, 對話與訊息) 的介面.
package channel

import (
	"context"
	"errors"
	"time"
)

// Scope 存取權杖範圍.
type Scope string

const (
	ScopeChat Scope = "chat"
	ScopeVoIP Scope = "voip"
)

// DefaultScopes 前端連線使用的預設範圍.
var DefaultScopes = []Scope{ScopeChat, ScopeVoIP}

// ErrUnavailable 通道無法連線或額度用盡.
var ErrUnavailable = errors.New("channel: unavailable")

// AccessToken 遠端身份的存取權杖.
type AccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// Participant 遠端對話參與者.
type Participant struct {
	Identity    string
	DisplayName string
}

// RemoteMessage 遠端通道上的訊息.
type RemoteMessage struct {
	ID                string
	Type              string
	SequenceID        string
	Content           string
	SenderIdentity    string
	SenderDisplayName string
	CreatedOn         time.Time
}

// ListOptions 列出遠端訊息的分頁選項.
type ListOptions struct {
	// As 以哪一個參與者身份讀取.
	As          string
	MaxPageSize int
	// StartTime 只回傳此時間之後的訊息, 零值表示不限.
	StartTime time.Time
	// PageToken 上一頁的 NextPageToken, 空字串表示第一頁.
	PageToken string
}

// MessagePage 一頁遠端訊息, 由新到舊.
type MessagePage struct {
	Messages []RemoteMessage
	// NextPageToken 為空表示已到 StartTime, 沒有下一頁.
	NextPageToken string
}

// Adapter 外部即時通道.
//
// 所有呼叫都是同步的, 沒有回傳代號就視為失敗.
type Adapter interface {
	CreateIdentity(ctx context.Context) (string, error)
	IssueAccessToken(ctx context.Context, identity string, scopes []Scope) (AccessToken, error)
	CreateThread(ctx context.Context, topic string, participants []Participant) (string, error)
	AddParticipant(ctx context.Context, threadID string, participant Participant) error
	SendMessage(ctx context.Context, threadID string, sender Participant, content string) (string, error)
	ListMessages(ctx context.Context, threadID string, opts ListOptions) (*MessagePage, error)
	// Endpoint 前端 SDK 連線的端點.
	Endpoint() string
}
