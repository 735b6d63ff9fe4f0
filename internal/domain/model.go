// Package domain 定義使用者, 對話, 訊息與已讀回執的資料模型.
package domain

import (
	"strings"
	"time"
)

// MessageKind 訊息類型.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
)

// Valid 檢查訊息類型是否合法.
func (k MessageKind) Valid() bool {
	return k == MessageKindText || k == MessageKindSystem
}

// User 使用者.
type User struct {
	ID              string
	ExternalSubject string // 身份提供者 subject, 存在時唯一.
	Email           string // 唯一.
	DisplayName     string
	AvatarURL       string
	ChannelIdentity string // 外部通道身份代號.
	IsOnline        bool
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Thread 兩位使用者之間的一對一對話.
//
// UserA 與 UserB 以字典序排列, PairKey 在儲存層唯一.
type Thread struct {
	ID              string
	UserA           string
	UserB           string
	PairKey         string
	ChannelThreadID string
	CreatedAt       time.Time
	LastMessageAt   *time.Time
	IsActive        bool
}

// NewThread 依正規化順序建立對話.
func NewThread(id, u1, u2 string, now time.Time) *Thread {
	a, b := CanonicalPair(u1, u2)
	return &Thread{
		ID:        id,
		UserA:     a,
		UserB:     b,
		PairKey:   PairKey(u1, u2),
		CreatedAt: now,
		IsActive:  true,
	}
}

// HasParticipant 判斷 userID 是否為對話參與者.
func (t *Thread) HasParticipant(userID string) bool {
	return userID != "" && (t.UserA == userID || t.UserB == userID)
}

// Other 回傳另一位參與者.
func (t *Thread) Other(userID string) string {
	if t.UserA == userID {
		return t.UserB
	}
	return t.UserA
}

// ActivityAt 最後活動時間, 沒有訊息時退回建立時間.
func (t *Thread) ActivityAt() time.Time {
	if t.LastMessageAt != nil {
		return *t.LastMessageAt
	}
	return t.CreatedAt
}

// CanonicalPair 將兩個 id 依字典序排列.
func CanonicalPair(u1, u2 string) (string, string) {
	if strings.Compare(u1, u2) <= 0 {
		return u1, u2
	}
	return u2, u1
}

// PairKey 無序使用者配對的正規化鍵.
func PairKey(u1, u2 string) string {
	a, b := CanonicalPair(u1, u2)
	return a + ":" + b
}

// Message 對話中的一則訊息.
type Message struct {
	ID               string
	ThreadID         string
	SenderID         string
	Content          string
	SentAt           time.Time
	EditedAt         *time.Time
	ChannelMessageID string // 外部通道訊息代號, 存在時唯一.
	IsDeleted        bool
	Kind             MessageKind
}

// ReadReceipt 已讀回執, 每組 (MessageID, UserID) 至多一筆.
type ReadReceipt struct {
	ID        string
	MessageID string
	UserID    string
	ReadAt    time.Time
}
