package sqlstore

import (
	"time"

	"simple-chat/internal/domain"
)

// 可為空的唯一欄位使用 *string, 讓多筆 NULL 不互相衝突.

type userModel struct {
	ID              string  `gorm:"primaryKey;type:varchar(36)"`
	ExternalSubject *string `gorm:"size:255;uniqueIndex:ux_users_subject"`
	Email           string  `gorm:"size:255;not null;uniqueIndex:ux_users_email"`
	DisplayName     string  `gorm:"size:100;not null;index:idx_users_display_name"`
	AvatarURL       string  `gorm:"size:500"`
	ChannelIdentity *string `gorm:"size:255;uniqueIndex:ux_users_channel_identity"`
	IsOnline        bool    `gorm:"not null;index:idx_users_online"`
	LastSeenAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (userModel) TableName() string { return "users" }

type threadModel struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)"`
	UserA           string     `gorm:"type:varchar(36);not null;index:idx_threads_user_a"`
	UserB           string     `gorm:"type:varchar(36);not null;index:idx_threads_user_b"`
	PairKey         string     `gorm:"size:80;not null;uniqueIndex:ux_threads_pair_key"`
	ChannelThreadID *string    `gorm:"size:255"`
	CreatedAt       time.Time  `gorm:"not null"`
	LastMessageAt   *time.Time
	IsActive        bool       `gorm:"not null"`

	Messages []messageModel `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE"`
}

func (threadModel) TableName() string { return "threads" }

type messageModel struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"`
	ThreadID         string    `gorm:"type:varchar(36);not null;index:idx_messages_thread_sent,priority:1"`
	SentAt           time.Time `gorm:"not null;index:idx_messages_thread_sent,priority:2"`
	SenderID         string    `gorm:"type:varchar(36);not null"`
	Content          string    `gorm:"type:text;not null"`
	EditedAt         *time.Time
	ChannelMessageID *string `gorm:"size:255;uniqueIndex:ux_messages_channel_message_id"`
	IsDeleted        bool    `gorm:"not null"`
	Kind             string  `gorm:"size:16;not null"`

	Receipts []receiptModel `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

func (messageModel) TableName() string { return "messages" }

type receiptModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	MessageID string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_read_receipts_message_user,priority:1"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_read_receipts_message_user,priority:2;index:idx_read_receipts_user"`
	ReadAt    time.Time `gorm:"not null"`
}

func (receiptModel) TableName() string { return "read_receipts" }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newUserModel(u *domain.User) *userModel {
	return &userModel{
		ID:              u.ID,
		ExternalSubject: nullable(u.ExternalSubject),
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		AvatarURL:       u.AvatarURL,
		ChannelIdentity: nullable(u.ChannelIdentity),
		IsOnline:        u.IsOnline,
		LastSeenAt:      u.LastSeenAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (m *userModel) toDomain() domain.User {
	return domain.User{
		ID:              m.ID,
		ExternalSubject: deref(m.ExternalSubject),
		Email:           m.Email,
		DisplayName:     m.DisplayName,
		AvatarURL:       m.AvatarURL,
		ChannelIdentity: deref(m.ChannelIdentity),
		IsOnline:        m.IsOnline,
		LastSeenAt:      m.LastSeenAt.UTC(),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func newThreadModel(t *domain.Thread) *threadModel {
	return &threadModel{
		ID:              t.ID,
		UserA:           t.UserA,
		UserB:           t.UserB,
		PairKey:         t.PairKey,
		ChannelThreadID: nullable(t.ChannelThreadID),
		CreatedAt:       t.CreatedAt,
		LastMessageAt:   t.LastMessageAt,
		IsActive:        t.IsActive,
	}
}

func (m *threadModel) toDomain() domain.Thread {
	t := domain.Thread{
		ID:              m.ID,
		UserA:           m.UserA,
		UserB:           m.UserB,
		PairKey:         m.PairKey,
		ChannelThreadID: deref(m.ChannelThreadID),
		CreatedAt:       m.CreatedAt.UTC(),
		IsActive:        m.IsActive,
	}
	if m.LastMessageAt != nil {
		last := m.LastMessageAt.UTC()
		t.LastMessageAt = &last
	}
	return t
}

func newMessageModel(m *domain.Message) *messageModel {
	return &messageModel{
		ID:               m.ID,
		ThreadID:         m.ThreadID,
		SentAt:           m.SentAt,
		SenderID:         m.SenderID,
		Content:          m.Content,
		EditedAt:         m.EditedAt,
		ChannelMessageID: nullable(m.ChannelMessageID),
		IsDeleted:        m.IsDeleted,
		Kind:             string(m.Kind),
	}
}

func (m *messageModel) toDomain() domain.Message {
	msg := domain.Message{
		ID:               m.ID,
		ThreadID:         m.ThreadID,
		SenderID:         m.SenderID,
		Content:          m.Content,
		SentAt:           m.SentAt.UTC(),
		ChannelMessageID: deref(m.ChannelMessageID),
		IsDeleted:        m.IsDeleted,
		Kind:             domain.MessageKind(m.Kind),
	}
	if m.EditedAt != nil {
		edited := m.EditedAt.UTC()
		msg.EditedAt = &edited
	}
	return msg
}

func (m *receiptModel) toDomain() domain.ReadReceipt {
	return domain.ReadReceipt{
		ID:        m.ID,
		MessageID: m.MessageID,
		UserID:    m.UserID,
		ReadAt:    m.ReadAt.UTC(),
	}
}
