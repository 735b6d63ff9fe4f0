package mongostore

import (
	"time"

	"simple-chat/internal/domain"
)

// 集合名稱.
const (
	usersCollection    = "users"
	threadsCollection  = "threads"
	messagesCollection = "messages"
)

type userDocument struct {
	ID              string    `bson:"_id"`
	ExternalSubject string    `bson:"external_subject,omitempty"`
	Email           string    `bson:"email"`
	DisplayName     string    `bson:"display_name"`
	AvatarURL       string    `bson:"avatar_url,omitempty"`
	ChannelIdentity string    `bson:"channel_identity,omitempty"`
	IsOnline        bool      `bson:"is_online"`
	LastSeenAt      time.Time `bson:"last_seen_at"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func newUserDocument(u *domain.User) userDocument {
	return userDocument{
		ID:              u.ID,
		ExternalSubject: u.ExternalSubject,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		AvatarURL:       u.AvatarURL,
		ChannelIdentity: u.ChannelIdentity,
		IsOnline:        u.IsOnline,
		LastSeenAt:      u.LastSeenAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:              d.ID,
		ExternalSubject: d.ExternalSubject,
		Email:           d.Email,
		DisplayName:     d.DisplayName,
		AvatarURL:       d.AvatarURL,
		ChannelIdentity: d.ChannelIdentity,
		IsOnline:        d.IsOnline,
		LastSeenAt:      d.LastSeenAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// threadDocument 的 activity_at 為 coalesce(last_message_at, created_at), 用於排序.
type threadDocument struct {
	ID              string     `bson:"_id"`
	UserA           string     `bson:"user_a"`
	UserB           string     `bson:"user_b"`
	PairKey         string     `bson:"pair_key"`
	ChannelThreadID string     `bson:"channel_thread_id,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	LastMessageAt   *time.Time `bson:"last_message_at,omitempty"`
	ActivityAt      time.Time  `bson:"activity_at"`
	IsActive        bool       `bson:"is_active"`
}

func newThreadDocument(t *domain.Thread) threadDocument {
	return threadDocument{
		ID:              t.ID,
		UserA:           t.UserA,
		UserB:           t.UserB,
		PairKey:         t.PairKey,
		ChannelThreadID: t.ChannelThreadID,
		CreatedAt:       t.CreatedAt,
		LastMessageAt:   t.LastMessageAt,
		ActivityAt:      t.ActivityAt(),
		IsActive:        t.IsActive,
	}
}

func (d *threadDocument) toDomain() *domain.Thread {
	return &domain.Thread{
		ID:              d.ID,
		UserA:           d.UserA,
		UserB:           d.UserB,
		PairKey:         d.PairKey,
		ChannelThreadID: d.ChannelThreadID,
		CreatedAt:       d.CreatedAt,
		LastMessageAt:   d.LastMessageAt,
		IsActive:        d.IsActive,
	}
}

// readByDocument 內嵌於訊息文件的已讀記錄.
type readByDocument struct {
	ID     string    `bson:"id"`
	UserID string    `bson:"user_id"`
	ReadAt time.Time `bson:"read_at"`
}

type messageDocument struct {
	ID               string           `bson:"_id"`
	ThreadID         string           `bson:"thread_id"`
	SenderID         string           `bson:"sender_id"`
	Content          string           `bson:"content"`
	SentAt           time.Time        `bson:"sent_at"`
	EditedAt         *time.Time       `bson:"edited_at,omitempty"`
	ChannelMessageID string           `bson:"channel_message_id,omitempty"`
	IsDeleted        bool             `bson:"is_deleted"`
	Kind             string           `bson:"kind"`
	ReadBy           []readByDocument `bson:"read_by"`
}

func newMessageDocument(m *domain.Message) messageDocument {
	return messageDocument{
		ID:               m.ID,
		ThreadID:         m.ThreadID,
		SenderID:         m.SenderID,
		Content:          m.Content,
		SentAt:           m.SentAt,
		EditedAt:         m.EditedAt,
		ChannelMessageID: m.ChannelMessageID,
		IsDeleted:        m.IsDeleted,
		Kind:             string(m.Kind),
		ReadBy:           []readByDocument{},
	}
}

func (d *messageDocument) toDomain() *domain.Message {
	return &domain.Message{
		ID:               d.ID,
		ThreadID:         d.ThreadID,
		SenderID:         d.SenderID,
		Content:          d.Content,
		SentAt:           d.SentAt,
		EditedAt:         d.EditedAt,
		ChannelMessageID: d.ChannelMessageID,
		IsDeleted:        d.IsDeleted,
		Kind:             domain.MessageKind(d.Kind),
	}
}

func (d *messageDocument) receipts() []domain.ReadReceipt {
	out := make([]domain.ReadReceipt, 0, len(d.ReadBy))
	for _, r := range d.ReadBy {
		out = append(out, domain.ReadReceipt{
			ID:        r.ID,
			MessageID: d.ID,
			UserID:    r.UserID,
			ReadAt:    r.ReadAt,
		})
	}
	return out
}
