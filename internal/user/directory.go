// Package user 管理使用者資料, 身份綁定與外部通道身份.
package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"simple-chat/internal/channel"
	"simple-chat/internal/constants"
	"simple-chat/internal/domain"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/sanitize"
	"simple-chat/internal/storage/database"

	"github.com/google/uuid"
)

// Profile 對外的使用者資料.
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

// ToProfile 轉換成對外資料.
func ToProfile(u *domain.User) Profile {
	p := Profile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		IsOnline:    u.IsOnline,
	}
	if !u.LastSeenAt.IsZero() {
		seen := u.LastSeenAt
		p.LastSeenAt = &seen
	}
	return p
}

// CreateInput 建立使用者的輸入.
type CreateInput struct {
	ExternalSubject string `json:"externalSubject"`
	Email           string `json:"email"`
	DisplayName     string `json:"displayName"`
	AvatarURL       string `json:"avatarUrl"`
}

// UpdateInput 更新使用者的輸入, nil 欄位不變更.
type UpdateInput struct {
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// Directory 使用者目錄.
type Directory struct {
	users    database.UserRepository
	channel  channel.Adapter
	now      func() time.Time
	maxFound int
}

// Option 目錄選項.
type Option func(*Directory)

// WithClock 替換時鐘 (測試用).
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// WithSearchLimit 設定搜尋結果上限.
func WithSearchLimit(n int) Option {
	return func(d *Directory) {
		if n > 0 {
			d.maxFound = n
		}
	}
}

// NewDirectory 建立使用者目錄, ch 為 nil 時無法配發通道身份.
func NewDirectory(users database.UserRepository, ch channel.Adapter, opts ...Option) *Directory {
	d := &Directory{
		users:    users,
		channel:  ch,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		maxFound: constants.MaxSearchResults,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) lookup(user *domain.User, err error, format string, args ...any) (*domain.User, error) {
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.NotFound(format, args...)
	}
	if err != nil {
		return nil, domain.Internal(err, "find user")
	}
	return user, nil
}

// GetByID 依 ID 查詢.
func (d *Directory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Invalid("user id is required")
	}
	u, err := d.users.GetByID(ctx, id)
	return d.lookup(u, err, "user %s not found", id)
}

// GetByEmail 依 email 查詢, 不區分大小寫.
func (d *Directory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, domain.Invalid("email is required")
	}
	u, err := d.users.GetByEmail(ctx, email)
	return d.lookup(u, err, "user with email %s not found", email)
}

// GetByExternalSubject 依身份提供者 subject 查詢.
func (d *Directory) GetByExternalSubject(ctx context.Context, subject string) (*domain.User, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, domain.Invalid("external subject is required")
	}
	u, err := d.users.GetBySubject(ctx, subject)
	return d.lookup(u, err, "user with subject %s not found", subject)
}

// GetByChannelIdentity 依外部通道身份查詢.
func (d *Directory) GetByChannelIdentity(ctx context.Context, handle string) (*domain.User, error) {
	if handle == "" {
		return nil, domain.Invalid("channel identity is required")
	}
	u, err := d.users.GetByChannelIdentity(ctx, handle)
	return d.lookup(u, err, "user with channel identity %s not found", handle)
}

// Create 建立使用者, email 或 subject 重複時回傳 Conflict.
func (d *Directory) Create(ctx context.Context, in CreateInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := sanitize.Line(in.DisplayName)
	if len(name) > constants.MaxDisplayNameLength {
		return nil, domain.Invalid("display name exceeds %d characters", constants.MaxDisplayNameLength)
	}

	now := d.now()
	u := &domain.User{
		ID:              uuid.NewString(),
		ExternalSubject: strings.TrimSpace(in.ExternalSubject),
		Email:           email,
		DisplayName:     name,
		AvatarURL:       strings.TrimSpace(in.AvatarURL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.users.Create(ctx, u); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, d.duplicateUser(ctx, u)
		}
		return nil, domain.Internal(err, "create user")
	}

	logger.Info(ctx, "使用者已建立", logger.WithUserID(u.ID), logger.WithAction("user.create"))
	return u, nil
}

// duplicateUser 指出衝突的唯一鍵; email 優先檢查.
func (d *Directory) duplicateUser(ctx context.Context, u *domain.User) error {
	if _, err := d.users.GetByEmail(ctx, u.Email); err == nil {
		return domain.Conflict("user with email %s already exists", u.Email)
	}
	if u.ExternalSubject != "" {
		if _, err := d.users.GetBySubject(ctx, u.ExternalSubject); err == nil {
			return domain.Conflict("external subject is already linked to another user")
		}
	}
	return domain.Conflict("user already exists")
}

// Update 更新顯示名稱與頭像; 空白名稱視為不變更.
func (d *Directory) Update(ctx context.Context, id string, in UpdateInput) (*domain.User, error) {
	u, err := d.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	name := u.DisplayName
	if in.DisplayName != nil {
		if v := sanitize.Line(*in.DisplayName); v != "" {
			if len(v) > constants.MaxDisplayNameLength {
				return nil, domain.Invalid("display name exceeds %d characters", constants.MaxDisplayNameLength)
			}
			name = v
		}
	}
	avatar := u.AvatarURL
	if in.AvatarURL != nil {
		avatar = strings.TrimSpace(*in.AvatarURL)
	}

	now := d.now()
	if err := d.users.UpdateProfile(ctx, u.ID, name, avatar, now); err != nil {
		return nil, d.writeErr(err, u.ID)
	}
	u.DisplayName, u.AvatarURL, u.UpdatedAt = name, avatar, now
	return u, nil
}

// UpdatePresence 更新在線狀態, 上線時刷新 LastSeenAt.
func (d *Directory) UpdatePresence(ctx context.Context, id string, online bool) error {
	if strings.TrimSpace(id) == "" {
		return domain.Invalid("user id is required")
	}
	if err := d.users.SetPresence(ctx, id, online, d.now()); err != nil {
		return d.writeErr(err, id)
	}
	return nil
}

// Search 依顯示名稱或 email 搜尋.
func (d *Directory) Search(ctx context.Context, query string) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.Invalid("search query is required")
	}
	users, err := d.users.Search(ctx, query, d.maxFound)
	if err != nil {
		return nil, domain.Internal(err, "search users")
	}
	return users, nil
}

// ListOnline 列出在線使用者.
func (d *Directory) ListOnline(ctx context.Context) ([]domain.User, error) {
	users, err := d.users.ListOnline(ctx)
	if err != nil {
		return nil, domain.Internal(err, "list online users")
	}
	return users, nil
}

// GetOrCreateByExternalIdentity 依身份提供者資料取得或建立使用者.
//
// 順序: subject 相符 → email 相符且尚未綁定 subject 時綁定 → 新建.
// 並發建立時輸的一方以 subject, 再以 email 重新查詢.
func (d *Directory) GetOrCreateByExternalIdentity(ctx context.Context, subject, email, displayName string) (*domain.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.Invalid("external subject is required")
	}

	u, err := d.users.GetBySubject(ctx, subject)
	switch {
	case err == nil:
		return u, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, domain.Internal(err, "find user by subject")
	}

	email = normalizeEmail(email)
	if email != "" {
		u, err = d.users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			return d.linkSubject(ctx, u, subject)
		case !errors.Is(err, database.ErrNotFound):
			return nil, domain.Internal(err, "find user by email")
		}
	}

	if email == "" {
		email = subject + "@" + constants.UnknownEmailDomain
	}
	name := sanitize.Line(displayName)
	if name == "" {
		name = constants.UnknownDisplayName
	}

	now := d.now()
	u = &domain.User{
		ID:              uuid.NewString(),
		ExternalSubject: subject,
		Email:           email,
		DisplayName:     name,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = d.users.Create(ctx, u)
	if err == nil {
		logger.Info(ctx, "已自動建立使用者", logger.WithUserID(u.ID), logger.WithAction("user.provision"))
		return u, nil
	}
	if !errors.Is(err, database.ErrDuplicate) {
		return nil, domain.Internal(err, "create user")
	}

	// 並發建立, 讀取勝出的一方.
	if u, err = d.users.GetBySubject(ctx, subject); err == nil {
		return u, nil
	}
	if u, err = d.users.GetByEmail(ctx, email); err == nil {
		return d.linkSubject(ctx, u, subject)
	}
	return nil, domain.Internal(err, "re-read user after duplicate")
}

func (d *Directory) linkSubject(ctx context.Context, u *domain.User, subject string) (*domain.User, error) {
	if u.ExternalSubject != "" {
		if u.ExternalSubject == subject {
			return u, nil
		}
		return nil, domain.Conflict("email %s is bound to another identity", u.Email)
	}

	now := d.now()
	err := d.users.LinkSubject(ctx, u.ID, subject, now)
	switch {
	case err == nil:
		u.ExternalSubject, u.UpdatedAt = subject, now
		logger.Info(ctx, "已綁定外部身份", logger.WithUserID(u.ID), logger.WithAction("user.link_subject"))
		return u, nil
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrDuplicate):
		// 其他請求剛完成綁定.
		if linked, gerr := d.users.GetBySubject(ctx, subject); gerr == nil {
			return linked, nil
		}
		return nil, domain.Conflict("email %s is bound to another identity", u.Email)
	default:
		return nil, domain.Internal(err, "link subject")
	}
}

// EnsureChannelIdentity 確保使用者擁有外部通道身份, 必要時配發並寫回.
func (d *Directory) EnsureChannelIdentity(ctx context.Context, u *domain.User) (string, error) {
	if u.ChannelIdentity != "" {
		return u.ChannelIdentity, nil
	}
	if d.channel == nil {
		return "", domain.Precondition("channel is not configured")
	}

	handle, err := d.channel.CreateIdentity(ctx)
	if err != nil {
		return "", domain.External(err, "failed to create channel identity")
	}
	now := d.now()
	err = d.users.SetChannelIdentity(ctx, u.ID, handle, now)
	if errors.Is(err, database.ErrNotFound) {
		// 並發請求已寫入身份, 以儲存的為準.
		stored, gerr := d.users.GetByID(ctx, u.ID)
		if gerr != nil {
			return "", d.writeErr(gerr, u.ID)
		}
		if stored.ChannelIdentity != "" {
			logger.Warning(ctx, "通道身份已由並發請求配發, 捨棄新身份",
				logger.WithUserID(u.ID),
				logger.WithDetails(map[string]any{"discarded_identity": handle}))
			u.ChannelIdentity = stored.ChannelIdentity
			return stored.ChannelIdentity, nil
		}
	}
	if err != nil {
		return "", d.writeErr(err, u.ID)
	}
	u.ChannelIdentity, u.UpdatedAt = handle, now

	logger.Info(ctx, "已配發通道身份",
		logger.WithUserID(u.ID),
		logger.WithAction("user.channel_identity"),
		logger.WithDetails(map[string]any{"channel_identity": handle}))
	return handle, nil
}

// IssueChannelToken 為使用者簽發前端連線用的通道權杖.
func (d *Directory) IssueChannelToken(ctx context.Context, u *domain.User) (channel.AccessToken, error) {
	if d.channel == nil {
		return channel.AccessToken{}, domain.Precondition("channel is not configured")
	}
	handle, err := d.EnsureChannelIdentity(ctx, u)
	if err != nil {
		return channel.AccessToken{}, err
	}
	tok, err := d.channel.IssueAccessToken(ctx, handle, channel.DefaultScopes)
	if err != nil {
		return channel.AccessToken{}, domain.External(err, "failed to issue channel token")
	}
	return tok, nil
}

// Endpoint 通道端點, 未設定通道時為空字串.
func (d *Directory) Endpoint() string {
	if d.channel == nil {
		return ""
	}
	return d.channel.Endpoint()
}

func (d *Directory) writeErr(err error, id string) error {
	if errors.Is(err, database.ErrNotFound) {
		return domain.NotFound("user %s not found", id)
	}
	if errors.Is(err, database.ErrDuplicate) {
		return domain.Conflict("user %s conflicts with an existing user", id)
	}
	return domain.Internal(err, "update user")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return domain.Invalid("email is required")
	}
	if len(email) > constants.MaxEmailLength {
		return domain.Invalid("email exceeds %d characters", constants.MaxEmailLength)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Invalid("invalid email: %s", email)
	}
	return nil
}

// DisplayName 顯示名稱, 空白時使用預設值.
func DisplayName(u *domain.User) string {
	if u == nil || strings.TrimSpace(u.DisplayName) == "" {
		return constants.UnknownDisplayName
	}
	return u.DisplayName
}
