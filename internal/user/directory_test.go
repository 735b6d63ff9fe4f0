package user

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"simple-chat/internal/channel"
	"simple-chat/internal/channel/memory"
	"simple-chat/internal/domain"
	"simple-chat/internal/platform/driver"
	"simple-chat/internal/storage/database"
	"simple-chat/internal/storage/database/sqlstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T) (*Directory, *memory.Channel, *database.Repositories) {
	t.Helper()
	ctx := context.Background()

	db, err := driver.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlstore.Migrate(ctx, db))

	repos := sqlstore.New(db)
	t.Cleanup(func() { _ = repos.Close(context.Background()) })

	ch := memory.New()
	return NewDirectory(repos.Users, ch), ch, repos
}

func TestDirectory_Create(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory(t)

	u, err := dir.Create(ctx, CreateInput{Email: " Alice@Example.com ", DisplayName: "<b>Alice</b>"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Alice", u.DisplayName)

	t.Run("重複 email", func(t *testing.T) {
		_, err := dir.Create(ctx, CreateInput{Email: "alice@example.com", DisplayName: "Other"})
		assert.True(t, errors.Is(err, domain.ErrConflict), "期望 Conflict, 得到 %v", err)
	})

	t.Run("重複 external subject", func(t *testing.T) {
		_, err := dir.Create(ctx, CreateInput{Email: "sub-owner@example.com", ExternalSubject: "sub-1"})
		require.NoError(t, err)

		_, err = dir.Create(ctx, CreateInput{Email: "someone-else@example.com", ExternalSubject: "sub-1"})
		require.True(t, errors.Is(err, domain.ErrConflict), "期望 Conflict, 得到 %v", err)
		assert.Equal(t, "external subject is already linked to another user", domain.PublicMessage(err))
		assert.NotContains(t, domain.PublicMessage(err), "email")
	})

	t.Run("缺少 email", func(t *testing.T) {
		_, err := dir.Create(ctx, CreateInput{DisplayName: "Nobody"})
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})

	t.Run("email 格式錯誤", func(t *testing.T) {
		_, err := dir.Create(ctx, CreateInput{Email: "not-an-email"})
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})

	t.Run("email 查詢不區分大小寫", func(t *testing.T) {
		got, err := dir.GetByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})
}

func TestDirectory_GetByID_NotFound(t *testing.T) {
	dir, _, _ := newTestDirectory(t)

	_, err := dir.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = dir.GetByID(context.Background(), " ")
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestDirectory_Update(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory(t)

	u, err := dir.Create(ctx, CreateInput{Email: "bob@example.com", DisplayName: "Bob", AvatarURL: "https://a/1.png"})
	require.NoError(t, err)

	blank := "   "
	updated, err := dir.Update(ctx, u.ID, UpdateInput{DisplayName: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Bob", updated.DisplayName, "空白名稱不應變更")
	assert.Equal(t, "https://a/1.png", updated.AvatarURL, "未提供頭像不應變更")

	name, avatar := "Robert", ""
	updated, err = dir.Update(ctx, u.ID, UpdateInput{DisplayName: &name, AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.DisplayName)
	assert.Empty(t, updated.AvatarURL)

	stored, err := dir.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Robert", stored.DisplayName)

	_, err = dir.Update(ctx, "missing", UpdateInput{DisplayName: &name})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDirectory_UpdatePresence(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory(t)

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	dir.now = func() time.Time { return now }

	u, err := dir.Create(ctx, CreateInput{Email: "carol@example.com", DisplayName: "Carol"})
	require.NoError(t, err)

	require.NoError(t, dir.UpdatePresence(ctx, u.ID, true))
	online, err := dir.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.True(t, online[0].LastSeenAt.Equal(now))

	now = now.Add(time.Hour)
	require.NoError(t, dir.UpdatePresence(ctx, u.ID, false))
	stored, err := dir.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsOnline)
	assert.True(t, stored.LastSeenAt.Equal(now.Add(-time.Hour)), "下線不應變更 LastSeenAt")

	online, err = dir.ListOnline(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)

	assert.True(t, errors.Is(dir.UpdatePresence(ctx, "missing", true), domain.ErrNotFound))
}

func TestDirectory_Search(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory(t)

	for _, in := range []CreateInput{
		{Email: "zed@example.com", DisplayName: "Zed"},
		{Email: "amy@example.com", DisplayName: "Amy 50%"},
		{Email: "dan@other.org", DisplayName: "Dan"},
	} {
		_, err := dir.Create(ctx, in)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"email 子字串", "EXAMPLE", []string{"Amy 50%", "Zed"}},
		{"名稱子字串", "da", []string{"Dan"}},
		{"萬用字元被轉義", "%", []string{"Amy 50%"}},
		{"正則字元被轉義", ".*", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := dir.Search(ctx, tt.query)
			require.NoError(t, err)
			var names []string
			for _, u := range users {
				names = append(names, u.DisplayName)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	_, err := dir.Search(ctx, "  ")
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestDirectory_SearchLimit(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory(t)
	WithSearchLimit(2)(dir)

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		_, err := dir.Create(ctx, CreateInput{Email: email, DisplayName: email})
		require.NoError(t, err)
	}
	users, err := dir.Search(ctx, "x.com")
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestDirectory_GetOrCreateByExternalIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("新使用者使用預設值", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		u, err := dir.GetOrCreateByExternalIdentity(ctx, "sub-1", "", "")
		require.NoError(t, err)
		assert.Equal(t, "sub-1", u.ExternalSubject)
		assert.Equal(t, "sub-1@unknown.com", u.Email)
		assert.Equal(t, "Unknown User", u.DisplayName)

		again, err := dir.GetOrCreateByExternalIdentity(ctx, "sub-1", "", "")
		require.NoError(t, err)
		assert.Equal(t, u.ID, again.ID)
	})

	t.Run("以 email 綁定既有使用者", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		existing, err := dir.Create(ctx, CreateInput{Email: "eve@example.com", DisplayName: "Eve"})
		require.NoError(t, err)

		u, err := dir.GetOrCreateByExternalIdentity(ctx, "sub-eve", "Eve@Example.com", "Eve E.")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, u.ID)
		assert.Equal(t, "sub-eve", u.ExternalSubject)

		bySubject, err := dir.GetByExternalSubject(ctx, "sub-eve")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, bySubject.ID)
	})

	t.Run("email 已綁定其他身份", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		_, err := dir.GetOrCreateByExternalIdentity(ctx, "sub-a", "shared@example.com", "A")
		require.NoError(t, err)

		_, err = dir.GetOrCreateByExternalIdentity(ctx, "sub-b", "shared@example.com", "B")
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("並發建立只產生一位使用者", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)

		const workers = 8
		ids := make([]string, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u, err := dir.GetOrCreateByExternalIdentity(ctx, "sub-race", "race@example.com", "Racer")
				errs[i] = err
				if u != nil {
					ids[i] = u.ID
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
	})

	t.Run("缺少 subject", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		_, err := dir.GetOrCreateByExternalIdentity(ctx, "", "x@example.com", "X")
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	})
}

func TestDirectory_EnsureChannelIdentity(t *testing.T) {
	ctx := context.Background()
	dir, ch, _ := newTestDirectory(t)

	u, err := dir.Create(ctx, CreateInput{Email: "frank@example.com", DisplayName: "Frank"})
	require.NoError(t, err)

	handle, err := dir.EnsureChannelIdentity(ctx, u)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, handle, u.ChannelIdentity)

	stored, err := dir.GetByChannelIdentity(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)

	// 已有身份時不再呼叫通道.
	again, err := dir.EnsureChannelIdentity(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, handle, again)
	assert.Equal(t, 1, ch.Calls(memory.OpCreateIdentity))

	t.Run("通道失敗", func(t *testing.T) {
		other, err := dir.Create(ctx, CreateInput{Email: "gina@example.com", DisplayName: "Gina"})
		require.NoError(t, err)

		ch.FailNext(memory.OpCreateIdentity, 1, channel.ErrUnavailable)
		_, err = dir.EnsureChannelIdentity(ctx, other)
		assert.True(t, errors.Is(err, domain.ErrExternalDependency))
		assert.Empty(t, other.ChannelIdentity)
	})
}

func TestDirectory_IssueChannelToken(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory(t)

	u, err := dir.GetOrCreateByExternalIdentity(ctx, "sub-token", "token@example.com", "Token")
	require.NoError(t, err)

	tok, err := dir.IssueChannelToken(ctx, u)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
	assert.True(t, tok.ExpiresOn.After(time.Now()))
	assert.NotEmpty(t, u.ChannelIdentity)
	assert.NotEmpty(t, dir.Endpoint())

	noChannel := NewDirectory(nil, nil)
	_, err = noChannel.IssueChannelToken(ctx, u)
	assert.True(t, errors.Is(err, domain.ErrPreconditionFailed))
}

func TestToProfile(t *testing.T) {
	u := &domain.User{ID: "u1", Email: "a@b.c", DisplayName: "A"}
	p := ToProfile(u)
	assert.Nil(t, p.LastSeenAt)

	u.LastSeenAt = time.Now()
	p = ToProfile(u)
	require.NotNil(t, p.LastSeenAt)

	assert.Equal(t, "Unknown User", DisplayName(&domain.User{}))
}
