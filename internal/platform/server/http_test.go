package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"simple-chat/internal/channel/memory"
	"simple-chat/internal/chat"
	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/driver"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/metrics"
	"simple-chat/internal/platform/middleware"
	"simple-chat/internal/storage/database/sqlstore"
	"simple-chat/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "server-test-secret-0123456789"

type apiFixture struct {
	router *gin.Engine
	dir    *user.Directory
}

func newAPI(t *testing.T, jwtEnabled bool) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.SetOutput(nil)
	ctx := context.Background()

	db, err := driver.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlstore.Migrate(ctx, db))
	repos := sqlstore.New(db)
	t.Cleanup(func() { _ = repos.Close(context.Background()) })

	cfg := &config.Config{
		App:      config.AppConfig{Name: "simple-chat", Version: "test"},
		Database: config.DatabaseConfig{Driver: config.DriverSQLite},
		Channel:  config.ChannelConfig{Provider: config.ChannelMemory},
		Security: config.SecurityConfig{Authentication: config.AuthenticationConfig{
			JWTEnabled: jwtEnabled,
			JWTSecret:  testSecret,
		}},
		Limits: config.LimitsConfig{
			Request: config.RequestLimitsConfig{MaxBodySize: 1 << 20, Timeout: 30},
		},
	}

	ch := memory.New()
	dir := user.NewDirectory(repos.Users, ch)
	svc := chat.NewService(repos, dir, ch)

	return &apiFixture{
		router: Router(Deps{
			Config:  cfg,
			Chat:    svc,
			Users:   dir,
			Store:   repos,
			Metrics: metrics.New(),
		}),
		dir: dir,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) createUser(t *testing.T, name string) user.Profile {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/users", user.CreateInput{
		Email:       strings.ToLower(name) + "@example.com",
		DisplayName: name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p user.Profile
	decode(t, w, &p)
	return p
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, w, &body)
	assert.False(t, body.Success)
	return body.Error.Code
}

func TestChatFlow(t *testing.T) {
	f := newAPI(t, false)
	alice, bob, carol := f.createUser(t, "Alice"), f.createUser(t, "Bob"), f.createUser(t, "Carol")

	w := f.do(t, http.MethodPost, "/api/chats/thread", map[string]string{
		"currentUserId": alice.ID, "otherUserId": bob.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var thread chat.ThreadSummary
	decode(t, w, &thread)
	assert.Equal(t, bob.ID, thread.OtherUser.ID)

	send := map[string]any{
		"userId":  alice.ID,
		"message": map[string]string{"chatThreadId": thread.ID, "content": "  hello bob  "},
	}
	w = f.do(t, http.MethodPost, "/api/chats/messages", send)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var msg chat.MessageRecord
	decode(t, w, &msg)
	assert.Equal(t, "hello bob", msg.Content)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, "/api/chats/thread/"+thread.ID+"/messages", w.Header().Get("Location"))

	unread := func(userID string) int64 {
		w := f.do(t, http.MethodGet, "/api/chats/thread/"+thread.ID+"/unread?userId="+userID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body struct {
			ThreadID    string `json:"threadId"`
			UserID      string `json:"userId"`
			UnreadCount int64  `json:"unreadCount"`
		}
		decode(t, w, &body)
		assert.Equal(t, thread.ID, body.ThreadID)
		return body.UnreadCount
	}
	assert.Equal(t, int64(1), unread(bob.ID))
	assert.Equal(t, int64(0), unread(alice.ID), "自己的訊息不算未讀")

	w = f.do(t, http.MethodPost, "/api/chats/thread/"+thread.ID+"/read", map[string]string{"userId": bob.ID})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, int64(0), unread(bob.ID))

	w = f.do(t, http.MethodGet, "/api/chats/user/"+bob.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var threads []chat.ThreadSummary
	decode(t, w, &threads)
	require.Len(t, threads, 1)
	assert.Equal(t, alice.ID, threads[0].OtherUser.ID)
	require.NotNil(t, threads[0].LastMessage)
	assert.Equal(t, "hello bob", threads[0].LastMessage.Content)

	w = f.do(t, http.MethodGet, "/api/chats/thread/"+thread.ID+"?currentUserId="+bob.ID+"&pageSize=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail chat.ThreadDetail
	decode(t, w, &detail)
	require.Len(t, detail.Messages, 1)
	assert.True(t, detail.Messages[0].IsRead, "已讀後 isRead 為 true")

	w = f.do(t, http.MethodGet, "/api/chats/thread/"+thread.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var messages []chat.MessageRecord
	decode(t, w, &messages)
	assert.Len(t, messages, 1)

	t.Run("錯誤對應", func(t *testing.T) {
		tests := []struct {
			name   string
			method string
			path   string
			body   any
			status int
			code   string
		}{
			{"空白內容", http.MethodPost, "/api/chats/messages",
				map[string]any{"userId": alice.ID, "message": map[string]string{"chatThreadId": thread.ID, "content": "   "}},
				http.StatusBadRequest, "INVALID_REQUEST"},
			{"非參與者送訊息", http.MethodPost, "/api/chats/messages",
				map[string]any{"userId": carol.ID, "message": map[string]string{"chatThreadId": thread.ID, "content": "hi"}},
				http.StatusForbidden, "FORBIDDEN"},
			{"非參與者查看對話", http.MethodGet, "/api/chats/thread/" + thread.ID + "?currentUserId=" + carol.ID,
				nil, http.StatusForbidden, "FORBIDDEN"},
			{"對話不存在", http.MethodGet, "/api/chats/thread/missing?currentUserId=" + alice.ID,
				nil, http.StatusNotFound, "NOT_FOUND"},
			{"分頁大小超過上限", http.MethodGet, "/api/chats/thread/" + thread.ID + "/messages?pageSize=101",
				nil, http.StatusBadRequest, "INVALID_REQUEST"},
			{"分頁參數非數字", http.MethodGet, "/api/chats/thread/" + thread.ID + "/messages?pageNumber=abc",
				nil, http.StatusBadRequest, "INVALID_REQUEST"},
			{"與自己建立對話", http.MethodPost, "/api/chats/thread",
				map[string]string{"currentUserId": alice.ID, "otherUserId": alice.ID},
				http.StatusBadRequest, "INVALID_REQUEST"},
			{"非參與者標記已讀", http.MethodPost, "/api/chats/thread/" + thread.ID + "/read",
				map[string]string{"userId": carol.ID},
				http.StatusForbidden, "FORBIDDEN"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := f.do(t, tt.method, tt.path, tt.body)
				require.Equal(t, tt.status, w.Code, w.Body.String())
				assert.Equal(t, tt.code, errorCode(t, w))
			})
		}
	})
}

func TestUserRoutes(t *testing.T) {
	f := newAPI(t, false)
	alice := f.createUser(t, "Alice")

	w := f.do(t, http.MethodPost, "/api/users", user.CreateInput{Email: "ALICE@example.com", DisplayName: "Other"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, w))

	w = f.do(t, http.MethodGet, "/api/users/"+alice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/users/email/Alice@Example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/users/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPatch, "/api/users/"+alice.ID+"/status", map[string]bool{"isOnline": true})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = f.do(t, http.MethodPatch, "/api/users/"+alice.ID+"/status", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code, "缺少 isOnline")

	w = f.do(t, http.MethodGet, "/api/users/online", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var online []user.Profile
	decode(t, w, &online)
	require.Len(t, online, 1)
	assert.Equal(t, alice.ID, online[0].ID)

	w = f.do(t, http.MethodGet, "/api/users/search?query=ali", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found []user.Profile
	decode(t, w, &found)
	assert.Len(t, found, 1)

	w = f.do(t, http.MethodGet, "/api/users/search", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/users/"+alice.ID, map[string]string{"displayName": "Alice Liddell"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated user.Profile
	decode(t, w, &updated)
	assert.Equal(t, "Alice Liddell", updated.DisplayName)

	w = f.do(t, http.MethodPost, "/api/users/get-or-create", map[string]string{
		"externalSubject": "sub-bob", "email": "bob@example.com", "displayName": "Bob",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var bob user.Profile
	decode(t, w, &bob)

	w = f.do(t, http.MethodGet, "/api/users/subject/sub-bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bySubject user.Profile
	decode(t, w, &bySubject)
	assert.Equal(t, bob.ID, bySubject.ID)
}

func TestAuthRoutes(t *testing.T) {
	f := newAPI(t, true)

	sign := func(sub, email, name string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Email: email,
			Name:  name,
		})
		raw, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)
		return "Bearer " + raw
	}
	aliceToken := sign("sub-alice", "alice@example.com", "Alice")
	bobToken := sign("sub-bob", "bob@example.com", "Bob")

	w := f.do(t, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/auth/me", nil, "Authorization", aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var alice user.Profile
	decode(t, w, &alice)
	assert.Equal(t, "alice@example.com", alice.Email)

	w = f.do(t, http.MethodGet, "/api/auth/me", nil, "Authorization", aliceToken)
	var again user.Profile
	decode(t, w, &again)
	assert.Equal(t, alice.ID, again.ID, "重複登入不應建立新使用者")

	w = f.do(t, http.MethodGet, "/api/auth/channel-token", nil, "Authorization", aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tok struct {
		Token         string    `json:"token"`
		ExpiresOn     time.Time `json:"expiresOn"`
		ChannelUserID string    `json:"channelUserId"`
		Endpoint      string    `json:"endpoint"`
	}
	decode(t, w, &tok)
	assert.NotEmpty(t, tok.Token)
	assert.True(t, strings.HasPrefix(tok.ChannelUserID, "8:acs:"))
	assert.Equal(t, "memory://local", tok.Endpoint)

	w = f.do(t, http.MethodGet, "/api/auth/acs-token", nil, "Authorization", aliceToken)
	require.Equal(t, http.StatusOK, w.Code)
	var tok2 struct {
		ChannelUserID string `json:"channelUserId"`
	}
	decode(t, w, &tok2)
	assert.Equal(t, tok.ChannelUserID, tok2.ChannelUserID, "通道身份只配發一次")

	w = f.do(t, http.MethodGet, "/api/auth/me", nil, "Authorization", bobToken)
	require.Equal(t, http.StatusOK, w.Code)
	var bob user.Profile
	decode(t, w, &bob)

	// token 決定呼叫者, 不能代表其他人
	w = f.do(t, http.MethodPost, "/api/chats/thread",
		map[string]string{"currentUserId": alice.ID, "otherUserId": bob.ID}, "Authorization", bobToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/chats/thread",
		map[string]string{"otherUserId": bob.ID}, "Authorization", aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPut, "/api/users/"+alice.ID, map[string]string{"displayName": "Mallory"}, "Authorization", bobToken)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPI(t, false)

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	f.do(t, http.MethodGet, "/api/users/online", nil)
	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="/api/users/online"`)

	w = f.do(t, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}
