package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/security/audit"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(nil)
}

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func principalEcho(c *gin.Context) {
	p, ok := GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"subject": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": p.Subject, "email": p.Email, "name": p.Name})
}

func TestJWTMiddleware(t *testing.T) {
	var auditBuf bytes.Buffer
	auditor := audit.NewAuditService(true, &auditBuf)
	mw := NewJWTMiddleware(config.AuthenticationConfig{
		JWTEnabled: true,
		JWTSecret:  testSecret,
		Issuer:     "https://login.example.com",
		Audience:   "simple-chat",
	}, auditor)

	r := gin.New()
	r.Use(RequestIDMiddleware(), mw.GinMiddleware())
	r.GET("/me", principalEcho)

	valid := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-1",
			Issuer:    "https://login.example.com",
			Audience:  jwt.ClaimStrings{"simple-chat"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OID:               "oid-1",
		PreferredUsername: "alice@example.com",
		Name:              "Alice",
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"有效 token", "Bearer " + signToken(t, valid), http.StatusOK},
		{"缺少 header", "", http.StatusUnauthorized},
		{"格式錯誤", "Token abc", http.StatusUnauthorized},
		{"過期", "Bearer " + signToken(t, expired), http.StatusUnauthorized},
		{"audience 不符", "Bearer " + signToken(t, wrongAudience), http.StatusUnauthorized},
		{"簽章錯誤", "Bearer " + signToken(t, valid) + "x", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)

			if tt.status == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "oid-1", body["subject"], "oid 應優先於 sub")
				assert.Equal(t, "alice@example.com", body["email"], "email 缺少時使用 preferred_username")
				assert.Equal(t, "Alice", body["name"])
				return
			}

			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Code string `json:"code"`
				} `json:"error"`
				RequestID string `json:"request_id"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, CodeUnauthorized, body.Error.Code)
			assert.NotEmpty(t, body.RequestID)
		})
	}

	assert.Contains(t, auditBuf.String(), audit.EventAuthenticationFail)
}

func TestJWTMiddleware_Disabled(t *testing.T) {
	mw := NewJWTMiddleware(config.AuthenticationConfig{}, nil)
	r := gin.New()
	r.Use(mw.GinMiddleware())
	r.GET("/me", principalEcho)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, w.Code, "未啟用時應直接放行")
}

func TestJWTMiddleware_RejectsOtherAlgorithms(t *testing.T) {
	mw := NewJWTMiddleware(config.AuthenticationConfig{JWTEnabled: true, JWTSecret: testSecret}, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
	})
	raw, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = mw.Parse(raw)
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	var auditBuf bytes.Buffer
	p := NewPerEndpointRateLimiter(config.RateLimitingConfig{
		Enabled:          true,
		DefaultPerMinute: 60,
		MessagesPerMin:   1,
		Burst:            2,
		CleanupInterval:  1,
	}, audit.NewAuditService(true, &auditBuf))
	defer p.Stop()
	p.Classify(func(c *gin.Context) string {
		if c.Request.Method == http.MethodPost {
			return ClassSend
		}
		return ClassDefault
	})

	r := gin.New()
	r.Use(p.Middleware())
	r.POST("/send", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/read", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send("10.0.0.1"))
	assert.Equal(t, http.StatusCreated, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"), "超過 burst 後應被限制")
	assert.Equal(t, http.StatusCreated, send("10.0.0.2"), "不同客戶端各自計算")

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "default 類別不受 send 額度影響")

	assert.Contains(t, auditBuf.String(), audit.EventRateLimitExceeded)
}

func TestRateLimiter_CleanupDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	now = now.Add(visitorIdleTTL + time.Second)
	rl.cleanup()

	rl.mu.Lock()
	_, exists := rl.visitors["a"]
	rl.mu.Unlock()
	assert.False(t, exists)
}

func TestRequestIDAndMetadata(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(), RequestMetadataMiddleware())
	r.GET("/x", func(c *gin.Context) {
		meta, ok := audit.MetadataFrom(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{
			"ip":      meta.IPAddress,
			"request": meta.RequestID,
			"trace":   logger.RawTraceID(c.Request.Context()),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", body["request"])
	assert.Equal(t, "req-123", body["trace"])
	assert.Equal(t, "203.0.113.5", body["ip"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader), "未提供時應自動生成")
}

func TestValidateParams(t *testing.T) {
	r := gin.New()
	r.GET("/users/:id", ValidateParams("id"), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path   string
		status int
	}{
		{"/users/abc-123", http.StatusOK},
		{"/users/%24where", http.StatusBadRequest},
		{"/users/" + strings.Repeat("a", 101), http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.status, w.Code, tt.path)
	}
}

func TestRequestSizeLimiter(t *testing.T) {
	r := gin.New()
	r.POST("/x", RequestSizeLimiter(8), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("short")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
