package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/metrics"

	"github.com/gin-gonic/gin"
)

// 中間件自身產生的錯誤代碼.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeRateLimited     = "RATE_LIMITED"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// abortWithError 以統一的錯誤格式中止請求.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
		"request_id": GetRequestID(c),
	})
}

// SecurityHeaders 添加安全標頭
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// CORS 只允許設定中的來源.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] || allowed["*"] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestTimeout 為請求 context 設定截止時間.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AccessLog 以 GCP 格式記錄每個請求, 並回報 HTTP 指標.
func AccessLog(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		m.ObserveHTTP(c.Request.Method, c.FullPath(), status, elapsed)

		req := &logger.HTTPRequest{
			RequestMethod: c.Request.Method,
			RequestURL:    c.Request.URL.Path,
			RequestSize:   c.Request.ContentLength,
			Status:        status,
			ResponseSize:  int64(c.Writer.Size()),
			UserAgent:     c.Request.UserAgent(),
			RemoteIP:      GetClientIP(c),
			Latency:       elapsed.String(),
			Protocol:      c.Request.Proto,
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "request failed", logger.WithHTTPRequest(req))
		case status >= http.StatusBadRequest:
			logger.Warning(ctx, "request rejected", logger.WithHTTPRequest(req))
		default:
			logger.Info(ctx, "request", logger.WithHTTPRequest(req))
		}
	}
}

// Recovery 捕捉 panic 並回傳 500.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Critical(c.Request.Context(), "panic recovered",
			logger.WithDetails(map[string]any{
				"panic": fmt.Sprint(recovered),
				"path":  c.Request.URL.Path,
			}))
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	})
}
