package middleware

import (
	"strings"

	"simple-chat/internal/security/audit"

	"github.com/gin-gonic/gin"
)

// RequestMetadataMiddleware 提取請求元數據 (IP, User-Agent, Request ID) 供審計使用.
// 需放在 RequestIDMiddleware 之後.
func RequestMetadataMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := audit.Metadata{
			IPAddress: GetClientIP(c),
			UserAgent: c.Request.UserAgent(),
			RequestID: GetRequestID(c),
		}
		c.Request = c.Request.WithContext(audit.WithMetadata(c.Request.Context(), meta))
		c.Next()
	}
}

// GetClientIP 獲取客戶端真實 IP
func GetClientIP(c *gin.Context) string {
	// X-Forwarded-For 可能包含多個 IP，取第一個
	if forwarded := c.Request.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return c.ClientIP()
}
