package httputil

import (
	"net/http"

	"simple-chat/internal/domain"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// StatusFor 領域錯誤分類對應的 HTTP 狀態碼.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExternalDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError 將錯誤轉成安全的回應 (不洩露內部信息), 真實錯誤只寫入日誌.
func WriteError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	opts := []logger.LogOption{
		logger.WithError(err),
		logger.WithDetails(map[string]any{
			"request_id": middleware.GetRequestID(c),
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"status":     status,
		}),
	}
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		logger.Error(ctx, "API Error", opts...)
	} else {
		logger.Debug(ctx, "API rejected", opts...)
	}

	abort(c, status, kind.Code(), domain.PublicMessage(err))
}

// BadRequest 錯誤的請求
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, ErrorCodeInvalidParameter, message)
}

// Unauthorized 未授權
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "未授權訪問"
	}
	abort(c, http.StatusUnauthorized, ErrorCodeUnauthorized, message)
}

// Forbidden 禁止訪問
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "禁止訪問"
	}
	abort(c, http.StatusForbidden, ErrorCodeForbidden, message)
}

// ErrorBody 錯誤回應格式.
type ErrorBody struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail 錯誤代碼與訊息.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Success:   false,
		Error:     ErrorDetail{Code: code, Message: message},
		RequestID: middleware.GetRequestID(c),
	})
}
