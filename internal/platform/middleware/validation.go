package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"simple-chat/internal/constants"

	"github.com/gin-gonic/gin"
)

// ValidateID 驗證路徑或請求中的識別碼.
func ValidateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s 不能為空", field)
	}
	if len(id) > constants.MaxUserIDLength {
		return fmt.Errorf("%s 格式錯誤", field)
	}
	// 防止 NULL 字符注入和查詢運算子
	if strings.ContainsAny(id, "\x00${}[]") {
		return fmt.Errorf("%s 包含非法字符", field)
	}
	return nil
}

// ValidateParams 驗證指定的路徑參數, 失敗時回 400.
func ValidateParams(names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range names {
			if err := ValidateID(name, c.Param(name)); err != nil {
				abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
				return
			}
		}
		c.Next()
	}
}

// RequestSizeLimiter 限制請求體大小的中間件
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxSize <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxSize {
			abortWithError(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("請求體過大，最大允許 %d 字節", maxSize))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
