package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"simple-chat/internal/domain"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(nil)

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"not found", domain.NotFound("thread not found"), http.StatusNotFound, ErrorCodeNotFound, "thread not found"},
		{"precondition", domain.Precondition("no channel identity"), http.StatusPreconditionFailed, ErrorCodePrecondition, "no channel identity"},
		{"forbidden", domain.Forbidden("not a participant"), http.StatusForbidden, ErrorCodeForbidden, "not a participant"},
		{"invalid", domain.Invalid("content is required"), http.StatusBadRequest, ErrorCodeInvalidParameter, "content is required"},
		{"conflict", domain.Conflict("email already registered"), http.StatusConflict, ErrorCodeConflict, "email already registered"},
		{"external", domain.External(errors.New("dial tcp: timeout"), "channel unavailable"), http.StatusBadGateway, ErrorCodeExternal, "channel unavailable"},
		{"internal", domain.Internal(errors.New("mongo: write failed"), "message delivered but not recorded"), http.StatusInternalServerError, ErrorCodeInternal, "message delivered but not recorded"},
		{"plain error", errors.New("pq: connection refused"), http.StatusInternalServerError, ErrorCodeInternal, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(middleware.RequestIDMiddleware())
			r.GET("/x", func(c *gin.Context) { WriteError(c, tt.err) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			require.Equal(t, tt.status, w.Code)

			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.message, body.Error.Message, "回應不應包含底層錯誤")
			assert.NotEmpty(t, body.RequestID)
		})
	}
}
