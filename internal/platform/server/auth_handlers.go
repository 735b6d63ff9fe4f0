package server

import (
	"net/http"
	"time"

	"simple-chat/internal/domain"
	"simple-chat/internal/httputil"
	"simple-chat/internal/platform/middleware"
	"simple-chat/internal/user"

	"github.com/gin-gonic/gin"
)

type channelTokenResponse struct {
	Token         string    `json:"token"`
	ExpiresOn     time.Time `json:"expiresOn"`
	ChannelUserID string    `json:"channelUserId"`
	Endpoint      string    `json:"endpoint"`
}

// 目前使用者, 首次登入時自動建立.
func (h *handlers) me(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user.ToProfile(u))
}

// 簽發前端連線外部通道用的權杖
func (h *handlers) channelToken(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	tok, err := h.users.IssueChannelToken(ctx, u)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	h.audit.LogChannelTokenIssued(ctx, u.ID, tok.ExpiresOn)

	c.JSON(http.StatusOK, channelTokenResponse{
		Token:         tok.Token,
		ExpiresOn:     tok.ExpiresOn,
		ChannelUserID: u.ChannelIdentity,
		Endpoint:      h.users.Endpoint(),
	})
}

// currentUser 啟用認證時由 token 取得使用者, 否則使用 userId 查詢參數.
// 失敗時已寫入回應.
func (h *handlers) currentUser(c *gin.Context) (*domain.User, bool) {
	ctx := c.Request.Context()

	if p, ok := middleware.GetPrincipal(c); ok {
		u, err := h.users.GetOrCreateByExternalIdentity(ctx, p.Subject, p.Email, p.Name)
		if err != nil {
			httputil.WriteError(c, err)
			return nil, false
		}
		return u, true
	}

	userID := c.Query("userId")
	if userID == "" {
		httputil.Unauthorized(c, "user identity not found")
		return nil, false
	}
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		httputil.WriteError(c, err)
		return nil, false
	}
	return u, true
}

// actingUser 回傳本次請求代表的使用者 ID.
// 未啟用認證時沿用請求中的 ID; 啟用時以 token 為準, 不可代表其他使用者.
func (h *handlers) actingUser(c *gin.Context, claimed string) (string, error) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		return claimed, nil
	}

	ctx := c.Request.Context()
	u, err := h.users.GetOrCreateByExternalIdentity(ctx, p.Subject, p.Email, p.Name)
	if err != nil {
		return "", err
	}
	if claimed != "" && claimed != u.ID {
		h.audit.LogAccessDenied(ctx, u.ID, "", "request names another user")
		return "", domain.Forbidden("cannot act on behalf of another user")
	}
	return u.ID, nil
}
