package server

import (
	"net/http"
	"strconv"

	"simple-chat/internal/domain"
	"simple-chat/internal/httputil"

	"github.com/gin-gonic/gin"
)

type createThreadRequest struct {
	CurrentUserID string `json:"currentUserId"`
	OtherUserID   string `json:"otherUserId"`
}

type sendMessageRequest struct {
	UserID  string `json:"userId"`
	Message struct {
		ChatThreadID string `json:"chatThreadId"`
		Content      string `json:"content"`
	} `json:"message"`
}

type userRequest struct {
	UserID string `json:"userId"`
}

type unreadCountResponse struct {
	ThreadID    string `json:"threadId"`
	UserID      string `json:"userId"`
	UnreadCount int64  `json:"unreadCount"`
}

// 列出使用者的對話
func (h *handlers) getUserThreads(c *gin.Context) {
	userID, err := h.actingUser(c, c.Param("userId"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	threads, err := h.chat.GetUserThreads(c.Request.Context(), userID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

// 取得或建立對話
func (h *handlers) getOrCreateThread(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body")
		return
	}

	currentUserID, err := h.actingUser(c, req.CurrentUserID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	thread, err := h.chat.GetOrCreateThread(c.Request.Context(), currentUserID, req.OtherUserID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// 取得對話內容
func (h *handlers) getThreadDetails(c *gin.Context) {
	pageSize, pageNumber, err := h.paging(c)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	currentUserID, err := h.actingUser(c, c.Query("currentUserId"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	detail, err := h.chat.GetThreadDetails(c.Request.Context(), c.Param("threadId"), currentUserID, pageSize, pageNumber)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// 取得對話訊息
func (h *handlers) getThreadMessages(c *gin.Context) {
	pageSize, pageNumber, err := h.paging(c)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	messages, err := h.chat.GetThreadMessages(c.Request.Context(), c.Param("threadId"), pageSize, pageNumber)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// 發送消息
func (h *handlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body")
		return
	}

	senderID, err := h.actingUser(c, req.UserID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), senderID, req.Message.ChatThreadID, req.Message.Content)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.Header("Location", "/api/chats/thread/"+msg.ThreadID+"/messages")
	c.JSON(http.StatusCreated, msg)
}

// 標記消息已讀
func (h *handlers) markAsRead(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body")
		return
	}

	userID, err := h.actingUser(c, req.UserID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	if err := h.chat.MarkMessagesAsRead(c.Request.Context(), userID, c.Param("threadId")); err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// 取得未讀數量
func (h *handlers) getUnreadCount(c *gin.Context) {
	userID, err := h.actingUser(c, c.Query("userId"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	threadID := c.Param("threadId")
	count, err := h.chat.GetUnreadCount(c.Request.Context(), userID, threadID)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, unreadCountResponse{ThreadID: threadID, UserID: userID, UnreadCount: count})
}

// paging 解析分頁參數, 範圍檢查交給服務層.
func (h *handlers) paging(c *gin.Context) (int, int, error) {
	pageSize := h.chat.Limits().DefaultPageSize
	pageNumber := 1

	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, domain.Invalid("pageSize must be an integer")
		}
		pageSize = n
	}
	if v := c.Query("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, domain.Invalid("pageNumber must be an integer")
		}
		pageNumber = n
	}
	return pageSize, pageNumber, nil
}
