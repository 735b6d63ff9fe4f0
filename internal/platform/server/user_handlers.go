package server

import (
	"net/http"

	"simple-chat/internal/domain"
	"simple-chat/internal/httputil"
	"simple-chat/internal/user"

	"github.com/gin-gonic/gin"
)

type getOrCreateUserRequest struct {
	ExternalSubject string `json:"externalSubject"`
	Email           string `json:"email"`
	DisplayName     string `json:"displayName"`
}

type updateStatusRequest struct {
	IsOnline *bool `json:"isOnline"`
}

func (h *handlers) getUser(c *gin.Context) {
	u, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	writeProfile(c, u, err)
}

func (h *handlers) getUserByEmail(c *gin.Context) {
	u, err := h.users.GetByEmail(c.Request.Context(), c.Param("email"))
	writeProfile(c, u, err)
}

func (h *handlers) getUserBySubject(c *gin.Context) {
	u, err := h.users.GetByExternalSubject(c.Request.Context(), c.Param("subject"))
	writeProfile(c, u, err)
}

func (h *handlers) createUser(c *gin.Context) {
	var in user.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httputil.BadRequest(c, "invalid request body")
		return
	}

	u, err := h.users.Create(c.Request.Context(), in)
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.Header("Location", "/api/users/"+u.ID)
	c.JSON(http.StatusCreated, user.ToProfile(u))
}

func (h *handlers) getOrCreateUser(c *gin.Context) {
	var req getOrCreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body")
		return
	}

	u, err := h.users.GetOrCreateByExternalIdentity(c.Request.Context(), req.ExternalSubject, req.Email, req.DisplayName)
	writeProfile(c, u, err)
}

// 只能修改自己的資料 (啟用認證時).
func (h *handlers) updateUser(c *gin.Context) {
	id, err := h.actingUser(c, c.Param("id"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	var in user.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httputil.BadRequest(c, "invalid request body")
		return
	}

	u, err := h.users.Update(c.Request.Context(), id, in)
	writeProfile(c, u, err)
}

func (h *handlers) updateUserStatus(c *gin.Context) {
	id, err := h.actingUser(c, c.Param("id"))
	if err != nil {
		httputil.WriteError(c, err)
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsOnline == nil {
		httputil.BadRequest(c, "isOnline is required")
		return
	}

	if err := h.users.UpdatePresence(c.Request.Context(), id, *req.IsOnline); err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) searchUsers(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), c.Query("query"))
	writeProfiles(c, users, err)
}

func (h *handlers) listOnlineUsers(c *gin.Context) {
	users, err := h.users.ListOnline(c.Request.Context())
	writeProfiles(c, users, err)
}

func writeProfile(c *gin.Context, u *domain.User, err error) {
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.ToProfile(u))
}

func writeProfiles(c *gin.Context, users []domain.User, err error) {
	if err != nil {
		httputil.WriteError(c, err)
		return
	}
	out := make([]user.Profile, len(users))
	for i := range users {
		out[i] = user.ToProfile(&users[i])
	}
	c.JSON(http.StatusOK, out)
}
