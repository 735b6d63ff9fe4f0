package server

import (
	"net/http"
	"time"

	"simple-chat/internal/chat"
	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/health"
	"simple-chat/internal/platform/metrics"
	"simple-chat/internal/platform/middleware"
	"simple-chat/internal/security/audit"
	"simple-chat/internal/user"

	"github.com/gin-gonic/gin"
)

const sendMessagePath = "/api/chats/messages"

// Deps 路由需要的服務.
type Deps struct {
	Config  *config.Config
	Chat    *chat.Service
	Users   *user.Directory
	Store   health.Pinger
	Metrics *metrics.Metrics
	Audit   *audit.AuditService
	Auth    *middleware.JWTMiddleware
	Limiter *middleware.PerEndpointRateLimiter
}

type handlers struct {
	chat  *chat.Service
	users *user.Directory
	auth  *middleware.JWTMiddleware
	audit *audit.AuditService
}

// Router 設定路由.
func Router(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	if d.Auth == nil {
		d.Auth = middleware.NewJWTMiddleware(cfg.Security.Authentication, d.Audit)
	}
	if d.Limiter == nil {
		d.Limiter = middleware.NewPerEndpointRateLimiter(cfg.Limits.RateLimiting, d.Audit)
	}
	d.Limiter.Classify(endpointClass)

	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.RequestMetadataMiddleware(),
		middleware.AccessLog(d.Metrics),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.CORS.AllowedOrigins),
		middleware.RequestSizeLimiter(cfg.Limits.Request.MaxBodySize),
		middleware.RequestTimeout(time.Duration(cfg.Limits.Request.Timeout)*time.Second),
	)

	healthHandler := health.NewHealthHandler(d.Store, health.AppInfo{
		Name:     cfg.App.Name,
		Version:  cfg.App.Version,
		Debug:    cfg.App.Debug,
		Database: cfg.Database.Driver,
		Channel:  cfg.Channel.Provider,
	})
	r.GET("/health", healthHandler.HealthCheck)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	h := &handlers{chat: d.Chat, users: d.Users, auth: d.Auth, audit: d.Audit}

	api := r.Group("/api", d.Auth.GinMiddleware(), d.Limiter.Middleware())

	chats := api.Group("/chats")
	chats.GET("/user/:userId", middleware.ValidateParams("userId"), h.getUserThreads)
	chats.POST("/thread", h.getOrCreateThread)
	chats.GET("/thread/:threadId", middleware.ValidateParams("threadId"), h.getThreadDetails)
	chats.GET("/thread/:threadId/messages", middleware.ValidateParams("threadId"), h.getThreadMessages)
	chats.POST("/messages", h.sendMessage)
	chats.POST("/thread/:threadId/read", middleware.ValidateParams("threadId"), h.markAsRead)
	chats.GET("/thread/:threadId/unread", middleware.ValidateParams("threadId"), h.getUnreadCount)

	users := api.Group("/users")
	users.GET("/search", h.searchUsers)
	users.GET("/online", h.listOnlineUsers)
	users.POST("", h.createUser)
	users.POST("/get-or-create", h.getOrCreateUser)
	users.GET("/email/:email", h.getUserByEmail)
	users.GET("/subject/:subject", middleware.ValidateParams("subject"), h.getUserBySubject)
	users.GET("/entraid/:subject", middleware.ValidateParams("subject"), h.getUserBySubject)
	users.GET("/:id", middleware.ValidateParams("id"), h.getUser)
	users.PUT("/:id", middleware.ValidateParams("id"), h.updateUser)
	users.PATCH("/:id/status", middleware.ValidateParams("id"), h.updateUserStatus)

	auth := api.Group("/auth")
	auth.GET("/me", h.me)
	auth.GET("/channel-token", h.channelToken)
	auth.GET("/acs-token", h.channelToken)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success":    false,
			"error":      gin.H{"code": "NOT_FOUND", "message": "route not found"},
			"request_id": middleware.GetRequestID(c),
		})
	})

	return r
}

// endpointClass 送出訊息使用較嚴格的額度.
func endpointClass(c *gin.Context) string {
	if c.Request.Method == http.MethodPost && c.FullPath() == sendMessagePath {
		return middleware.ClassSend
	}
	return middleware.ClassDefault
}
