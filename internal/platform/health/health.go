package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"simple-chat/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	// 健康狀態常數.
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusWarning   = "warning"
	statusDegraded  = "degraded"

	// 記憶體相關常數.
	memoryMB        = 1024 * 1024
	memoryThreshold = 1024 // 1GB

	// 超時常數.
	dbTimeout = 5 * time.Second
)

// Pinger 可檢查連線的儲存後端.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppInfo 回應中顯示的應用資訊.
type AppInfo struct {
	Name     string
	Version  string
	Debug    bool
	Database string
	Channel  string
}

// Handler 健康檢查處理器.
type Handler struct {
	store Pinger
	app   AppInfo
	start time.Time
}

// NewHealthHandler 創建新的健康檢查處理器.
func NewHealthHandler(store Pinger, app AppInfo) *Handler {
	return &Handler{store: store, app: app, start: time.Now()}
}

// HealthCheck 健康檢查端點. 資料庫不可用時回 503.
func (h *Handler) HealthCheck(c *gin.Context) {
	dbStatus := statusHealthy
	dbError := ""
	if err := h.checkDatabase(c.Request.Context()); err != nil {
		dbStatus = statusUnhealthy
		dbError = "database unreachable"
		logger.Errorf(c.Request.Context(), "健康檢查 - 資料庫連線失敗: %v", err)
	}

	systemStatus := h.checkSystemResources()

	response := gin.H{
		"status":    statusHealthy,
		"timestamp": time.Now().Unix(),
		"app": gin.H{
			"name":    h.app.Name,
			"version": h.app.Version,
			"debug":   h.app.Debug,
			"channel": h.app.Channel,
		},
		"database": gin.H{
			"status": dbStatus,
			"driver": h.app.Database,
			"error":  dbError,
		},
		"system": gin.H{
			"status":  systemStatus.Status,
			"details": systemStatus.Details,
			"uptime":  time.Since(h.start).String(),
		},
	}

	if dbStatus == statusUnhealthy {
		response["status"] = statusDegraded
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// SystemStatus 系統狀態.
type SystemStatus struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

// checkSystemResources 檢查系統資源.
func (h *Handler) checkSystemResources() SystemStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc":       fmt.Sprintf("%.2f MB", float64(m.Alloc)/memoryMB),
			"total_alloc": fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/memoryMB),
			"sys":         fmt.Sprintf("%.2f MB", float64(m.Sys)/memoryMB),
			"num_gc":      m.NumGC,
		},
		"cpu": gin.H{
			"num_cpu": runtime.NumCPU(),
		},
	}

	status := statusHealthy
	if m.Sys/memoryMB > memoryThreshold {
		status = statusWarning
		details["memory_warning"] = "Memory usage is high"
	}

	return SystemStatus{Status: status, Details: details}
}

// checkDatabase 檢查資料庫連線.
func (h *Handler) checkDatabase(parent context.Context) error {
	if h.store == nil {
		return fmt.Errorf("database connection not available")
	}
	ctx, cancel := context.WithTimeout(parent, dbTimeout)
	defer cancel()
	return h.store.Ping(ctx)
}
