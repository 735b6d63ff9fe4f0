package middleware

import (
	"net/http"
	"sync"
	"time"

	"simple-chat/internal/platform/config"
	"simple-chat/internal/security/audit"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// 端點類別.
const (
	ClassDefault = "default"
	ClassSend    = "send"
)

const visitorIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 以 token bucket 為每個呼叫者限速.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter 創建速率限制器, perMinute 為每分鐘平均請求數.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow 檢查 key 是否還有額度.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// cleanup 刪除閒置的訪問者記錄
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(rl.visitors, key)
		}
	}
}

// PerEndpointRateLimiter 為不同端點類別設置不同的速率限制
type PerEndpointRateLimiter struct {
	enabled  bool
	limiters map[string]*RateLimiter
	classify func(c *gin.Context) string
	audit    *audit.AuditService
	stop     chan struct{}
	once     sync.Once
}

// NewPerEndpointRateLimiter 依設定建立 default 與 send 兩類限制器.
func NewPerEndpointRateLimiter(cfg config.RateLimitingConfig, auditor *audit.AuditService) *PerEndpointRateLimiter {
	p := &PerEndpointRateLimiter{
		enabled: cfg.Enabled,
		limiters: map[string]*RateLimiter{
			ClassDefault: NewRateLimiter(cfg.DefaultPerMinute, cfg.Burst),
			ClassSend:    NewRateLimiter(cfg.MessagesPerMin, cfg.Burst),
		},
		classify: func(*gin.Context) string { return ClassDefault },
		audit:    auditor,
		stop:     make(chan struct{}),
	}

	if cfg.Enabled {
		interval := time.Duration(cfg.CleanupInterval) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go p.cleanupLoop(interval)
	}
	return p
}

// Classify 設定端點分類函式.
func (p *PerEndpointRateLimiter) Classify(fn func(c *gin.Context) string) {
	if fn != nil {
		p.classify = fn
	}
}

// Stop 停止背景清理.
func (p *PerEndpointRateLimiter) Stop() {
	p.once.Do(func() { close(p.stop) })
}

func (p *PerEndpointRateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for _, l := range p.limiters {
				l.cleanup()
			}
		}
	}
}

// Middleware 返回 Gin 中間件. 已驗證的呼叫者以 subject 計算, 否則以 IP.
func (p *PerEndpointRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !p.enabled {
			c.Next()
			return
		}

		class := p.classify(c)
		limiter, ok := p.limiters[class]
		if !ok {
			limiter = p.limiters[ClassDefault]
		}

		key := GetClientIP(c)
		if principal, ok := GetPrincipal(c); ok {
			key = "sub:" + principal.Subject
		}

		if !limiter.Allow(key) {
			p.audit.LogRateLimitExceeded(c.Request.Context(), key, class)
			abortWithError(c, http.StatusTooManyRequests, CodeRateLimited, "請求過於頻繁，請稍後再試")
			return
		}
		c.Next()
	}
}
