package constants

// HTTP 請求相關常數
const (
	// 默認值（可被配置覆蓋）
	DefaultMaxRequestBodySize = 1 << 20 // 1MB
	DefaultRequestTimeout     = 30      // 秒
)

// 分頁相關常數
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	MinPageSize     = 1
	MinPageNumber   = 1
)

// 訊息相關常數
const (
	DefaultMaxMessageLength = 4000
)

// 使用者相關常數
const (
	MaxUserIDLength      = 100
	MaxDisplayNameLength = 100
	MaxEmailLength       = 255
	MaxSearchResults     = 20
	UnknownDisplayName   = "Unknown User"
	UnknownEmailDomain   = "unknown.com"
)

// Rate Limiting 默認值
const (
	DefaultRateLimitPerMinute   = 100
	DefaultMessageRateLimit     = 30
	DefaultRateLimitBurst       = 10
	RateLimitCleanupIntervalMin = 5 // 分鐘
)

// 外部通道相關常數
const (
	DefaultChannelTimeout = 10 // 秒
	// 兩個參與者在遠端對話中顯示的 topic 分隔符.
	ThreadTopicSeparator = " & "
)
