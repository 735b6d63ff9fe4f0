package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"simple-chat/internal/constants"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 資料庫驅動名稱.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 外部通道提供者.
const (
	ChannelACS    = "acs"
	ChannelMemory = "memory"
)

// Config 應用程式配置結構.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// AppConfig 應用程式基本配置.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"`
}

// ServerConfig 伺服器配置.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Timeout  int    `mapstructure:"timeout"`
	UseHTTPS bool   `mapstructure:"use_https"`
	CertPath string `mapstructure:"cert_path"`
	KeyPath  string `mapstructure:"key_path"`
}

// GRPCConfig gRPC 配置.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
}

// DatabaseConfig 資料庫配置.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // mongo | postgres | sqlite.
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// MongoConfig MongoDB 配置.
type MongoConfig struct {
	URL                    string `mapstructure:"url"`
	Database               string `mapstructure:"database"`
	Username               string `mapstructure:"username"`
	Password               string `mapstructure:"password"`
	MaxPoolSize            uint64 `mapstructure:"max_pool_size"`
	MinPoolSize            uint64 `mapstructure:"min_pool_size"`
	MaxConnIdleTime        int    `mapstructure:"max_conn_idle_time"`
	ConnectTimeout         int    `mapstructure:"connect_timeout"`
	ServerSelectionTimeout int    `mapstructure:"server_selection_timeout"`
	TLSEnabled             bool   `mapstructure:"tls_enabled"`
	TLSCAFile              string `mapstructure:"tls_ca_file"`
	TLSCertFile            string `mapstructure:"tls_cert_file"`
	TLSKeyFile             string `mapstructure:"tls_key_file"`
	TLSInsecureSkipVerify  bool   `mapstructure:"tls_insecure_skip_verify"`
}

// PostgresConfig PostgreSQL 配置.
type PostgresConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// SQLiteConfig SQLite 配置 (本地開發用).
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ChannelConfig 外部即時通道配置.
type ChannelConfig struct {
	Provider         string `mapstructure:"provider"` // acs | memory.
	ConnectionString string `mapstructure:"connection_string"`
	Timeout          int    `mapstructure:"timeout"` // 秒.
}

// LogConfig 日誌配置.
type LogConfig struct {
	RotationTimeHours int `mapstructure:"rotation_time_hours"` // 日誌輪轉時間 (小時).
	MaxAgeDays        int `mapstructure:"max_age_days"`        // 日誌保留天數.
	MaxSizeMB         int `mapstructure:"max_size_mb"`         // 單個日誌檔案最大大小 (MB).
}

// SecurityConfig 安全配置.
type SecurityConfig struct {
	TLS            TLSConfig            `mapstructure:"tls"`
	Authentication AuthenticationConfig `mapstructure:"authentication"`
	Encryption     EncryptionConfig     `mapstructure:"encryption"`
	Audit          AuditConfig          `mapstructure:"audit"`
}

// TLSConfig TLS 配置.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// AuthenticationConfig 認證配置.
type AuthenticationConfig struct {
	JWTEnabled bool   `mapstructure:"jwt_enabled"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	Issuer     string `mapstructure:"issuer"`
	Audience   string `mapstructure:"audience"`
}

// EncryptionConfig 訊息內容靜態加密配置.
type EncryptionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Key     string `mapstructure:"key"`
}

// AuditConfig 審計配置.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// LimitsConfig 限制配置.
type LimitsConfig struct {
	Request      RequestLimitsConfig    `mapstructure:"request"`
	RateLimiting RateLimitingConfig     `mapstructure:"rate_limiting"`
	Pagination   PaginationLimitsConfig `mapstructure:"pagination"`
	Message      MessageLimitsConfig    `mapstructure:"message"`
	Search       SearchLimitsConfig     `mapstructure:"search"`
}

// RequestLimitsConfig 請求限制配置.
type RequestLimitsConfig struct {
	MaxBodySize int64 `mapstructure:"max_body_size"`
	Timeout     int   `mapstructure:"timeout"` // 秒.
}

// RateLimitingConfig Rate Limiting 配置.
type RateLimitingConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	DefaultPerMinute int  `mapstructure:"default_per_minute"`
	MessagesPerMin   int  `mapstructure:"messages_per_minute"`
	Burst            int  `mapstructure:"burst"`
	CleanupInterval  int  `mapstructure:"cleanup_interval_minutes"`
}

// PaginationLimitsConfig 分頁限制配置.
type PaginationLimitsConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// MessageLimitsConfig 訊息限制配置.
type MessageLimitsConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

// SearchLimitsConfig 使用者搜尋限制配置.
type SearchLimitsConfig struct {
	MaxResults int `mapstructure:"max_results"`
}

// CORSConfig 跨域配置.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ReconcileConfig 訊息補寫排程配置.
type ReconcileConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Schedule       string `mapstructure:"schedule"`        // cron 表達式.
	LookbackMinute int    `mapstructure:"lookback_minutes"` // 回溯時間.
	PageSize       int    `mapstructure:"page_size"`
}

var (
	config *Config
	// ENV 當前環境變數.
	ENV string = "local"
)

// Load 載入設定檔.
func Load(testCfg ...*Config) error {
	// 如果直接傳入配置（主要用於測試），設定並驗證
	if len(testCfg) > 0 && testCfg[0] != nil {
		config = testCfg[0]
		applyDefaults(config)
		if err := validateConfig(config); err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}
		return nil
	}

	// .env 不存在時忽略
	_ = godotenv.Load()

	if env := os.Getenv("ENV"); env != "" {
		ENV = env
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
		// 從檔案名稱推斷環境
		baseName := filepath.Base(configPath)
		ENV = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	} else {
		v.SetConfigName(ENV)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("讀取配置檔案失敗: %w", err)
	}

	config = &Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("解析配置失敗: %w", err)
	}

	applyDefaults(config)

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("配置驗證失敗: %w", err)
	}

	return nil
}

// Get 取得設定.
func Get() *Config {
	return config
}

// SetEnv 設定環境.
func SetEnv(env string) {
	ENV = env
}

// GetEnv 取得當前環境.
func GetEnv() string {
	return ENV
}

// applyDefaults 為未設定的欄位補上預設值.
func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverMongo
	}
	if cfg.Channel.Provider == "" {
		cfg.Channel.Provider = ChannelMemory
	}
	if cfg.Channel.Timeout <= 0 {
		cfg.Channel.Timeout = constants.DefaultChannelTimeout
	}
	if cfg.Limits.Request.Timeout <= 0 {
		cfg.Limits.Request.Timeout = constants.DefaultRequestTimeout
	}
	if cfg.Limits.Request.MaxBodySize <= 0 {
		cfg.Limits.Request.MaxBodySize = constants.DefaultMaxRequestBodySize
	}
	if cfg.Limits.Pagination.DefaultPageSize <= 0 {
		cfg.Limits.Pagination.DefaultPageSize = constants.DefaultPageSize
	}
	if cfg.Limits.Pagination.MaxPageSize <= 0 {
		cfg.Limits.Pagination.MaxPageSize = constants.MaxPageSize
	}
	if cfg.Limits.Message.MaxLength <= 0 {
		cfg.Limits.Message.MaxLength = constants.DefaultMaxMessageLength
	}
	if cfg.Limits.Search.MaxResults <= 0 {
		cfg.Limits.Search.MaxResults = constants.MaxSearchResults
	}
	if cfg.Limits.RateLimiting.DefaultPerMinute <= 0 {
		cfg.Limits.RateLimiting.DefaultPerMinute = constants.DefaultRateLimitPerMinute
	}
	if cfg.Limits.RateLimiting.MessagesPerMin <= 0 {
		cfg.Limits.RateLimiting.MessagesPerMin = constants.DefaultMessageRateLimit
	}
	if cfg.Limits.RateLimiting.Burst <= 0 {
		cfg.Limits.RateLimiting.Burst = constants.DefaultRateLimitBurst
	}
	if cfg.Limits.RateLimiting.CleanupInterval <= 0 {
		cfg.Limits.RateLimiting.CleanupInterval = constants.RateLimitCleanupIntervalMin
	}
	if cfg.Reconcile.Schedule == "" {
		cfg.Reconcile.Schedule = "*/5 * * * *"
	}
	if cfg.Reconcile.LookbackMinute <= 0 {
		cfg.Reconcile.LookbackMinute = 10
	}
	if cfg.Reconcile.PageSize <= 0 {
		cfg.Reconcile.PageSize = 100
	}
}

// validateConfig 驗證配置的有效性
func validateConfig(cfg *Config) error {
	// 驗證應用程式配置
	if cfg.App.Name == "" {
		return fmt.Errorf("應用程式名稱不能為空")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("應用程式版本不能為空")
	}

	// 驗證伺服器配置
	if cfg.Server.Host == "" {
		return fmt.Errorf("伺服器主機不能為空")
	}
	if cfg.Server.Port == "" {
		return fmt.Errorf("伺服器端口不能為空")
	}
	if cfg.Server.Timeout <= 0 {
		return fmt.Errorf("伺服器超時時間必須大於 0")
	}

	// 驗證資料庫配置
	switch cfg.Database.Driver {
	case DriverMongo:
		if cfg.Database.Mongo.URL == "" {
			return fmt.Errorf("MongoDB URL 不能為空")
		}
		if cfg.Database.Mongo.Database == "" {
			return fmt.Errorf("MongoDB 資料庫名稱不能為空")
		}
		if cfg.Database.Mongo.MaxPoolSize == 0 {
			return fmt.Errorf("MongoDB 最大連接池大小必須大於 0")
		}
		if cfg.Database.Mongo.MinPoolSize > cfg.Database.Mongo.MaxPoolSize {
			return fmt.Errorf("MongoDB 最小連接池大小不能大於最大連接池大小")
		}
	case DriverPostgres:
		if cfg.Database.Postgres.DSN == "" {
			return fmt.Errorf("PostgreSQL DSN 不能為空")
		}
	case DriverSQLite:
		if cfg.Database.SQLite.Path == "" {
			return fmt.Errorf("SQLite 路徑不能為空")
		}
	default:
		return fmt.Errorf("不支援的資料庫驅動: %s", cfg.Database.Driver)
	}

	// 驗證外部通道配置
	switch cfg.Channel.Provider {
	case ChannelACS:
		if cfg.Channel.ConnectionString == "" {
			return fmt.Errorf("ACS 連接字串不能為空")
		}
	case ChannelMemory:
	default:
		return fmt.Errorf("不支援的通道提供者: %s", cfg.Channel.Provider)
	}

	if cfg.Security.Authentication.JWTEnabled && cfg.Security.Authentication.JWTSecret == "" {
		return fmt.Errorf("啟用 JWT 時密鑰不能為空")
	}
	if cfg.Security.Encryption.Enabled && len(cfg.Security.Encryption.Key) < 16 {
		return fmt.Errorf("加密密鑰長度至少 16 個字元")
	}

	if cfg.Limits.Pagination.DefaultPageSize > cfg.Limits.Pagination.MaxPageSize {
		return fmt.Errorf("預設分頁大小不能大於最大分頁大小")
	}

	// 驗證日誌配置
	if cfg.Log.RotationTimeHours <= 0 {
		return fmt.Errorf("日誌輪轉時間必須大於 0")
	}
	if cfg.Log.MaxAgeDays <= 0 {
		return fmt.Errorf("日誌保留天數必須大於 0")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("日誌檔案最大大小必須大於 0")
	}

	return nil
}

// IsDebug 檢查是否為除錯模式
func IsDebug() bool {
	if config != nil {
		return config.App.Debug
	}
	return false
}

// GetServerAddr 取得伺服器地址
func GetServerAddr() string {
	if config != nil {
		return fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)
	}
	return "localhost:8080"
}

// GetGRPCAddr 取得 gRPC 伺服器地址
func GetGRPCAddr() string {
	if config != nil && config.GRPC.Port != "" {
		return fmt.Sprintf("%s:%s", config.GRPC.Host, config.GRPC.Port)
	}
	return "localhost:8081"
}
