package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Name: "simple-chat", Version: "test"},
		Server:   ServerConfig{Host: "127.0.0.1", Port: "8080", Timeout: 30},
		GRPC:     GRPCConfig{Host: "127.0.0.1", Port: "9090"},
		Database: DatabaseConfig{Driver: DriverSQLite, SQLite: SQLiteConfig{Path: ":memory:"}},
		Log:      LogConfig{RotationTimeHours: 24, MaxAgeDays: 7, MaxSizeMB: 10},
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	require.NoError(t, Load(validConfig()))
	cfg := Get()

	assert.Equal(t, ChannelMemory, cfg.Channel.Provider)
	assert.Equal(t, 10, cfg.Channel.Timeout)
	assert.Equal(t, 50, cfg.Limits.Pagination.DefaultPageSize)
	assert.Equal(t, 100, cfg.Limits.Pagination.MaxPageSize)
	assert.Equal(t, 4000, cfg.Limits.Message.MaxLength)
	assert.Equal(t, 20, cfg.Limits.Search.MaxResults)
	assert.Equal(t, "*/5 * * * *", cfg.Reconcile.Schedule)
	assert.Equal(t, "127.0.0.1:9090", GetGRPCAddr())
	assert.Equal(t, "127.0.0.1:8080", GetServerAddr())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"缺少應用名稱", func(c *Config) { c.App.Name = "" }},
		{"缺少端口", func(c *Config) { c.Server.Port = "" }},
		{"未知資料庫驅動", func(c *Config) { c.Database.Driver = "oracle" }},
		{"MongoDB 缺少 URL", func(c *Config) { c.Database = DatabaseConfig{Driver: DriverMongo} }},
		{"PostgreSQL 缺少 DSN", func(c *Config) { c.Database = DatabaseConfig{Driver: DriverPostgres} }},
		{"ACS 缺少連接字串", func(c *Config) { c.Channel.Provider = ChannelACS }},
		{"未知通道", func(c *Config) { c.Channel.Provider = "carrier-pigeon" }},
		{"JWT 缺少密鑰", func(c *Config) { c.Security.Authentication.JWTEnabled = true }},
		{"加密密鑰過短", func(c *Config) {
			c.Security.Encryption = EncryptionConfig{Enabled: true, Key: "short"}
		}},
		{"預設分頁大於上限", func(c *Config) {
			c.Limits.Pagination = PaginationLimitsConfig{DefaultPageSize: 200, MaxPageSize: 100}
		}},
		{"日誌輪轉時間為零", func(c *Config) { c.Log.RotationTimeHours = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, Load(cfg))
		})
	}
}

func TestLoad_FromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staging.yaml")
	yaml := `
app:
  name: simple-chat
  version: 1.2.3
server:
  host: 0.0.0.0
  port: "8080"
  timeout: 15
database:
  driver: sqlite
  sqlite:
    path: ./chat.db
log:
  rotation_time_hours: 24
  max_age_days: 7
  max_size_mb: 100
reconcile:
  enabled: true
  schedule: "0 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "9999")
	defer SetEnv("local")

	require.NoError(t, Load())
	cfg := Get()

	assert.Equal(t, "staging", GetEnv())
	assert.Equal(t, "1.2.3", cfg.App.Version)
	assert.Equal(t, "9999", cfg.Server.Port, "環境變數覆寫設定檔")
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.True(t, cfg.Reconcile.Enabled)
	assert.Equal(t, "0 * * * *", cfg.Reconcile.Schedule)
	assert.Equal(t, 10, cfg.Reconcile.LookbackMinute)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	defer SetEnv("local")
	assert.Error(t, Load())
}
