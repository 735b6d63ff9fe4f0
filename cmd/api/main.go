package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simple-chat/internal/channel"
	"simple-chat/internal/channel/acs"
	"simple-chat/internal/channel/memory"
	"simple-chat/internal/chat"
	"simple-chat/internal/grpc"
	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/logger"
	"simple-chat/internal/platform/metrics"
	"simple-chat/internal/platform/middleware"
	"simple-chat/internal/platform/server"
	"simple-chat/internal/reconcile"
	"simple-chat/internal/security/audit"
	"simple-chat/internal/security/encryption"
	"simple-chat/internal/storage"
	"simple-chat/internal/user"

	"github.com/gin-gonic/gin"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 載入配置, 日誌輪轉設定來自配置.
	if err := config.Load(); err != nil {
		return err
	}
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	cfg := config.Get()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 連接資料庫.
	repos, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error(ctx, "資料庫連接失敗", logger.WithError(err))
		return fmt.Errorf("database initialization failed")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repos.Close(closeCtx); err != nil {
			logger.Errorf(closeCtx, "關閉資料庫連接失敗: %v", err)
		}
	}()

	m := metrics.New()
	ch, err := newChannel(ctx, cfg.Channel, m)
	if err != nil {
		return err
	}

	sealer, err := newSealer(ctx, cfg.Security.Encryption)
	if err != nil {
		return err
	}

	auditor := audit.NewAuditService(cfg.Security.Audit.Enabled, nil)
	dir := user.NewDirectory(repos.Users, ch, user.WithSearchLimit(cfg.Limits.Search.MaxResults))
	svc := chat.NewService(repos, dir, ch,
		chat.WithSealer(sealer),
		chat.WithAudit(auditor),
		chat.WithMetrics(m),
		chat.WithLimits(chat.Limits{
			DefaultPageSize:  cfg.Limits.Pagination.DefaultPageSize,
			MaxPageSize:      cfg.Limits.Pagination.MaxPageSize,
			MaxContentLength: cfg.Limits.Message.MaxLength,
		}),
	)

	auth := middleware.NewJWTMiddleware(cfg.Security.Authentication, auditor)
	if !auth.Enabled() {
		logger.Warning(ctx, "[WARNING] JWT 認證未啟用, 請求中的使用者 ID 將直接被信任")
	}
	limiter := middleware.NewPerEndpointRateLimiter(cfg.Limits.RateLimiting, auditor)
	defer limiter.Stop()

	errCh := make(chan error, 2)

	// 啟動 gRPC 服務器
	if cfg.GRPC.Enabled {
		grpcServer, err := grpc.NewServer(svc, cfg.Security.TLS, auth)
		if err != nil {
			logger.Error(ctx, "gRPC 服務器創建失敗", logger.WithError(err))
			return fmt.Errorf("server initialization failed")
		}
		lis, err := net.Listen("tcp", config.GetGRPCAddr())
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		defer grpcServer.Stop()
	}

	// 訊息補寫 (預設關閉).
	if cfg.Reconcile.Enabled {
		r, err := reconcile.New(cfg.Reconcile, repos, ch,
			reconcile.WithSealer(sealer),
			reconcile.WithAudit(auditor),
			reconcile.WithMetrics(m),
		)
		if err != nil {
			return err
		}
		go r.Run(ctx)
	}

	if !config.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.Router(server.Deps{
		Config:  cfg,
		Chat:    svc,
		Users:   dir,
		Store:   repos,
		Metrics: m,
		Audit:   auditor,
		Auth:    auth,
		Limiter: limiter,
	})
	httpServer := server.NewHTTPServer(cfg.Server, router)
	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		if err := server.Serve(ctx, httpServer, cfg.Server); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info(ctx, "[System] 服務器啟動完成", logger.WithDetails(map[string]any{
		"name":     cfg.App.Name,
		"version":  cfg.App.Version,
		"database": cfg.Database.Driver,
		"channel":  ch.Endpoint(),
	}))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error(context.Background(), "服務器異常終止", logger.WithError(runErr))
	}

	logger.Info(context.Background(), "正在關閉服務器...", logger.WithAction("shutdown"))
	stop()
	<-httpDone
	return runErr
}

func newChannel(ctx context.Context, cfg config.ChannelConfig, m *metrics.Metrics) (channel.Adapter, error) {
	var next channel.Adapter
	switch cfg.Provider {
	case config.ChannelACS:
		c, err := acs.New(cfg.ConnectionString)
		if err != nil {
			logger.Error(ctx, "ACS 連線字串無效", logger.WithError(err))
			return nil, fmt.Errorf("channel initialization failed")
		}
		next = c
	case config.ChannelMemory, "":
		logger.Info(ctx, "[WARNING] 使用行程內通道, 僅適用本地開發")
		next = memory.New()
	default:
		return nil, fmt.Errorf("unsupported channel provider: %s", cfg.Provider)
	}
	return channel.Instrument(next, time.Duration(cfg.Timeout)*time.Second, m), nil
}

func newSealer(ctx context.Context, cfg config.EncryptionConfig) (encryption.Sealer, error) {
	if !cfg.Enabled {
		return encryption.Plain{}, nil
	}
	sealer, err := encryption.NewXChaCha(cfg.Key)
	if err != nil {
		logger.Error(ctx, "加密金鑰無效", logger.WithError(err))
		return nil, errors.New("encryption initialization failed")
	}
	logger.Info(ctx, "[SUCCESS] 訊息內容加密已啟用")
	return sealer, nil
}
