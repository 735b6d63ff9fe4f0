package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"simple-chat/internal/platform/config"
	"simple-chat/internal/platform/logger"
)

const shutdownTimeout = 30 * time.Second

// NewHTTPServer 依設定建立 HTTP 伺服器.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	timeout := time.Duration(cfg.Timeout) * time.Second
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       120 * time.Second,
	}
}

// Serve 啟動 HTTP 伺服器, ctx 結束後優雅關閉.
func Serve(ctx context.Context, srv *http.Server, cfg config.ServerConfig) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof(ctx, "HTTP 伺服器正在監聽: %s", srv.Addr)
		var err error
		if cfg.UseHTTPS {
			err = srv.ListenAndServeTLS(cfg.CertPath, cfg.KeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Errorf(ctx, "HTTP 伺服器啟動失敗: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof(context.Background(), "收到關閉信號，正在優雅關閉 HTTP 伺服器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(shutdownCtx, "HTTP 伺服器關閉失敗: %v", err)
		return err
	}
	logger.Infof(shutdownCtx, "HTTP 伺服器已優雅關閉")
	return nil
}
