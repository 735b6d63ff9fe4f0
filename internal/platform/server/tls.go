package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"simple-chat/internal/platform/config"

	"google.golang.org/grpc/credentials"
)

// LoadTLSCredentials 載入 gRPC 用的 TLS 憑證, 未啟用時回傳 nil.
func LoadTLSCredentials(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	serverCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	clientAuth := tls.NoClientCert

	// 提供 CA 時要求客戶端憑證
	if cfg.CAFile != "" {
		ca, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		if !certPool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		clientAuth = tls.RequireAndVerifyClientCert
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   clientAuth,
		MinVersion:   tls.VersionTLS13,
		ClientCAs:    certPool,
	}), nil
}
